package services

import (
	"context"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
)

// SettlementNotifier is the outbound notification hook fired after a
// reimbursement settles. Delivery is fire-and-forget: a failed notification
// is logged and never rolls back the settlement.
type SettlementNotifier interface {
	NotifySettlement(ctx context.Context, r core.Reimbursement) error
}
