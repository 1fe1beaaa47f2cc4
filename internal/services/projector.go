package services

import (
	"context"
	"fmt"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
)

// Projector keeps the denormalized user totals honest. The hot path applies
// incremental deltas inside each ledger transaction; the projector's own
// methods are the O(n) recomputation used by reconciliation and repair
// tooling, never by request handling.
type Projector struct {
	store *storage.SQLiteRepository
}

func NewProjector(store *storage.SQLiteRepository) *Projector {
	return &Projector{store: store}
}

// UserDrift compares a user's projected totals against a recomputation from
// source rows.
type UserDrift struct {
	UserID     string
	Projected  storage.UserTotals
	Recomputed storage.UserTotals
}

// InSync reports whether the projection matches the recomputation.
func (d UserDrift) InSync() bool {
	return d.Projected == d.Recomputed
}

// CheckUserTotals recomputes the user's totals from budgets, expenses, and
// reimbursements and compares them against the projected values.
func (p *Projector) CheckUserTotals(ctx context.Context, userID string) (UserDrift, error) {
	u, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return UserDrift{}, fmt.Errorf("load user: %w", err)
	}
	recomputed, err := p.store.RecomputeUserTotals(ctx, userID)
	if err != nil {
		return UserDrift{}, err
	}
	return UserDrift{
		UserID: userID,
		Projected: storage.UserTotals{
			Allocated:  u.Allocated,
			Spent:      u.Spent,
			Reimbursed: u.Reimbursed,
			BudgetLeft: u.BudgetLeft,
		},
		Recomputed: recomputed,
	}, nil
}

// RefreshUserTotals overwrites the user's projected totals with a fresh
// recomputation from source rows. The recompute and the overwrite run in a
// single write transaction, so a repair serializes with live ledger writers
// instead of racing them.
func (p *Projector) RefreshUserTotals(ctx context.Context, userID string) (storage.UserTotals, error) {
	return p.store.RepairUserTotals(ctx, userID)
}
