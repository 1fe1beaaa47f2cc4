package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
)

// ReimbursementService opens and settles reimbursement obligations.
type ReimbursementService struct {
	store    *storage.SQLiteRepository
	notifier SettlementNotifier
}

// NewReimbursementService creates the service. notifier may be nil, in which
// case settlement notifications are skipped.
func NewReimbursementService(store *storage.SQLiteRepository, notifier SettlementNotifier) *ReimbursementService {
	return &ReimbursementService{store: store, notifier: notifier}
}

// Open creates a reimbursement for the unfunded portion of an expense. The
// expense must belong to userID, must not already have one (calling Open
// twice for the same expense is a caller bug and is rejected, never merged),
// and amount must equal the expense's unfunded portion exactly.
func (s *ReimbursementService) Open(ctx context.Context, expenseID, userID string, amount core.Money) (core.Reimbursement, error) {
	if err := amount.Validate(); err != nil {
		return core.Reimbursement{}, err
	}
	rb, err := s.store.OpenReimbursement(ctx, expenseID, userID, amount.Cents)
	if err != nil {
		return core.Reimbursement{}, fmt.Errorf("open reimbursement: %w", err)
	}
	return rb, nil
}

// Settle marks the reimbursement paid and credits the owner's reimbursed
// total. Settling twice returns ErrAlreadySettled with no double-credit. The
// settlement notification fires after commit and never affects the outcome.
func (s *ReimbursementService) Settle(ctx context.Context, id string) (core.Reimbursement, error) {
	rb, err := s.store.SettleReimbursement(ctx, id)
	if err != nil {
		return core.Reimbursement{}, fmt.Errorf("settle reimbursement: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifySettlement(ctx, rb); err != nil {
			// The settlement already committed; notification failure is
			// an operational issue, not a ledger one.
			slog.ErrorContext(ctx, "Failed to publish settlement notification",
				"reimbursement_id", rb.ID,
				"user_id", rb.UserID,
				"error", err)
		}
	}
	return rb, nil
}

// Get retrieves a single reimbursement.
func (s *ReimbursementService) Get(ctx context.Context, id string) (core.Reimbursement, error) {
	return s.store.GetReimbursement(ctx, id)
}

// List returns reimbursements matching the filter, newest first.
func (s *ReimbursementService) List(ctx context.Context, f storage.ReimbursementFilter) ([]core.Reimbursement, error) {
	return s.store.ListReimbursements(ctx, f)
}
