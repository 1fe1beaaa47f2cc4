// Package services holds the ledger's operations: budget allocation, expense
// recording, reimbursement processing, and the aggregate projector with its
// reconciliation loop. Services validate inputs and orchestrate; the storage
// layer owns transactional semantics.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
)

// AllocationService creates and corrects per-period budgets.
type AllocationService struct {
	store *storage.SQLiteRepository
}

func NewAllocationService(store *storage.SQLiteRepository) *AllocationService {
	return &AllocationService{store: store}
}

// AllocateInput describes one allocation action. A zero Period defaults to
// the current calendar month at the moment of allocation; a zero Type
// defaults to a normal budget.
type AllocateInput struct {
	UserID string
	Period core.Period
	Type   core.BudgetType
	Amount core.Money
}

// Allocate creates the budget for (user, period, type) or, when one already
// exists, replaces its allocated amount. Replacement is an administrative
// correction, not an additive top-up. Validation failures reject the call
// before any write.
func (s *AllocationService) Allocate(ctx context.Context, in AllocateInput) (core.Budget, error) {
	if in.Amount.IsNegative() {
		return core.Budget{}, core.ErrInvalidAmount
	}
	if in.Type == "" {
		in.Type = core.BudgetNormal
	}
	if err := in.Type.Validate(); err != nil {
		return core.Budget{}, err
	}
	if in.Period.IsZero() {
		in.Period = core.CurrentPeriod(time.Now())
	}
	if err := in.Period.Validate(); err != nil {
		return core.Budget{}, err
	}

	b, err := s.store.AllocateBudget(ctx, storage.AllocateBudgetParams{
		UserID:         in.UserID,
		Period:         in.Period,
		Type:           in.Type,
		AllocatedCents: in.Amount.Cents,
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("allocate budget: %w", err)
	}
	return b, nil
}

// GetBudget returns the budget for (user, period, type).
func (s *AllocationService) GetBudget(ctx context.Context, userID string, period core.Period, t core.BudgetType) (core.Budget, error) {
	if t == "" {
		t = core.BudgetNormal
	}
	return s.store.GetBudget(ctx, userID, period, t)
}
