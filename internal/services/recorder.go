package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
)

// ExpenseService records spend events against budgets.
type ExpenseService struct {
	store *storage.SQLiteRepository
}

func NewExpenseService(store *storage.SQLiteRepository) *ExpenseService {
	return &ExpenseService{store: store}
}

// RecordInput describes one spend event. A zero Period defaults to the
// current calendar month; backdated entries pass their own period so the
// correct historical budget is charged. RequestID, when set, makes a verbatim
// retry of the same call idempotent.
type RecordInput struct {
	UserID        string
	Department    string
	SubDepartment string
	Amount        core.Money
	Period        core.Period
	RequestID     string
}

// Record persists the expense, draws down the period's budget, opens a
// reimbursement for any unfunded remainder, and refreshes the owner's totals,
// all as one atomic unit. A missing budget never blocks the expense; the
// whole amount becomes unfunded instead.
func (s *ExpenseService) Record(ctx context.Context, in RecordInput) (core.Expense, error) {
	return s.record(ctx, in, core.ScopePersonal)
}

// RecordOrganization records organization-level spend that bypasses personal
// budgets entirely: no draw-down, no reimbursement, no user totals.
func (s *ExpenseService) RecordOrganization(ctx context.Context, in RecordInput) (core.Expense, error) {
	return s.record(ctx, in, core.ScopeOrganization)
}

func (s *ExpenseService) record(ctx context.Context, in RecordInput, scope core.ExpenseScope) (core.Expense, error) {
	if err := in.Amount.Validate(); err != nil {
		return core.Expense{}, err
	}
	if in.Period.IsZero() {
		in.Period = core.CurrentPeriod(time.Now())
	}
	if err := in.Period.Validate(); err != nil {
		return core.Expense{}, err
	}

	e, replayed, err := s.store.RecordExpense(ctx, storage.RecordExpenseParams{
		UserID:        in.UserID,
		Period:        in.Period,
		Scope:         scope,
		Department:    in.Department,
		SubDepartment: in.SubDepartment,
		AmountCents:   in.Amount.Cents,
		RequestID:     in.RequestID,
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("record expense: %w", err)
	}
	if replayed {
		slog.InfoContext(ctx, "Expense record replayed for request id",
			"expense_id", e.ID,
			"request_id", in.RequestID)
	}
	return e, nil
}

// Get retrieves a single expense.
func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

// List returns expenses matching the filter, newest first.
func (s *ExpenseService) List(ctx context.Context, f storage.ExpenseFilter) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, f)
}
