package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
)

// AllocateBudgetParams are the inputs to an allocation write. Validation
// happens in the service layer; the store trusts its inputs.
type AllocateBudgetParams struct {
	UserID         string
	Period         core.Period
	Type           core.BudgetType
	AllocatedCents int64
}

// AllocateBudget creates or replaces the budget for (user, month, year, type).
// Re-allocating in the same period updates the existing row; allocatedAmount
// is a replacement, not a top-up. The owner's allocated total is adjusted by
// the delta inside the same transaction.
func (r *SQLiteRepository) AllocateBudget(ctx context.Context, p AllocateBudgetParams) (core.Budget, error) {
	var out core.Budget
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, p.UserID); err != nil {
			return err
		}

		now := time.Now().UTC()
		existing, err := getBudgetTx(ctx, tx, p.UserID, p.Period, p.Type)
		switch {
		case errors.Is(err, core.ErrBudgetNotFound):
			out = core.Budget{
				ID:        uuid.NewString(),
				UserID:    p.UserID,
				Period:    p.Period,
				Type:      p.Type,
				Allocated: core.Money{Cents: p.AllocatedCents},
				Remaining: core.Money{Cents: p.AllocatedCents},
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO budgets (id, user_id, month, year, budget_type,
					allocated_cents, spent_cents, remaining_cents, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
				out.ID, out.UserID, out.Period.Month, out.Period.Year, out.Type,
				out.Allocated.Cents, out.Remaining.Cents, out.CreatedAt, out.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert budget: %w", err)
			}
			return applyAllocationDelta(ctx, tx, p.UserID, p.AllocatedCents)

		case err != nil:
			return err

		default:
			// Administrative correction: replace allocatedAmount and
			// re-derive remaining from the spent that already happened.
			out = existing
			out.Allocated = core.Money{Cents: p.AllocatedCents}
			out.Remaining = core.ClampRemaining(out.Allocated, out.Spent)
			out.UpdatedAt = now
			_, err = tx.ExecContext(ctx, `
				UPDATE budgets
				SET allocated_cents = ?, remaining_cents = MAX(0, ? - spent_cents), updated_at = ?
				WHERE id = ?`,
				p.AllocatedCents, p.AllocatedCents, now, existing.ID)
			if err != nil {
				return fmt.Errorf("update budget allocation: %w", err)
			}
			return applyAllocationDelta(ctx, tx, p.UserID, p.AllocatedCents-existing.Allocated.Cents)
		}
	})
	if err != nil {
		return core.Budget{}, err
	}

	slog.InfoContext(ctx, "Budget allocated",
		"budget_id", out.ID,
		"user_id", out.UserID,
		"month", out.Period.Month,
		"year", out.Period.Year,
		"budget_type", string(out.Type),
		"allocated_cents", out.Allocated.Cents)
	return out, nil
}

// GetBudget returns the budget for (user, month, year, type).
func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string, period core.Period, t core.BudgetType) (core.Budget, error) {
	return scanBudget(r.db.QueryRowContext(ctx, `
		SELECT id, user_id, month, year, budget_type, allocated_cents,
		       spent_cents, remaining_cents, created_at, updated_at
		FROM budgets
		WHERE user_id = ? AND month = ? AND year = ? AND budget_type = ?`,
		userID, period.Month, period.Year, t))
}

func getBudgetTx(ctx context.Context, tx *sql.Tx, userID string, period core.Period, t core.BudgetType) (core.Budget, error) {
	return scanBudget(tx.QueryRowContext(ctx, `
		SELECT id, user_id, month, year, budget_type, allocated_cents,
		       spent_cents, remaining_cents, created_at, updated_at
		FROM budgets
		WHERE user_id = ? AND month = ? AND year = ? AND budget_type = ?`,
		userID, period.Month, period.Year, t))
}

// drawDownBudget increments the budget's spent amount by fundedCents, guarded
// so the increment never pushes spent past allocated. It returns false when
// the guard rejected the increment, in which case the caller must re-read the
// remaining amount and clamp its split.
func drawDownBudget(ctx context.Context, tx *sql.Tx, budgetID string, fundedCents int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE budgets
		SET spent_cents = spent_cents + ?,
		    remaining_cents = MAX(0, allocated_cents - (spent_cents + ?)),
		    updated_at = ?
		WHERE id = ? AND spent_cents + ? <= allocated_cents`,
		fundedCents, fundedCents, time.Now().UTC(), budgetID, fundedCents)
	if err != nil {
		return false, fmt.Errorf("draw down budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("draw down rows affected: %w", err)
	}
	return n > 0, nil
}

func scanBudget(row rowScanner) (core.Budget, error) {
	var b core.Budget
	err := row.Scan(&b.ID, &b.UserID, &b.Period.Month, &b.Period.Year, &b.Type,
		&b.Allocated.Cents, &b.Spent.Cents, &b.Remaining.Cents, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.ErrBudgetNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("scan budget: %w", err)
	}
	return b, nil
}
