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

// RecordExpenseParams are the inputs to an expense write. Validation happens
// in the service layer.
type RecordExpenseParams struct {
	UserID        string
	Period        core.Period
	Scope         core.ExpenseScope
	Department    string
	SubDepartment string
	AmountCents   int64
	RequestID     string // optional idempotency key
}

// RecordExpense applies the full expense write as one transaction: persist
// the expense, draw down the owning budget, open a reimbursement for any
// unfunded remainder, and project the owner's totals. Either all four effects
// land or none do.
//
// The funded/unfunded split is finalized at commit time: the draw-down is a
// guarded increment, and if the guard rejects it the remaining amount is
// re-read inside the transaction and the split clamped to whatever is left.
//
// When params carry a RequestID that was already recorded, the original
// expense is returned with replayed=true and nothing is written.
func (r *SQLiteRepository) RecordExpense(ctx context.Context, p RecordExpenseParams) (core.Expense, bool, error) {
	var (
		out      core.Expense
		replayed bool
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		out, replayed = core.Expense{}, false

		if err := userExists(ctx, tx, p.UserID); err != nil {
			return err
		}

		if p.RequestID != "" {
			prior, err := getExpenseByRequestIDTx(ctx, tx, p.RequestID)
			if err == nil {
				out, replayed = prior, true
				return nil
			}
			if !errors.Is(err, core.ErrExpenseNotFound) {
				return err
			}
		}

		now := time.Now().UTC()
		out = core.Expense{
			ID:            uuid.NewString(),
			UserID:        p.UserID,
			Scope:         p.Scope,
			Department:    p.Department,
			SubDepartment: p.SubDepartment,
			Amount:        core.Money{Cents: p.AmountCents},
			Period:        p.Period,
			RequestID:     p.RequestID,
			CreatedAt:     now,
		}

		if p.Scope == core.ScopeOrganization {
			// Organization-level spend bypasses personal budgets: no
			// draw-down, no reimbursement, no user-total projection.
			return insertExpense(ctx, tx, out)
		}

		budget, err := getBudgetTx(ctx, tx, p.UserID, p.Period, core.BudgetNormal)
		if err != nil && !errors.Is(err, core.ErrBudgetNotFound) {
			return err
		}

		if err == nil {
			out.BudgetID = budget.ID
			out.FromAllocation, out.FromReimbursement = core.Split(out.Amount, budget.Remaining)
			if out.FromAllocation.Cents > 0 {
				ok, err := drawDownBudget(ctx, tx, budget.ID, out.FromAllocation.Cents)
				if err != nil {
					return err
				}
				if !ok {
					// The split decided above would overdraw; clamp to
					// whatever remains at commit time.
					fresh, err := getBudgetTx(ctx, tx, p.UserID, p.Period, core.BudgetNormal)
					if err != nil {
						return err
					}
					out.FromAllocation, out.FromReimbursement = core.Split(out.Amount, fresh.Remaining)
					if out.FromAllocation.Cents > 0 {
						ok, err := drawDownBudget(ctx, tx, budget.ID, out.FromAllocation.Cents)
						if err != nil {
							return err
						}
						if !ok {
							return fmt.Errorf("draw-down rejected after clamping to remaining: %w", core.ErrConsistency)
						}
					}
				}
			}
		} else {
			// No budget for the period: the whole amount is unfunded. An
			// expense never blocks on a missing allocation.
			out.FromAllocation = core.Money{}
			out.FromReimbursement = out.Amount
		}

		if err := insertExpense(ctx, tx, out); err != nil {
			return err
		}

		if out.FromReimbursement.Cents > 0 {
			rb, err := insertReimbursement(ctx, tx, p.UserID, out.ID, out.FromReimbursement.Cents, now)
			if err != nil {
				return err
			}
			out.ReimbursementID = rb.ID
			if err := linkReimbursement(ctx, tx, out.ID, rb.ID); err != nil {
				return err
			}
		}

		return applyExpenseDelta(ctx, tx, p.UserID, out.Amount.Cents)
	})
	if err != nil {
		return core.Expense{}, false, err
	}

	slog.InfoContext(ctx, "Expense recorded",
		"expense_id", out.ID,
		"user_id", out.UserID,
		"amount_cents", out.Amount.Cents,
		"from_allocation_cents", out.FromAllocation.Cents,
		"from_reimbursement_cents", out.FromReimbursement.Cents,
		"replayed", replayed)
	return out, replayed, nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, e core.Expense) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, budget_id, reimbursement_id, scope,
			department, sub_department, amount_cents, from_allocation_cents,
			from_reimbursement_cents, month, year, request_id, created_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, nullString(e.BudgetID), e.Scope,
		e.Department, e.SubDepartment, e.Amount.Cents, e.FromAllocation.Cents,
		e.FromReimbursement.Cents, e.Period.Month, e.Period.Year,
		nullString(e.RequestID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

// GetExpense retrieves a single expense by ID.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return scanExpense(r.db.QueryRowContext(ctx, expenseSelect+` WHERE id = ?`, id))
}

func getExpenseByRequestIDTx(ctx context.Context, tx *sql.Tx, requestID string) (core.Expense, error) {
	return scanExpense(tx.QueryRowContext(ctx, expenseSelect+` WHERE request_id = ?`, requestID))
}

func getExpenseTx(ctx context.Context, tx *sql.Tx, id string) (core.Expense, error) {
	return scanExpense(tx.QueryRowContext(ctx, expenseSelect+` WHERE id = ?`, id))
}

// ExpenseFilter narrows ListExpenses. Zero fields are ignored.
type ExpenseFilter struct {
	UserID string
	Month  int
	Year   int
	Page   int // 1-based; defaults to 1
	Limit  int // defaults to 50
}

// ListExpenses returns expenses matching the filter, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error) {
	query := expenseSelect + ` WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Month != 0 {
		query += ` AND month = ?`
		args = append(args, f.Month)
	}
	if f.Year != 0 {
		query += ` AND year = ?`
		args = append(args, f.Year)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

const expenseSelect = `
	SELECT id, user_id, budget_id, reimbursement_id, scope, department,
	       sub_department, amount_cents, from_allocation_cents,
	       from_reimbursement_cents, month, year, request_id, created_at
	FROM expenses`

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var budgetID, reimbID, requestID sql.NullString
	err := row.Scan(&e.ID, &e.UserID, &budgetID, &reimbID, &e.Scope, &e.Department,
		&e.SubDepartment, &e.Amount.Cents, &e.FromAllocation.Cents,
		&e.FromReimbursement.Cents, &e.Period.Month, &e.Period.Year, &requestID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.BudgetID = budgetID.String
	e.ReimbursementID = reimbID.String
	e.RequestID = requestID.String
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
