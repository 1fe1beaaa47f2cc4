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

// CreateUser provisions a user with zeroed totals.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "user"
	}
	u.Active = true
	u.CreatedAt = time.Now().UTC()
	u.Allocated, u.Spent, u.Reimbursed, u.BudgetLeft = core.Money{}, core.Money{}, core.Money{}, core.Money{}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		u.ID, u.Name, u.Email, u.Role, u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User provisioned", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// GetUser returns the user with its projected totals.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, allocated_cents, spent_cents,
		       reimbursed_cents, budget_left_cents, active, created_at
		FROM users WHERE id = ?`, id))
}

// UserTotals is a recomputation of a user's aggregates from source rows.
// BudgetLeft is derived from the other fields, never summed independently.
type UserTotals struct {
	Allocated  core.Money
	Spent      core.Money
	Reimbursed core.Money
	BudgetLeft core.Money
}

// RecomputeUserTotals derives the user's totals from budgets, expenses, and
// reimbursements. O(n) over the user's rows; reconciliation only, never on
// the hot path.
func (r *SQLiteRepository) RecomputeUserTotals(ctx context.Context, userID string) (UserTotals, error) {
	return recomputeUserTotals(ctx, r.db, userID)
}

func recomputeUserTotals(ctx context.Context, q rowQuerier, userID string) (UserTotals, error) {
	var t UserTotals
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(allocated_cents) FROM budgets WHERE user_id = ?), 0),
			COALESCE((SELECT SUM(amount_cents) FROM expenses WHERE user_id = ? AND scope = 'personal'), 0),
			COALESCE((SELECT SUM(amount_cents) FROM reimbursements WHERE user_id = ? AND is_reimbursed = 1), 0)`,
		userID, userID, userID).
		Scan(&t.Allocated.Cents, &t.Spent.Cents, &t.Reimbursed.Cents)
	if err != nil {
		return UserTotals{}, fmt.Errorf("recompute user totals: %w", err)
	}
	t.BudgetLeft = core.ClampRemaining(t.Allocated, t.Spent)
	return t, nil
}

// RepairUserTotals recomputes the user's totals from source rows and
// overwrites the projection with them, in one write transaction. Recompute
// and overwrite must not be split across transactions: a ledger write
// committing between them would have its projection delta erased.
func (r *SQLiteRepository) RepairUserTotals(ctx context.Context, userID string) (UserTotals, error) {
	var t UserTotals
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = recomputeUserTotals(ctx, tx, userID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET allocated_cents = ?, spent_cents = ?,
			       reimbursed_cents = ?, budget_left_cents = ?
			WHERE id = ?`,
			t.Allocated.Cents, t.Spent.Cents, t.Reimbursed.Cents, t.BudgetLeft.Cents, userID)
		if err != nil {
			return fmt.Errorf("repair user totals: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return UserTotals{}, err
	}
	return t, nil
}

// ListUserIDs returns the IDs of all active users, for reconciliation sweeps.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func userExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("check user exists: %w", err)
	}
	return nil
}

// applyAllocationDelta adjusts the owner's allocated total by deltaCents and
// re-derives budget_left from the pre-update row values in one statement.
func applyAllocationDelta(ctx context.Context, tx *sql.Tx, userID string, deltaCents int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET allocated_cents = allocated_cents + ?,
		    budget_left_cents = MAX(0, (allocated_cents + ?) - spent_cents)
		WHERE id = ?`,
		deltaCents, deltaCents, userID)
	if err != nil {
		return fmt.Errorf("apply allocation delta: %w", err)
	}
	return nil
}

// applyExpenseDelta adjusts the owner's spent total by deltaCents.
func applyExpenseDelta(ctx context.Context, tx *sql.Tx, userID string, deltaCents int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET spent_cents = spent_cents + ?,
		    budget_left_cents = MAX(0, allocated_cents - (spent_cents + ?))
		WHERE id = ?`,
		deltaCents, deltaCents, userID)
	if err != nil {
		return fmt.Errorf("apply expense delta: %w", err)
	}
	return nil
}

// applySettlementDelta adjusts the owner's reimbursed total by deltaCents.
func applySettlementDelta(ctx context.Context, tx *sql.Tx, userID string, deltaCents int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET reimbursed_cents = reimbursed_cents + ? WHERE id = ?`,
		deltaCents, userID)
	if err != nil {
		return fmt.Errorf("apply settlement delta: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanUser(row rowScanner) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role,
		&u.Allocated.Cents, &u.Spent.Cents, &u.Reimbursed.Cents, &u.BudgetLeft.Cents,
		&u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
