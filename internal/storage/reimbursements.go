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

// OpenReimbursement opens an obligation to pay amountCents back to userID for
// the given expense. The expense must be owned by userID, must not already
// carry a reimbursement (an expense has at most one), and amountCents must
// equal the expense's unfunded portion — a fully funded expense owes nothing.
func (r *SQLiteRepository) OpenReimbursement(ctx context.Context, expenseID, userID string, amountCents int64) (core.Reimbursement, error) {
	var out core.Reimbursement
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		expense, err := getExpenseTx(ctx, tx, expenseID)
		if err != nil {
			return err
		}
		if expense.UserID != userID {
			// Ownership mismatch reads the same as an unknown reference.
			return core.ErrExpenseNotFound
		}
		if expense.ReimbursementID != "" {
			return core.ErrDuplicateReimbursement
		}
		if expense.FromReimbursement.Cents == 0 || amountCents != expense.FromReimbursement.Cents {
			return core.ErrReimbursementMismatch
		}

		rb, err := insertReimbursement(ctx, tx, userID, expenseID, amountCents, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := linkReimbursement(ctx, tx, expenseID, rb.ID); err != nil {
			return err
		}
		out = rb
		return nil
	})
	if err != nil {
		return core.Reimbursement{}, err
	}

	slog.InfoContext(ctx, "Reimbursement opened",
		"reimbursement_id", out.ID,
		"expense_id", out.ExpenseID,
		"user_id", out.UserID,
		"amount_cents", out.Amount.Cents)
	return out, nil
}

// SettleReimbursement marks the reimbursement paid, exactly once. The
// transition is a conditional update so two concurrent settlements cannot
// both succeed; the loser gets ErrAlreadySettled. The owner's reimbursed
// total is incremented in the same transaction.
func (r *SQLiteRepository) SettleReimbursement(ctx context.Context, id string) (core.Reimbursement, error) {
	var out core.Reimbursement
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE reimbursements
			SET is_reimbursed = 1, reimbursed_at = ?
			WHERE id = ? AND is_reimbursed = 0`,
			now, id)
		if err != nil {
			return fmt.Errorf("settle reimbursement: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("settle rows affected: %w", err)
		}
		if n == 0 {
			// Distinguish double settlement from an unknown reference.
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM reimbursements WHERE id = ?`, id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrReimbursementNotFound
			}
			if err != nil {
				return fmt.Errorf("check reimbursement exists: %w", err)
			}
			return core.ErrAlreadySettled
		}

		out, err = getReimbursementTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return applySettlementDelta(ctx, tx, out.UserID, out.Amount.Cents)
	})
	if err != nil {
		return core.Reimbursement{}, err
	}

	slog.InfoContext(ctx, "Reimbursement settled",
		"reimbursement_id", out.ID,
		"user_id", out.UserID,
		"amount_cents", out.Amount.Cents)
	return out, nil
}

// GetReimbursement retrieves a single reimbursement by ID.
func (r *SQLiteRepository) GetReimbursement(ctx context.Context, id string) (core.Reimbursement, error) {
	return scanReimbursement(r.db.QueryRowContext(ctx, reimbursementSelect+` WHERE id = ?`, id))
}

// ReimbursementFilter narrows ListReimbursements. Zero fields are ignored;
// Settled filters on settlement state when non-nil.
type ReimbursementFilter struct {
	UserID  string
	Settled *bool
}

// ListReimbursements returns reimbursements matching the filter, newest first.
func (r *SQLiteRepository) ListReimbursements(ctx context.Context, f ReimbursementFilter) ([]core.Reimbursement, error) {
	query := reimbursementSelect + ` WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Settled != nil {
		query += ` AND is_reimbursed = ?`
		args = append(args, *f.Settled)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reimbursements: %w", err)
	}
	defer rows.Close()

	var reimbursements []core.Reimbursement
	for rows.Next() {
		rb, err := scanReimbursement(rows)
		if err != nil {
			return nil, err
		}
		reimbursements = append(reimbursements, rb)
	}
	return reimbursements, rows.Err()
}

func insertReimbursement(ctx context.Context, tx *sql.Tx, userID, expenseID string, amountCents int64, now time.Time) (core.Reimbursement, error) {
	rb := core.Reimbursement{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpenseID: expenseID,
		Amount:    core.Money{Cents: amountCents},
		CreatedAt: now,
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reimbursements (id, user_id, expense_id, amount_cents, is_reimbursed, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		rb.ID, rb.UserID, rb.ExpenseID, rb.Amount.Cents, rb.CreatedAt)
	if err != nil {
		return core.Reimbursement{}, fmt.Errorf("insert reimbursement: %w", err)
	}
	return rb, nil
}

// linkReimbursement sets the expense's reimbursement back-reference. Set at
// most once; the expense is otherwise immutable.
func linkReimbursement(ctx context.Context, tx *sql.Tx, expenseID, reimbursementID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE expenses SET reimbursement_id = ?
		WHERE id = ? AND reimbursement_id IS NULL`,
		reimbursementID, expenseID)
	if err != nil {
		return fmt.Errorf("link reimbursement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrDuplicateReimbursement
	}
	return nil
}

func getReimbursementTx(ctx context.Context, tx *sql.Tx, id string) (core.Reimbursement, error) {
	return scanReimbursement(tx.QueryRowContext(ctx, reimbursementSelect+` WHERE id = ?`, id))
}

const reimbursementSelect = `
	SELECT id, user_id, expense_id, amount_cents, is_reimbursed, reimbursed_at, created_at
	FROM reimbursements`

func scanReimbursement(row rowScanner) (core.Reimbursement, error) {
	var rb core.Reimbursement
	var reimbursedAt sql.NullTime
	err := row.Scan(&rb.ID, &rb.UserID, &rb.ExpenseID, &rb.Amount.Cents,
		&rb.IsReimbursed, &reimbursedAt, &rb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Reimbursement{}, core.ErrReimbursementNotFound
	}
	if err != nil {
		return core.Reimbursement{}, fmt.Errorf("scan reimbursement: %w", err)
	}
	if reimbursedAt.Valid {
		t := reimbursedAt.Time
		rb.ReimbursedAt = &t
	}
	return rb, nil
}
