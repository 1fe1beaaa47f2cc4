package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/amqp"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/notify"
)

// reimbursementGetter is the slice of the storage layer the worker needs
// to enrich a notice with current ledger state.
type reimbursementGetter interface {
	GetReimbursement(ctx context.Context, id string) (core.Reimbursement, error)
}

// NotifyWorker turns settlement notices from the queue into user-facing
// notifications.
type NotifyWorker struct {
	store    reimbursementGetter
	notifier notify.Notifier
}

func NewNotifyWorker(store reimbursementGetter, notifier notify.Notifier) *NotifyWorker {
	return &NotifyWorker{
		store:    store,
		notifier: notifier,
	}
}

// HandleSettlementNotice processes a single settlement notice from AMQP.
func (w *NotifyWorker) HandleSettlementNotice(ctx context.Context, msg *amqp.SettlementNotice) error {
	slog.InfoContext(ctx, "processing settlement notice",
		"reimbursement_id", msg.ReimbursementID,
		"user_id", msg.UserID)

	// Verify the notice against the ledger before delivering. A notice for
	// a reimbursement the database no longer knows about is dropped, not
	// requeued: requeueing would loop forever.
	reimb, err := w.store.GetReimbursement(ctx, msg.ReimbursementID)
	if err != nil {
		if core.IsNotFound(err) {
			slog.WarnContext(ctx, "settlement notice refers to unknown reimbursement, dropping",
				"reimbursement_id", msg.ReimbursementID)
			return nil
		}
		return fmt.Errorf("get reimbursement from storage: %w", err)
	}

	if !reimb.IsReimbursed {
		slog.WarnContext(ctx, "settlement notice for unsettled reimbursement, dropping",
			"reimbursement_id", msg.ReimbursementID)
		return nil
	}

	n := notify.Notification{
		UserID:          reimb.UserID,
		ReimbursementID: reimb.ID,
		ExpenseID:       reimb.ExpenseID,
		AmountCents:     reimb.Amount.Cents,
		Subject:         "Reimbursement settled",
		Body:            fmt.Sprintf("Your reimbursement of %.2f has been paid out.", reimb.Amount.Euros()),
	}

	if err := w.notifier.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver settlement notification: %w", err)
	}

	slog.InfoContext(ctx, "settlement notification sent",
		"reimbursement_id", reimb.ID,
		"user_id", reimb.UserID,
		"amount_cents", reimb.Amount.Cents)

	return nil
}
