package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. It is the
// default delivery adapter when no external channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (l *LogNotifier) Deliver(ctx context.Context, n Notification) error {
	slog.InfoContext(ctx, "settlement notification delivered",
		"user_id", n.UserID,
		"reimbursement_id", n.ReimbursementID,
		"expense_id", n.ExpenseID,
		"amount_cents", n.AmountCents,
		"subject", n.Subject,
	)
	return nil
}
