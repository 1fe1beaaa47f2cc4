package notify

import "context"

// Notification is the message handed to a delivery adapter after a
// reimbursement settles.
type Notification struct {
	UserID          string
	ReimbursementID string
	ExpenseID       string
	AmountCents     int64
	Subject         string
	Body            string
}

// Notifier delivers settlement notifications to users.
type Notifier interface {
	Deliver(ctx context.Context, n Notification) error
}
