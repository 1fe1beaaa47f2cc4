package core

import "errors"

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidYear       = errors.New("invalid year")
	ErrInvalidBudgetType = errors.New("invalid budget type")

	// ErrReimbursementMismatch is returned when opening a reimbursement whose
	// amount does not equal the expense's unfunded portion. A fully funded
	// expense has no unfunded portion and can never carry a reimbursement.
	ErrReimbursementMismatch = errors.New("reimbursement amount must equal the expense's unfunded portion")

	ErrUserNotFound          = errors.New("user not found")
	ErrBudgetNotFound        = errors.New("budget not found")
	ErrExpenseNotFound       = errors.New("expense not found")
	ErrReimbursementNotFound = errors.New("reimbursement not found")

	// ErrDuplicateReimbursement is returned when a reimbursement already
	// exists for the expense. An expense carries at most one.
	ErrDuplicateReimbursement = errors.New("expense already has a reimbursement")

	// ErrAlreadySettled is returned when settling a reimbursement that has
	// already been settled. Settlement is a one-way, exactly-once transition.
	ErrAlreadySettled = errors.New("reimbursement already settled")

	// ErrLedgerDrift is returned by reconciliation when a user's projected
	// totals do not match a recomputation from source rows.
	ErrLedgerDrift = errors.New("projected totals drifted from source rows")

	// ErrConsistency is an invariant check failing at commit time. Never
	// silently corrected; the operation aborts with no partial state.
	ErrConsistency = errors.New("ledger consistency violation")
)

// IsValidation reports whether err is an input validation failure that the
// caller should surface as a bad-request condition.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInvalidYear) ||
		errors.Is(err, ErrInvalidBudgetType) ||
		errors.Is(err, ErrReimbursementMismatch)
}

// IsNotFound reports whether err is an unknown-reference failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrBudgetNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrReimbursementNotFound)
}

// IsConflict reports whether err is a state conflict on an otherwise valid
// request (duplicate reimbursement, double settlement).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateReimbursement) ||
		errors.Is(err, ErrAlreadySettled)
}
