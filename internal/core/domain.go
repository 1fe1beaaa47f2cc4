package core

import (
	"time"
)

const (
	// BudgetNormal is a regular monthly allocation.
	BudgetNormal BudgetType = "normal"
	// BudgetReimbursement marks an allocation funded out of settled
	// reimbursements rather than fresh money.
	BudgetReimbursement BudgetType = "reimbursement"
)

const (
	// ScopePersonal expenses draw down the owner's monthly budget.
	ScopePersonal ExpenseScope = "personal"
	// ScopeOrganization expenses bypass personal budgets entirely and never
	// open reimbursements.
	ScopeOrganization ExpenseScope = "organization"
)

type (
	BudgetType   string
	ExpenseScope string

	// Period is an explicit (month, year) pair. The ledger never infers a
	// period from wall-clock time below the service boundary.
	Period struct {
		Month int // 1-12
		Year  int
	}

	Money struct {
		Cents int64
	}

	// User carries identity plus denormalized running totals. The totals are
	// mutated only by projector statements inside ledger transactions.
	User struct {
		ID         string
		Name       string
		Email      string
		Role       string
		Allocated  Money
		Spent      Money
		Reimbursed Money
		BudgetLeft Money
		Active     bool
		CreatedAt  time.Time
	}

	// Budget is one allocation of funds to one user for one
	// (month, year, type) triple. At most one exists per triple.
	Budget struct {
		ID        string
		UserID    string
		Period    Period
		Type      BudgetType
		Allocated Money
		Spent     Money
		Remaining Money
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Expense is a single spend event, immutable once recorded except for
	// the reimbursement back-reference, which is set at most once.
	Expense struct {
		ID                string
		UserID            string
		BudgetID          string // empty when no budget was charged
		ReimbursementID   string // empty until a reimbursement is opened
		Scope             ExpenseScope
		Department        string
		SubDepartment     string
		Amount            Money
		FromAllocation    Money
		FromReimbursement Money
		Period            Period
		RequestID         string // optional client idempotency key
		CreatedAt         time.Time
	}

	// Reimbursement is an obligation to pay Amount back to the owner of
	// ExpenseID. Amount is fixed at creation and never changes.
	Reimbursement struct {
		ID           string
		UserID       string
		ExpenseID    string
		Amount       Money
		IsReimbursed bool
		ReimbursedAt *time.Time
		CreatedAt    time.Time
	}
)

// CurrentPeriod returns the period of the given instant.
func CurrentPeriod(now time.Time) Period {
	return Period{Month: int(now.Month()), Year: now.Year()}
}

// IsZero reports whether the period was omitted by the caller.
func (p Period) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < 1000 || p.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsNegative reports whether the amount is below zero. Allocations accept
// zero, expenses do not.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns the difference of two amounts.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// ClampRemaining derives a budget's remaining amount. Spent may exceed
// allocated after a downward administrative correction, so the result is
// clamped at zero.
func ClampRemaining(allocated, spent Money) Money {
	if r := allocated.Cents - spent.Cents; r > 0 {
		return Money{Cents: r}
	}
	return Money{}
}

// Split decides how much of amount a budget with the given remaining funds can
// cover. It returns the funded portion and the unfunded remainder.
func Split(amount, remaining Money) (fromAllocation, fromReimbursement Money) {
	fromAllocation = amount
	if remaining.Cents < amount.Cents {
		fromAllocation = remaining
	}
	if fromAllocation.Cents < 0 {
		fromAllocation = Money{}
	}
	fromReimbursement = Money{Cents: amount.Cents - fromAllocation.Cents}
	return fromAllocation, fromReimbursement
}

func (t BudgetType) Validate() error {
	switch t {
	case BudgetNormal, BudgetReimbursement:
		return nil
	default:
		return ErrInvalidBudgetType
	}
}
