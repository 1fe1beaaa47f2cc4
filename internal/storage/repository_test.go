package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
)

// RepositoryTestSuite exercises the ledger store against a real SQLite file.
type RepositoryTestSuite struct {
	suite.Suite
	repo *SQLiteRepository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	repo, err := NewSQLiteRepository(filepath.Join(s.T().TempDir(), "ledger.db"))
	require.NoError(s.T(), err, "failed to open test database")
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositoryTestSuite) newUser(name string) core.User {
	u, err := s.repo.CreateUser(s.ctx, core.User{Name: name, Email: name + "@example.com"})
	require.NoError(s.T(), err)
	return u
}

func (s *RepositoryTestSuite) allocate(userID string, period core.Period, cents int64) core.Budget {
	b, err := s.repo.AllocateBudget(s.ctx, AllocateBudgetParams{
		UserID:         userID,
		Period:         period,
		Type:           core.BudgetNormal,
		AllocatedCents: cents,
	})
	require.NoError(s.T(), err)
	return b
}

func (s *RepositoryTestSuite) record(userID string, period core.Period, cents int64) core.Expense {
	e, replayed, err := s.repo.RecordExpense(s.ctx, RecordExpenseParams{
		UserID:      userID,
		Period:      period,
		Scope:       core.ScopePersonal,
		Department:  "engineering",
		AmountCents: cents,
	})
	require.NoError(s.T(), err)
	require.False(s.T(), replayed)
	return e
}

var march = core.Period{Month: 3, Year: 2025}

func (s *RepositoryTestSuite) TestAllocateCreatesBudget() {
	u := s.newUser("alice")
	b := s.allocate(u.ID, march, 100000)

	assert.Equal(s.T(), int64(100000), b.Allocated.Cents)
	assert.Equal(s.T(), int64(0), b.Spent.Cents)
	assert.Equal(s.T(), int64(100000), b.Remaining.Cents)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(100000), got.Allocated.Cents)
	assert.Equal(s.T(), int64(100000), got.BudgetLeft.Cents)
}

func (s *RepositoryTestSuite) TestAllocateTwiceReplacesNotAdds() {
	u := s.newUser("alice")
	first := s.allocate(u.ID, march, 500000)
	second := s.allocate(u.ID, march, 500000)

	// Same row updated, not a duplicate inserted.
	assert.Equal(s.T(), first.ID, second.ID)

	b, err := s.repo.GetBudget(s.ctx, u.ID, march, core.BudgetNormal)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(500000), b.Allocated.Cents)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(500000), got.Allocated.Cents, "replacement must not double the user total")
}

func (s *RepositoryTestSuite) TestAllocateDownwardCorrectionClampsRemaining() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)
	s.record(u.ID, march, 70000)

	b := s.allocate(u.ID, march, 50000)
	assert.Equal(s.T(), int64(50000), b.Allocated.Cents)
	assert.Equal(s.T(), int64(70000), b.Spent.Cents)
	assert.Equal(s.T(), int64(0), b.Remaining.Cents, "remaining clamps at zero when spent exceeds allocated")

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(50000), got.Allocated.Cents)
	assert.Equal(s.T(), int64(0), got.BudgetLeft.Cents)
}

func (s *RepositoryTestSuite) TestAllocateUnknownUser() {
	_, err := s.repo.AllocateBudget(s.ctx, AllocateBudgetParams{
		UserID:         "nope",
		Period:         march,
		Type:           core.BudgetNormal,
		AllocatedCents: 1000,
	})
	assert.ErrorIs(s.T(), err, core.ErrUserNotFound)
}

func (s *RepositoryTestSuite) TestAllocatePerPeriodBudgets() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)
	april := core.Period{Month: 4, Year: 2025}
	s.allocate(u.ID, april, 200000)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(300000), got.Allocated.Cents, "each period keeps its own budget row")
}

func (s *RepositoryTestSuite) TestRecordFullyFunded() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)

	e := s.record(u.ID, march, 70000)
	assert.Equal(s.T(), int64(70000), e.FromAllocation.Cents)
	assert.Equal(s.T(), int64(0), e.FromReimbursement.Cents)
	assert.Empty(s.T(), e.ReimbursementID)

	b, err := s.repo.GetBudget(s.ctx, u.ID, march, core.BudgetNormal)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(70000), b.Spent.Cents)
	assert.Equal(s.T(), int64(30000), b.Remaining.Cents)
}

func (s *RepositoryTestSuite) TestRecordPartiallyFundedOpensReimbursement() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)
	s.record(u.ID, march, 70000)

	e := s.record(u.ID, march, 50000)
	assert.Equal(s.T(), int64(30000), e.FromAllocation.Cents)
	assert.Equal(s.T(), int64(20000), e.FromReimbursement.Cents)
	require.NotEmpty(s.T(), e.ReimbursementID)

	rb, err := s.repo.GetReimbursement(s.ctx, e.ReimbursementID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), e.ID, rb.ExpenseID)
	assert.Equal(s.T(), int64(20000), rb.Amount.Cents)
	assert.False(s.T(), rb.IsReimbursed)
	assert.Nil(s.T(), rb.ReimbursedAt)

	b, err := s.repo.GetBudget(s.ctx, u.ID, march, core.BudgetNormal)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(0), b.Remaining.Cents)
	assert.Equal(s.T(), int64(100000), b.Spent.Cents, "spent never exceeds allocated")
}

func (s *RepositoryTestSuite) TestRecordWithoutBudgetIsFullyUnfunded() {
	u := s.newUser("alice")
	e := s.record(u.ID, march, 40000)

	assert.Empty(s.T(), e.BudgetID)
	assert.Equal(s.T(), int64(0), e.FromAllocation.Cents)
	assert.Equal(s.T(), int64(40000), e.FromReimbursement.Cents)
	assert.NotEmpty(s.T(), e.ReimbursementID)
}

func (s *RepositoryTestSuite) TestRecordReplayWithRequestID() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)

	params := RecordExpenseParams{
		UserID:      u.ID,
		Period:      march,
		Scope:       core.ScopePersonal,
		AmountCents: 30000,
		RequestID:   "req-001",
	}
	first, replayed, err := s.repo.RecordExpense(s.ctx, params)
	require.NoError(s.T(), err)
	require.False(s.T(), replayed)

	second, replayed, err := s.repo.RecordExpense(s.ctx, params)
	require.NoError(s.T(), err)
	assert.True(s.T(), replayed)
	assert.Equal(s.T(), first.ID, second.ID)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(30000), got.Spent.Cents, "replay must not double-count")

	b, err := s.repo.GetBudget(s.ctx, u.ID, march, core.BudgetNormal)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(30000), b.Spent.Cents)
}

func (s *RepositoryTestSuite) TestRecordOrganizationScopeBypassesBudget() {
	u := s.newUser("admin")
	s.allocate(u.ID, march, 100000)

	e, replayed, err := s.repo.RecordExpense(s.ctx, RecordExpenseParams{
		UserID:      u.ID,
		Period:      march,
		Scope:       core.ScopeOrganization,
		Department:  "facilities",
		AmountCents: 999900,
	})
	require.NoError(s.T(), err)
	require.False(s.T(), replayed)
	assert.Empty(s.T(), e.BudgetID)
	assert.Empty(s.T(), e.ReimbursementID)

	b, err := s.repo.GetBudget(s.ctx, u.ID, march, core.BudgetNormal)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(0), b.Spent.Cents, "organization spend must not touch the personal budget")

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(0), got.Spent.Cents, "organization spend must not touch user totals")
}

func (s *RepositoryTestSuite) TestOpenReimbursementRejectsDuplicate() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 5000)
	e := s.record(u.ID, march, 10000) // overrun already opened a reimbursement
	require.NotEmpty(s.T(), e.ReimbursementID)

	_, err := s.repo.OpenReimbursement(s.ctx, e.ID, u.ID, 5000)
	assert.ErrorIs(s.T(), err, core.ErrDuplicateReimbursement)
}

func (s *RepositoryTestSuite) TestOpenReimbursementRejectsFullyFunded() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)
	e := s.record(u.ID, march, 10000) // fully funded: nothing is owed
	require.Equal(s.T(), int64(0), e.FromReimbursement.Cents)

	_, err := s.repo.OpenReimbursement(s.ctx, e.ID, u.ID, 10000)
	assert.ErrorIs(s.T(), err, core.ErrReimbursementMismatch)

	got, err := s.repo.GetExpense(s.ctx, e.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), got.ReimbursementID)
}

func (s *RepositoryTestSuite) TestOpenReimbursementOwnershipMismatch() {
	alice := s.newUser("alice")
	bob := s.newUser("bob")
	s.allocate(alice.ID, march, 100000)
	e := s.record(alice.ID, march, 10000)

	_, err := s.repo.OpenReimbursement(s.ctx, e.ID, bob.ID, 5000)
	assert.ErrorIs(s.T(), err, core.ErrExpenseNotFound)
}

func (s *RepositoryTestSuite) TestSettleExactlyOnce() {
	u := s.newUser("alice")
	e := s.record(u.ID, march, 20000) // no budget: fully unfunded

	settled, err := s.repo.SettleReimbursement(s.ctx, e.ReimbursementID)
	require.NoError(s.T(), err)
	assert.True(s.T(), settled.IsReimbursed)
	require.NotNil(s.T(), settled.ReimbursedAt)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(20000), got.Reimbursed.Cents)

	_, err = s.repo.SettleReimbursement(s.ctx, e.ReimbursementID)
	assert.ErrorIs(s.T(), err, core.ErrAlreadySettled)

	got, err = s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(20000), got.Reimbursed.Cents, "double settlement must not double-credit")
}

func (s *RepositoryTestSuite) TestSettleUnknownReimbursement() {
	_, err := s.repo.SettleReimbursement(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, core.ErrReimbursementNotFound)
}

func (s *RepositoryTestSuite) TestRecomputeMatchesProjectedTotals() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)
	s.record(u.ID, march, 70000)
	e := s.record(u.ID, march, 50000)
	_, err := s.repo.SettleReimbursement(s.ctx, e.ReimbursementID)
	require.NoError(s.T(), err)

	totals, err := s.repo.RecomputeUserTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), totals.Allocated, got.Allocated)
	assert.Equal(s.T(), totals.Spent, got.Spent)
	assert.Equal(s.T(), totals.Reimbursed, got.Reimbursed)
	assert.Equal(s.T(), totals.BudgetLeft, got.BudgetLeft)
}

func (s *RepositoryTestSuite) TestRepairUserTotals() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 100000)
	s.record(u.ID, march, 30000)

	// Corrupt the projection behind the repository's back, then repair.
	_, err := s.repo.db.ExecContext(s.ctx, `
		UPDATE users SET spent_cents = 0, budget_left_cents = 100000 WHERE id = ?`, u.ID)
	require.NoError(s.T(), err)

	totals, err := s.repo.RepairUserTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(30000), totals.Spent.Cents)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(100000), got.Allocated.Cents)
	assert.Equal(s.T(), int64(30000), got.Spent.Cents)
	assert.Equal(s.T(), int64(70000), got.BudgetLeft.Cents)
}

func (s *RepositoryTestSuite) TestRepairUserTotalsUnknownUser() {
	_, err := s.repo.RepairUserTotals(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, core.ErrUserNotFound)
}

func (s *RepositoryTestSuite) TestRepairUserTotalsNeverErasesConcurrentWrites() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 1000000)

	// Repairs racing live writers must serialize with them; an expense
	// committing mid-sweep can never vanish from the projection.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.repo.RecordExpense(s.ctx, RecordExpenseParams{
				UserID:      u.ID,
				Period:      march,
				Scope:       core.ScopePersonal,
				Department:  "engineering",
				AmountCents: 1000,
			})
			assert.NoError(s.T(), err)
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.repo.RepairUserTotals(s.ctx, u.ID)
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	got, err := s.repo.GetUser(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(8000), got.Spent.Cents)

	totals, err := s.repo.RecomputeUserTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), totals.Spent, got.Spent)
	assert.Equal(s.T(), totals.BudgetLeft, got.BudgetLeft)
}

func (s *RepositoryTestSuite) TestListExpensesFiltersAndPaginates() {
	u := s.newUser("alice")
	s.allocate(u.ID, march, 1000000)
	for i := 0; i < 5; i++ {
		s.record(u.ID, march, 1000)
	}
	april := core.Period{Month: 4, Year: 2025}
	s.record(u.ID, april, 2000)

	all, err := s.repo.ListExpenses(s.ctx, ExpenseFilter{UserID: u.ID})
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 6)

	marchOnly, err := s.repo.ListExpenses(s.ctx, ExpenseFilter{UserID: u.ID, Month: 3, Year: 2025})
	require.NoError(s.T(), err)
	assert.Len(s.T(), marchOnly, 5)

	page, err := s.repo.ListExpenses(s.ctx, ExpenseFilter{UserID: u.ID, Month: 3, Year: 2025, Page: 2, Limit: 2})
	require.NoError(s.T(), err)
	assert.Len(s.T(), page, 2)
}

func (s *RepositoryTestSuite) TestListReimbursementsSettledFilter() {
	u := s.newUser("alice")
	first := s.record(u.ID, march, 10000)
	s.record(u.ID, march, 20000)
	_, err := s.repo.SettleReimbursement(s.ctx, first.ReimbursementID)
	require.NoError(s.T(), err)

	settled := true
	open, err := s.repo.ListReimbursements(s.ctx, ReimbursementFilter{UserID: u.ID, Settled: &settled})
	require.NoError(s.T(), err)
	require.Len(s.T(), open, 1)
	assert.Equal(s.T(), first.ReimbursementID, open[0].ID)

	unsettled := false
	pending, err := s.repo.ListReimbursements(s.ctx, ReimbursementFilter{UserID: u.ID, Settled: &unsettled})
	require.NoError(s.T(), err)
	assert.Len(s.T(), pending, 1)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
