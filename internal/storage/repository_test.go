package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"expensee/internal/auth"
	"expensee/internal/core"
	"expensee/internal/records"
)

// RepositoryTestSuite runs the record store contract against a fresh
// database file per test.
type RepositoryTestSuite struct {
	suite.Suite
	repo *SQLiteRepository
	ctx  context.Context
}

func (suite *RepositoryTestSuite) SetupTest() {
	repo, err := NewSQLiteRepository(filepath.Join(suite.T().TempDir(), "data", "test.db"))
	require.NoError(suite.T(), err, "failed to create test database")
	suite.repo = repo
	suite.ctx = context.Background()
}

func (suite *RepositoryTestSuite) TearDownTest() {
	if suite.repo != nil {
		suite.repo.Close()
	}
}

func sampleTxn(id, voucher string, day core.Date, created time.Time) core.Transaction {
	return core.Transaction{
		ID:              id,
		VoucherID:       voucher,
		Title:           "title " + id,
		Description:     "desc",
		Amount:          decimal.RequireFromString("12.34"),
		Kind:            core.KindExpense,
		CategoryID:      "food",
		FinancialUserID: "bob",
		Date:            day,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func (suite *RepositoryTestSuite) TestTransactionRoundTrip() {
	created := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	in := sampleTxn("t1", "20250102-0001", core.NewDate(2025, 1, 2), created)
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", in))

	got, err := suite.repo.GetTransaction(suite.ctx, "acct", "t1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.AccountID("acct"), got.AccountID)
	assert.True(suite.T(), got.Amount.Equal(in.Amount))
	assert.True(suite.T(), got.CreatedAt.Equal(created))
	assert.Equal(suite.T(), "2025-01-02", got.Date.String())
	assert.Equal(suite.T(), in.VoucherID, got.VoucherID)

	_, err = suite.repo.GetTransaction(suite.ctx, "other", "t1")
	assert.True(suite.T(), core.IsNotFound(err), "transactions must not leak across accounts")
}

func (suite *RepositoryTestSuite) TestTransactionOrderingAndVoucherUniqueness() {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day := core.NewDate(2025, 2, 1)
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("a", "V1", day, base)))
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("b", "V2", day, base.Add(time.Millisecond))))
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("c", "V3", core.NewDate(2025, 3, 1), base)))

	list, err := suite.repo.ListTransactions(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 3)
	assert.Equal(suite.T(), []string{"c", "b", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})

	err = suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("d", "V1", day, base))
	assert.True(suite.T(), core.IsState(err), "duplicate voucher should be a state error, got %v", err)
	assert.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "other", sampleTxn("d", "V1", day, base)))
	assert.ErrorContains(suite.T(), err, "voucher V1 already used")

	// A repeated id is reported as such, not as a voucher clash.
	err = suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("a", "V9", day, base))
	assert.True(suite.T(), core.IsState(err))
	assert.ErrorContains(suite.T(), err, "transaction a already exists")
}

func (suite *RepositoryTestSuite) TestUpdateAndDeleteMissing() {
	err := suite.repo.UpdateTransaction(suite.ctx, "acct", sampleTxn("nope", "V", core.NewDate(2025, 1, 1), time.Now()))
	assert.True(suite.T(), core.IsNotFound(err))
	err = suite.repo.DeleteTransaction(suite.ctx, "acct", "nope", nil)
	assert.True(suite.T(), core.IsNotFound(err))
	assert.True(suite.T(), core.IsNotFound(suite.repo.DeleteLoan(suite.ctx, "acct", "nope")))
	assert.True(suite.T(), core.IsNotFound(suite.repo.DeleteGoal(suite.ctx, "acct", "nope")))
}

func (suite *RepositoryTestSuite) openLoan() (core.Loan, core.Transaction) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	origin := sampleTxn("origin", "V1", core.NewDate(2025, 4, 1), now)
	loan := core.Loan{
		ID:              "loan1",
		TransactionID:   origin.ID,
		FinancialUserID: "bob",
		Amount:          origin.Amount,
		Direction:       core.LoanGiven,
		Status:          core.LoanPending,
		DueDate:         core.NewDate(2025, 5, 1),
		CreatedAt:       now,
	}
	require.NoError(suite.T(), suite.repo.CreateLoan(suite.ctx, "acct", loan, origin))
	return loan, origin
}

func (suite *RepositoryTestSuite) TestCreateLoanIsAtomic() {
	loan, _ := suite.openLoan()

	got, err := suite.repo.LoanByOrigin(suite.ctx, "acct", "origin")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), loan.ID, got.ID)
	assert.Equal(suite.T(), "2025-05-01", got.DueDate.String())

	// A voucher clash on the origin must not leave a loan behind.
	dup := loan
	dup.ID = "loan2"
	dupOrigin := sampleTxn("origin2", "V1", core.NewDate(2025, 4, 1), time.Now())
	err = suite.repo.CreateLoan(suite.ctx, "acct", dup, dupOrigin)
	require.Error(suite.T(), err)
	_, err = suite.repo.GetLoan(suite.ctx, "acct", "loan2")
	assert.True(suite.T(), core.IsNotFound(err))
}

func (suite *RepositoryTestSuite) TestRepayLoanOnce() {
	loan, origin := suite.openLoan()
	repaidAt := time.Date(2025, 4, 20, 8, 0, 0, 0, time.UTC)
	repaid, repayment, err := core.RepayLoan(loan, origin, core.Stamp{TransactionID: "rep1", VoucherID: "V2", Now: repaidAt})
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.repo.RepayLoan(suite.ctx, "acct", repaid, repayment))

	stored, err := suite.repo.GetLoan(suite.ctx, "acct", loan.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.LoanRepaid, stored.Status)
	require.NotNil(suite.T(), stored.RepaidDate)
	assert.True(suite.T(), stored.RepaidDate.Equal(repaidAt))
	assert.Equal(suite.T(), "rep1", stored.RepaymentTransactionID)

	_, second, _ := core.RepayLoan(loan, origin, core.Stamp{TransactionID: "rep2", VoucherID: "V3", Now: repaidAt})
	err = suite.repo.RepayLoan(suite.ctx, "acct", repaid, second)
	assert.True(suite.T(), core.IsState(err), "second repay should be a state error, got %v", err)

	txns, err := suite.repo.ListTransactions(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), txns, 2, "no second repayment transaction may be stored")
}

func (suite *RepositoryTestSuite) TestConcurrentRepayOnlyOneWins() {
	loan, origin := suite.openLoan()
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			repaid, repayment, _ := core.RepayLoan(loan, origin, core.Stamp{TransactionID: "rep-" + id, VoucherID: "VR-" + id, Now: time.Now()})
			errs[i] = suite.repo.RepayLoan(suite.ctx, "acct", repaid, repayment)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(suite.T(), core.IsState(err), "unexpected error %v", err)
		}
	}
	assert.Equal(suite.T(), 1, wins)
}

func (suite *RepositoryTestSuite) TestDeleteOriginOrphansPendingLoan() {
	loan, _ := suite.openLoan()
	orphan, _ := core.OrphanLoan(loan)
	require.NoError(suite.T(), suite.repo.DeleteTransaction(suite.ctx, "acct", "origin", &orphan))

	stored, err := suite.repo.GetLoan(suite.ctx, "acct", loan.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.LoanOrphaned, stored.Status)
}

func (suite *RepositoryTestSuite) TestFinancialUserDeletionGuard() {
	now := time.Now()
	require.NoError(suite.T(), suite.repo.CreateFinancialUser(suite.ctx, "acct", core.FinancialUser{ID: "bob", Name: "Bob", Type: core.PartyFriend, CreatedAt: now}))
	require.NoError(suite.T(), suite.repo.CreateFinancialUser(suite.ctx, "acct", core.FinancialUser{ID: "amy", Name: "Amy", Type: core.PartyFamily, CreatedAt: now}))
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("t1", "V1", core.NewDate(2025, 1, 1), now)))
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("t2", "V2", core.NewDate(2025, 1, 1), now)))

	err := suite.repo.DeleteFinancialUser(suite.ctx, "acct", "bob")
	var se *core.StateError
	require.ErrorAs(suite.T(), err, &se)
	assert.Equal(suite.T(), 2, se.Count)

	assert.NoError(suite.T(), suite.repo.DeleteFinancialUser(suite.ctx, "acct", "amy"))
	users, err := suite.repo.ListFinancialUsers(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), users, 1)
	assert.Equal(suite.T(), "bob", users[0].ID)
}

func (suite *RepositoryTestSuite) TestCategoriesGlobalFirst() {
	now := time.Now()
	require.NoError(suite.T(), suite.repo.CreateCategory(suite.ctx, core.Category{ID: "own", AccountID: "acct", Name: "Art", Kind: core.CategoryExpense, CreatedAt: now}))
	require.NoError(suite.T(), suite.repo.CreateCategory(suite.ctx, core.Category{ID: "g", Name: "Salary", Kind: core.CategoryIncome, CreatedAt: now}))

	cats, err := suite.repo.ListCategories(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), cats, 2)
	assert.True(suite.T(), cats[0].Global())
	assert.Equal(suite.T(), "own", cats[1].ID)

	others, err := suite.repo.ListCategories(suite.ctx, "other")
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), others, 1)

	err = suite.repo.UpdateCategory(suite.ctx, "acct", core.Category{ID: "g", Name: "Wages", Kind: core.CategoryIncome})
	assert.True(suite.T(), core.IsNotFound(err))
}

func (suite *RepositoryTestSuite) TestGoalsAndSettings() {
	g := core.Goal{ID: "g1", Title: "Bike", TargetAmount: decimal.NewFromInt(500), CurrentAmount: decimal.NewFromInt(20),
		Deadline: core.NewDate(2025, 9, 1), Status: core.GoalActive, CreatedAt: time.Now()}
	require.NoError(suite.T(), suite.repo.CreateGoal(suite.ctx, "acct", g))
	g.CurrentAmount = decimal.NewFromInt(200)
	require.NoError(suite.T(), suite.repo.UpdateGoal(suite.ctx, "acct", g))
	got, err := suite.repo.GetGoal(suite.ctx, "acct", "g1")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), got.CurrentAmount.Equal(decimal.NewFromInt(200)))

	_, found, err := suite.repo.GetSettings(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), found)

	s := core.DefaultSettings()
	s.VoucherPrefix = "EX-"
	s.Notifications = false
	require.NoError(suite.T(), suite.repo.SaveSettings(suite.ctx, "acct", s))
	s.Currency = "EUR"
	require.NoError(suite.T(), suite.repo.SaveSettings(suite.ctx, "acct", s))
	loaded, found, err := suite.repo.GetSettings(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), found)
	assert.Equal(suite.T(), s, loaded)
}

func (suite *RepositoryTestSuite) TestVoucherCounters() {
	n1, err := suite.repo.NextVoucherSeq(suite.ctx, "acct", "20250101")
	require.NoError(suite.T(), err)
	n2, _ := suite.repo.NextVoucherSeq(suite.ctx, "acct", "20250101")
	n3, _ := suite.repo.NextVoucherSeq(suite.ctx, "other", "20250101")
	assert.Equal(suite.T(), []int{1, 2, 1}, []int{n1, n2, n3})

	require.NoError(suite.T(), suite.repo.EnsureVoucherSeq(suite.ctx, "acct", "20250101", 9))
	require.NoError(suite.T(), suite.repo.EnsureVoucherSeq(suite.ctx, "acct", "20250101", 3))
	n4, _ := suite.repo.NextVoucherSeq(suite.ctx, "acct", "20250101")
	assert.Equal(suite.T(), 10, n4)
}

func (suite *RepositoryTestSuite) TestReplaceAndResetAccount() {
	now := time.Now()
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "acct", sampleTxn("old", "V1", core.NewDate(2025, 1, 1), now)))
	require.NoError(suite.T(), suite.repo.CreateTransaction(suite.ctx, "keep", sampleTxn("k", "V1", core.NewDate(2025, 1, 1), now)))

	snap := records.Snapshot{
		Categories:     []core.Category{{ID: "c", Name: "Mine", Kind: core.CategoryExpense, CreatedAt: now}},
		FinancialUsers: []core.FinancialUser{{ID: "bob", Name: "Bob", Type: core.PartyFriend, CreatedAt: now}},
		Transactions:   []core.Transaction{sampleTxn("new", "V7", core.NewDate(2025, 2, 1), now)},
	}
	require.NoError(suite.T(), suite.repo.ReplaceAccount(suite.ctx, "acct", snap))
	txns, err := suite.repo.ListTransactions(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), txns, 1)
	assert.Equal(suite.T(), "new", txns[0].ID)

	require.NoError(suite.T(), suite.repo.ResetAccount(suite.ctx, "acct"))
	txns, _ = suite.repo.ListTransactions(suite.ctx, "acct")
	assert.Empty(suite.T(), txns)
	kept, _ := suite.repo.ListTransactions(suite.ctx, "keep")
	assert.Len(suite.T(), kept, 1, "reset must only touch its own account")

	ids, err := suite.repo.ListAccounts(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []core.AccountID{"keep"}, ids)
}

func (suite *RepositoryTestSuite) TestCredentials() {
	now := time.Now().UTC()
	a := auth.Account{ID: "acct", Username: "ann", Email: "ann@example.com", Name: "Ann", Role: auth.RoleUser, PasswordHash: "h", CreatedAt: now}
	require.NoError(suite.T(), suite.repo.CreateAccount(suite.ctx, a))
	dup := a
	dup.ID = "acct2"
	dup.Username = "ANN"
	assert.ErrorIs(suite.T(), suite.repo.CreateAccount(suite.ctx, dup), auth.ErrAccountExists)

	got, err := suite.repo.AccountByUsername(suite.ctx, "Ann")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), a.ID, got.ID)

	require.NoError(suite.T(), suite.repo.CreateSession(suite.ctx, auth.Session{Token: "tok", AccountID: "acct", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(suite.T(), suite.repo.CreateSession(suite.ctx, auth.Session{Token: "old", AccountID: "acct", CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}))
	n, err := suite.repo.DeleteExpiredSessions(suite.ctx, now)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)

	later := now.Add(2 * time.Hour)
	require.NoError(suite.T(), suite.repo.ExtendSession(suite.ctx, "tok", later))
	s, err := suite.repo.SessionByToken(suite.ctx, "tok")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), s.ExpiresAt.Equal(later))
	assert.Equal(suite.T(), core.AccountID("acct"), s.AccountID)
}

func (suite *RepositoryTestSuite) TestUpdateAndListAccounts() {
	now := time.Now().UTC()
	ann := auth.Account{ID: "acct", Username: "ann", Email: "ann@example.com", Name: "Ann", Role: auth.RoleUser, PasswordHash: "h", CreatedAt: now}
	bob := auth.Account{ID: "acct2", Username: "bob", Email: "bob@example.com", Name: "Bob", Role: auth.RoleAdmin, PasswordHash: "h", CreatedAt: now.Add(time.Minute)}
	require.NoError(suite.T(), suite.repo.CreateAccount(suite.ctx, ann))
	require.NoError(suite.T(), suite.repo.CreateAccount(suite.ctx, bob))

	ann.Name = "Ann Lee"
	ann.PasswordHash = "h2"
	require.NoError(suite.T(), suite.repo.UpdateAccount(suite.ctx, ann))
	got, err := suite.repo.AccountByID(suite.ctx, "acct")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Ann Lee", got.Name)
	assert.Equal(suite.T(), "h2", got.PasswordHash)

	taken := ann
	taken.Email = "BOB@example.com"
	assert.ErrorIs(suite.T(), suite.repo.UpdateAccount(suite.ctx, taken), auth.ErrAccountExists)

	ghost := ann
	ghost.ID = "ghost"
	ghost.Email = "ghost@example.com"
	assert.True(suite.T(), core.IsNotFound(suite.repo.UpdateAccount(suite.ctx, ghost)))

	all, err := suite.repo.AllAccounts(suite.ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), all, 2)
	assert.Equal(suite.T(), "ann", all[0].Username)
	assert.Equal(suite.T(), auth.RoleAdmin, all[1].Role)
}

func TestUniqueViolationOn(t *testing.T) {
	voucher := errors.New("constraint failed: UNIQUE constraint failed: transactions.account_id, transactions.voucher_id (2067)")
	primary := errors.New("constraint failed: UNIQUE constraint failed: transactions.account_id, transactions.id (1555)")

	assert.True(t, uniqueViolationOn(voucher, "transactions.voucher_id"))
	assert.False(t, uniqueViolationOn(voucher, "transactions.id"))
	assert.True(t, uniqueViolationOn(primary, "transactions.id"))
	assert.False(t, uniqueViolationOn(primary, "transactions.voucher_id"))
	assert.False(t, uniqueViolationOn(errors.New("disk I/O error"), "transactions.id"))
	assert.False(t, uniqueViolationOn(nil, "transactions.id"))
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
