package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"expensee/internal/amqp"
	"expensee/internal/core"
	"expensee/internal/records/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

var fixedNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

type LedgerServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	events *recordingPublisher
	svc    *LedgerService
	acct   core.AccountID

	salary, food, loans core.Category
	sam                 core.FinancialUser
}

func (suite *LedgerServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = memory.New()
	suite.events = &recordingPublisher{}
	suite.svc = NewLedgerService(suite.store, suite.events, core.DefaultSettings())
	n := 0
	suite.svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	suite.svc.now = func() time.Time { return fixedNow }
	suite.acct = "acct-a"

	var err error
	suite.salary, err = suite.svc.CreateCategory(suite.ctx, suite.acct, core.Category{Name: "Salary", Kind: core.CategoryIncome})
	require.NoError(suite.T(), err)
	suite.food, err = suite.svc.CreateCategory(suite.ctx, suite.acct, core.Category{Name: "Food", Kind: core.CategoryExpense})
	require.NoError(suite.T(), err)
	suite.loans, err = suite.svc.CreateCategory(suite.ctx, suite.acct, core.Category{Name: "Loans", Kind: core.CategoryShared})
	require.NoError(suite.T(), err)
	suite.sam, err = suite.svc.CreateFinancialUser(suite.ctx, suite.acct, core.FinancialUser{Name: "Sam", Type: core.PartyFriend})
	require.NoError(suite.T(), err)
}

func (suite *LedgerServiceTestSuite) input(kind core.TransactionKind, amount string, cat core.Category) TransactionInput {
	return TransactionInput{
		Title:           string(kind) + " " + amount,
		Amount:          decimal.RequireFromString(amount),
		Kind:            kind,
		CategoryID:      cat.ID,
		FinancialUserID: suite.sam.ID,
		Date:            core.DateOf(fixedNow),
	}
}

func (suite *LedgerServiceTestSuite) TestEndToEndSummary() {
	for _, in := range []TransactionInput{
		suite.input(core.KindIncome, "1000", suite.salary),
		suite.input(core.KindExpense, "400", suite.food),
		suite.input(core.KindExpense, "100", suite.food),
	} {
		_, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, in)
		require.NoError(suite.T(), err)
	}

	sum, err := suite.svc.Summary(suite.ctx, suite.acct, core.All)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), sum.Income.Equal(decimal.NewFromInt(1000)))
	assert.True(suite.T(), sum.Expense.Equal(decimal.NewFromInt(500)))
	assert.True(suite.T(), sum.Net.Equal(decimal.NewFromInt(500)))
	assert.InDelta(suite.T(), 0.5, sum.SavingsRate, 1e-9)

	// Another account sees nothing.
	other, err := suite.svc.Summary(suite.ctx, "acct-b", core.All)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), other.Income.IsZero())
	assert.Zero(suite.T(), other.SavingsRate)
}

func (suite *LedgerServiceTestSuite) TestVouchersAreSequentialPerDay() {
	_, err := suite.svc.UpdateSettings(suite.ctx, suite.acct, core.Settings{VoucherPrefix: "EXP"})
	require.NoError(suite.T(), err)

	first, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindExpense, "5", suite.food))
	require.NoError(suite.T(), err)
	second, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindExpense, "6", suite.food))
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "EXP20250315-0001", first.VoucherID)
	assert.Equal(suite.T(), "EXP20250315-0002", second.VoucherID)
}

func (suite *LedgerServiceTestSuite) TestCreateTransactionValidation() {
	bad := suite.input(core.KindExpense, "5", suite.food)
	bad.CategoryID = "nope"
	_, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, bad)
	require.Error(suite.T(), err)
	assert.True(suite.T(), core.IsValidation(err))

	bad = suite.input(core.KindExpense, "5", suite.food)
	bad.Amount = decimal.NewFromInt(-5)
	_, err = suite.svc.CreateTransaction(suite.ctx, suite.acct, bad)
	assert.True(suite.T(), core.IsValidation(err))

	_, err = suite.svc.CreateTransaction(suite.ctx, "", suite.input(core.KindExpense, "5", suite.food))
	assert.True(suite.T(), core.IsValidation(err))

	// Rejected input reserves no voucher number.
	ok, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindExpense, "5", suite.food))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "20250315-0001", ok.VoucherID)
	assert.Equal(suite.T(), []amqp.EventType{amqp.EventTransactionCreated}, suite.events.types())
}

func (suite *LedgerServiceTestSuite) TestGivenLoanLifecycle() {
	amount := decimal.RequireFromString("250")
	loan, origin, err := suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          amount,
		Direction:       core.LoanGiven,
		Title:           "Lent to Sam",
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.KindExpense, origin.Kind)
	assert.True(suite.T(), origin.Amount.Equal(amount))
	assert.Equal(suite.T(), suite.loans.ID, origin.CategoryID)
	assert.Equal(suite.T(), core.LoanPending, loan.Status)
	assert.Equal(suite.T(), origin.ID, loan.TransactionID)

	repaid, repayment, err := suite.svc.RepayLoan(suite.ctx, suite.acct, loan.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.KindIncome, repayment.Kind)
	assert.True(suite.T(), repayment.Amount.Equal(amount))
	assert.Equal(suite.T(), "Loan Repayment: Lent to Sam", repayment.Title)
	assert.Equal(suite.T(), core.LoanRepaid, repaid.Status)
	require.NotNil(suite.T(), repaid.RepaidDate)

	_, _, err = suite.svc.RepayLoan(suite.ctx, suite.acct, loan.ID)
	assert.True(suite.T(), core.IsState(err), "second repay must fail with a state error, got %v", err)

	txns, err := suite.svc.ListTransactions(suite.ctx, suite.acct, TransactionFilter{})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), txns, 2)
	assert.Equal(suite.T(), []amqp.EventType{amqp.EventLoanCreated, amqp.EventLoanRepaid}, suite.events.types())
}

func (suite *LedgerServiceTestSuite) TestTakenLoanLifecycle() {
	amount := decimal.RequireFromString("80.50")
	loan, origin, err := suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          amount,
		Direction:       core.LoanTaken,
		Title:           "Borrowed from Sam",
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.KindIncome, origin.Kind)

	_, repayment, err := suite.svc.RepayLoan(suite.ctx, suite.acct, loan.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.KindExpense, repayment.Kind)
	assert.True(suite.T(), repayment.Amount.Equal(amount))

	sum, err := suite.svc.Summary(suite.ctx, suite.acct, core.All)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), sum.Net.IsZero())
}

func (suite *LedgerServiceTestSuite) TestOpenLoanRejectsUnknownUser() {
	_, _, err := suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: "ghost",
		Amount:          decimal.NewFromInt(10),
		Direction:       core.LoanGiven,
		Title:           "x",
	})
	assert.True(suite.T(), core.IsValidation(err))
	loans, err := suite.svc.ListLoans(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), loans)
}

func (suite *LedgerServiceTestSuite) TestDeletingOriginOrphansLoan() {
	loan, origin, err := suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          decimal.NewFromInt(40),
		Direction:       core.LoanGiven,
		Title:           "Lent",
	})
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.svc.DeleteTransaction(suite.ctx, suite.acct, origin.ID))

	got, err := suite.svc.GetLoan(suite.ctx, suite.acct, loan.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.LoanOrphaned, got.Status)

	_, _, err = suite.svc.RepayLoan(suite.ctx, suite.acct, loan.ID)
	assert.True(suite.T(), core.IsState(err))

	summary, err := suite.svc.LoanSummary(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, summary.OrphanedCount)
	assert.True(suite.T(), summary.TotalGiven.IsZero())
}

func (suite *LedgerServiceTestSuite) TestDeletingLoanKeepsTransactions() {
	loan, _, err := suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          decimal.NewFromInt(40),
		Direction:       core.LoanGiven,
		Title:           "Lent",
	})
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.svc.DeleteLoan(suite.ctx, suite.acct, loan.ID))

	txns, err := suite.svc.ListTransactions(suite.ctx, suite.acct, TransactionFilter{})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), txns, 1)

	_, err = suite.svc.GetLoan(suite.ctx, suite.acct, loan.ID)
	assert.True(suite.T(), core.IsNotFound(err))
}

func (suite *LedgerServiceTestSuite) TestUpdateTransaction() {
	t, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindExpense, "10", suite.food))
	require.NoError(suite.T(), err)

	in := suite.input(core.KindExpense, "12.75", suite.food)
	in.Title = "Dinner"
	updated, err := suite.svc.UpdateTransaction(suite.ctx, suite.acct, t.ID, in)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Dinner", updated.Title)
	assert.Equal(suite.T(), t.VoucherID, updated.VoucherID)
	assert.Equal(suite.T(), t.CreatedAt, updated.CreatedAt)

	_, err = suite.svc.UpdateTransaction(suite.ctx, "acct-b", t.ID, in)
	assert.True(suite.T(), core.IsNotFound(err))
}

func (suite *LedgerServiceTestSuite) TestLoanBackedTransactionKeepsAmount() {
	_, origin, err := suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          decimal.NewFromInt(40),
		Direction:       core.LoanGiven,
		Title:           "Lent",
	})
	require.NoError(suite.T(), err)

	in := TransactionInput{
		Title:           "Lent to Sam",
		Amount:          origin.Amount,
		Kind:            origin.Kind,
		CategoryID:      origin.CategoryID,
		FinancialUserID: origin.FinancialUserID,
		Date:            origin.Date,
	}
	_, err = suite.svc.UpdateTransaction(suite.ctx, suite.acct, origin.ID, in)
	require.NoError(suite.T(), err, "renaming is allowed")

	in.Amount = decimal.NewFromInt(45)
	_, err = suite.svc.UpdateTransaction(suite.ctx, suite.acct, origin.ID, in)
	assert.True(suite.T(), core.IsState(err))
}

func (suite *LedgerServiceTestSuite) TestDeleteFinancialUserGuard() {
	_, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindExpense, "10", suite.food))
	require.NoError(suite.T(), err)

	err = suite.svc.DeleteFinancialUser(suite.ctx, suite.acct, suite.sam.ID)
	var stateErr *core.StateError
	require.ErrorAs(suite.T(), err, &stateErr)
	assert.Equal(suite.T(), 1, stateErr.Count)

	idle, err := suite.svc.CreateFinancialUser(suite.ctx, suite.acct, core.FinancialUser{Name: "Office", Type: core.PartyOffice})
	require.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.svc.DeleteFinancialUser(suite.ctx, suite.acct, idle.ID))
}

func (suite *LedgerServiceTestSuite) TestCategoryNamesAreUnique() {
	_, err := suite.svc.CreateGlobalCategory(suite.ctx, core.Category{Name: "Travel", Kind: core.CategoryExpense})
	require.NoError(suite.T(), err)

	_, err = suite.svc.CreateCategory(suite.ctx, suite.acct, core.Category{Name: "travel", Kind: core.CategoryExpense})
	assert.True(suite.T(), core.IsValidation(err))
	_, err = suite.svc.CreateCategory(suite.ctx, suite.acct, core.Category{Name: " FOOD ", Kind: core.CategoryExpense})
	assert.True(suite.T(), core.IsValidation(err))

	// Another account may reuse an account-level name.
	_, err = suite.svc.CreateCategory(suite.ctx, "acct-b", core.Category{Name: "Food", Kind: core.CategoryExpense})
	assert.NoError(suite.T(), err)

	cats, err := suite.svc.ListCategories(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	require.NotEmpty(suite.T(), cats)
	assert.True(suite.T(), cats[0].Global())

	_, err = suite.svc.UpdateCategory(suite.ctx, suite.acct, cats[0].ID, core.Category{Name: "Trips", Kind: core.CategoryExpense})
	assert.True(suite.T(), core.IsNotFound(err), "global categories are read-only for accounts")

	renamed, err := suite.svc.UpdateCategory(suite.ctx, suite.acct, suite.food.ID, core.Category{Name: "Groceries", Color: "#00ff00", Kind: core.CategoryExpense})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Groceries", renamed.Name)
}

func (suite *LedgerServiceTestSuite) TestBreakdownAndDashboard() {
	for _, in := range []TransactionInput{
		suite.input(core.KindIncome, "1000", suite.salary),
		suite.input(core.KindExpense, "300", suite.food),
		suite.input(core.KindExpense, "100", suite.loans),
	} {
		_, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, in)
		require.NoError(suite.T(), err)
	}
	rows, err := suite.svc.Breakdown(suite.ctx, suite.acct, core.All, core.ByExpenseDesc)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 3)
	assert.Equal(suite.T(), "Food", rows[0].Name)
	assert.InDelta(suite.T(), 75.0, rows[0].PctOfTotalExpense, 1e-9)

	_, _, err = suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          decimal.NewFromInt(50),
		Direction:       core.LoanGiven,
		Title:           "Lent",
		DueDate:         core.NewDate(2025, 3, 1),
	})
	require.NoError(suite.T(), err)

	dash, err := suite.svc.Dashboard(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), dash.TotalBalance.Equal(decimal.NewFromInt(550)))
	assert.True(suite.T(), dash.MonthlyExpenses.Equal(decimal.NewFromInt(450)))
	assert.True(suite.T(), dash.NetLoans.Equal(decimal.NewFromInt(50)))
	assert.Equal(suite.T(), 1, dash.OverdueLoans)

	trend, err := suite.svc.Trend(suite.ctx, suite.acct, 2025)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), trend, 12)
	assert.True(suite.T(), trend[2].Income.Equal(decimal.NewFromInt(1000)))

	overdue, err := suite.svc.OverdueLoans(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), overdue, 1)
}

func (suite *LedgerServiceTestSuite) TestListTransactionsFilter() {
	_, err := suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindIncome, "1000", suite.salary))
	require.NoError(suite.T(), err)
	lunch := suite.input(core.KindExpense, "12", suite.food)
	lunch.Title = "Lunch at work"
	_, err = suite.svc.CreateTransaction(suite.ctx, suite.acct, lunch)
	require.NoError(suite.T(), err)

	got, err := suite.svc.ListTransactions(suite.ctx, suite.acct, TransactionFilter{Kind: core.KindExpense})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), got, 1)

	got, err = suite.svc.ListTransactions(suite.ctx, suite.acct, TransactionFilter{Query: "LUNCH"})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), got, 1)

	got, err = suite.svc.ListTransactions(suite.ctx, suite.acct, TransactionFilter{From: core.NewDate(2025, 4, 1)})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), got)
}

func (suite *LedgerServiceTestSuite) TestSettings() {
	st, err := suite.svc.Settings(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.DefaultSettings(), st)

	_, err = suite.svc.UpdateSettings(suite.ctx, suite.acct, core.Settings{Currency: "euro"})
	assert.True(suite.T(), core.IsValidation(err))

	saved, err := suite.svc.UpdateSettings(suite.ctx, suite.acct, core.Settings{Currency: "eur", Theme: core.ThemeDark})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "EUR", saved.Currency)
	assert.Equal(suite.T(), core.ThemeDark, saved.Theme)

	st, err = suite.svc.Settings(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), saved, st)
}

func (suite *LedgerServiceTestSuite) TestExportImportAndReset() {
	_, err := suite.svc.UpdateSettings(suite.ctx, suite.acct, core.Settings{VoucherPrefix: "EXP"})
	require.NoError(suite.T(), err)
	_, err = suite.svc.CreateTransaction(suite.ctx, suite.acct, suite.input(core.KindIncome, "1000", suite.salary))
	require.NoError(suite.T(), err)
	_, _, err = suite.svc.OpenLoan(suite.ctx, suite.acct, core.LoanRequest{
		FinancialUserID: suite.sam.ID,
		Amount:          decimal.NewFromInt(50),
		Direction:       core.LoanGiven,
		Title:           "Lent",
	})
	require.NoError(suite.T(), err)

	snap, err := suite.svc.Export(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), snap.Transactions, 2)
	assert.Len(suite.T(), snap.Loans, 1)
	assert.Len(suite.T(), snap.Categories, 3)
	require.NotNil(suite.T(), snap.Settings)

	require.NoError(suite.T(), suite.svc.Import(suite.ctx, "acct-b", snap))
	imported, err := suite.svc.Export(suite.ctx, "acct-b")
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), imported.Transactions, 2)
	assert.Len(suite.T(), imported.Loans, 1)

	// New vouchers continue after the imported ones.
	next, err := suite.svc.CreateTransaction(suite.ctx, "acct-b", suite.input(core.KindExpense, "5", suite.food))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "EXP20250315-0003", next.VoucherID)

	require.NoError(suite.T(), suite.svc.Reset(suite.ctx, suite.acct))
	empty, err := suite.svc.Export(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), empty.Transactions)
	assert.Empty(suite.T(), empty.Categories)

	// acct-b is untouched by the reset.
	still, err := suite.svc.ListTransactions(suite.ctx, "acct-b", TransactionFilter{})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), still, 3)
}

func (suite *LedgerServiceTestSuite) TestImportRejectsInvalidSnapshot() {
	snap, err := suite.svc.Export(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	snap.Transactions = append(snap.Transactions, core.Transaction{
		ID:              "bad",
		Title:           "bad",
		Amount:          decimal.NewFromInt(1),
		Kind:            core.KindExpense,
		CategoryID:      "missing",
		FinancialUserID: suite.sam.ID,
		Date:            core.NewDate(2025, 1, 1),
	})
	err = suite.svc.Import(suite.ctx, "acct-b", snap)
	assert.True(suite.T(), core.IsValidation(err))

	cats, err := suite.svc.ListCategories(suite.ctx, "acct-b")
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), cats, "nothing is written when import fails")
}

func (suite *LedgerServiceTestSuite) TestImportChecksLoansAgainstTheirTransactions() {
	origin := core.Transaction{
		ID:              "t1",
		VoucherID:       "20250301-0001",
		Title:           "Lent to Sam",
		Amount:          decimal.NewFromInt(100),
		Kind:            core.KindIncome,
		CategoryID:      suite.loans.ID,
		FinancialUserID: suite.sam.ID,
		Date:            core.NewDate(2025, 3, 1),
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	}
	loan := core.Loan{
		ID:              "l1",
		TransactionID:   "t1",
		FinancialUserID: suite.sam.ID,
		Amount:          decimal.NewFromInt(100),
		Direction:       core.LoanTaken,
		Status:          core.LoanPending,
		CreatedAt:       fixedNow,
	}
	base, err := suite.svc.Export(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)

	tests := []struct {
		name   string
		mutate func(t *core.Transaction, l *core.Loan, extra *[]core.Loan)
		field  string
		target error
	}{
		{"amount differs from origin", func(_ *core.Transaction, l *core.Loan, _ *[]core.Loan) {
			l.Amount = decimal.NewFromInt(500)
		}, "amount", core.ErrLoanMismatch},
		{"direction against origin kind", func(_ *core.Transaction, l *core.Loan, _ *[]core.Loan) {
			l.Direction = core.LoanGiven
		}, "type", core.ErrLoanMismatch},
		{"unknown financial user", func(_ *core.Transaction, l *core.Loan, _ *[]core.Loan) {
			l.FinancialUserID = "nobody"
		}, "userId", core.ErrUnknownRef},
		{"duplicate loan id", func(_ *core.Transaction, l *core.Loan, extra *[]core.Loan) {
			*extra = append(*extra, *l)
		}, "id", core.ErrDuplicateID},
		{"origin shared by two loans", func(_ *core.Transaction, l *core.Loan, extra *[]core.Loan) {
			other := *l
			other.ID = "l2"
			*extra = append(*extra, other)
		}, "transactionId", core.ErrDuplicateID},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			txn, l := origin, loan
			var extra []core.Loan
			tt.mutate(&txn, &l, &extra)
			snap := base
			snap.Transactions = []core.Transaction{txn}
			snap.Loans = append([]core.Loan{l}, extra...)

			err := suite.svc.Import(suite.ctx, "acct-b", snap)
			var ve *core.ValidationError
			require.ErrorAs(suite.T(), err, &ve)
			assert.Equal(suite.T(), tt.field, ve.Field)
			assert.ErrorIs(suite.T(), err, tt.target)

			txns, err := suite.svc.ListTransactions(suite.ctx, "acct-b", TransactionFilter{})
			require.NoError(suite.T(), err)
			assert.Empty(suite.T(), txns)
		})
	}

	// A consistent loan imports and its repayment cancels the origin.
	snap := base
	snap.Transactions = []core.Transaction{origin}
	snap.Loans = []core.Loan{loan}
	require.NoError(suite.T(), suite.svc.Import(suite.ctx, "acct-b", snap))
	_, _, err = suite.svc.RepayLoan(suite.ctx, "acct-b", "l1")
	require.NoError(suite.T(), err)
	sum, err := suite.svc.Summary(suite.ctx, "acct-b", core.All)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), sum.Net.IsZero(), "net after borrow and repay = %s", sum.Net)
}

func (suite *LedgerServiceTestSuite) TestImportMintsMissingVouchers() {
	snap, err := suite.svc.Export(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	for i, amount := range []int64{10, 20} {
		snap.Transactions = append(snap.Transactions, core.Transaction{
			ID:              fmt.Sprintf("old-%d", i),
			Title:           "Groceries",
			Amount:          decimal.NewFromInt(amount),
			Kind:            core.KindExpense,
			CategoryID:      suite.food.ID,
			FinancialUserID: suite.sam.ID,
			Date:            core.NewDate(2024, 6, 1),
			CreatedAt:       time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		})
	}
	snap.Transactions = append(snap.Transactions, core.Transaction{
		ID:              "kept",
		VoucherID:       "20240601-0001",
		Title:           "Groceries",
		Amount:          decimal.NewFromInt(5),
		Kind:            core.KindExpense,
		CategoryID:      suite.food.ID,
		FinancialUserID: suite.sam.ID,
		Date:            core.NewDate(2024, 6, 1),
		CreatedAt:       time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	})

	require.NoError(suite.T(), suite.svc.Import(suite.ctx, "acct-b", snap))
	byID := map[string]string{}
	txns, err := suite.svc.ListTransactions(suite.ctx, "acct-b", TransactionFilter{})
	require.NoError(suite.T(), err)
	for _, t := range txns {
		byID[t.ID] = t.VoucherID
	}
	assert.Equal(suite.T(), "20240601-0001", byID["kept"])
	assert.Equal(suite.T(), "20240601-0002", byID["old-0"])
	assert.Equal(suite.T(), "20240601-0003", byID["old-1"])
	assert.Equal(suite.T(), []amqp.EventType{amqp.EventAccountReplaced}, suite.events.types()[len(suite.events.types())-1:])
}

func (suite *LedgerServiceTestSuite) TestGoals() {
	g, err := suite.svc.CreateGoal(suite.ctx, suite.acct, core.Goal{
		Title:        "Holiday",
		TargetAmount: decimal.NewFromInt(100),
		Deadline:     core.NewDate(2025, 12, 31),
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.GoalActive, g.Status)

	g, err = suite.svc.ContributeToGoal(suite.ctx, suite.acct, g.ID, decimal.NewFromInt(100))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.GoalCompleted, g.Status)

	_, err = suite.svc.ContributeToGoal(suite.ctx, suite.acct, g.ID, decimal.Zero)
	assert.True(suite.T(), core.IsValidation(err))

	require.NoError(suite.T(), suite.svc.DeleteGoal(suite.ctx, suite.acct, g.ID))
	goals, err := suite.svc.ListGoals(suite.ctx, suite.acct)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), goals)
}

func TestLedgerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}

func TestLedgerServiceWithoutPublisher(t *testing.T) {
	svc := NewLedgerService(memory.New(), nil, core.Settings{})
	_, err := svc.CreateFinancialUser(context.Background(), "a", core.FinancialUser{Name: "Sam", Type: core.PartyFriend})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func (suite *LedgerServiceTestSuite) TestEnsureGlobalCategories() {
	seed := []core.Category{
		{ID: "global-rent", Name: "Rent", Kind: core.CategoryExpense},
		{ID: "global-gifts", Name: "Gifts", Kind: core.CategoryShared},
	}
	n, err := suite.svc.EnsureGlobalCategories(suite.ctx, seed)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, n)

	n, err = suite.svc.EnsureGlobalCategories(suite.ctx, seed)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), n, "reseeding must be idempotent")

	cats, err := suite.svc.ListCategories(suite.ctx, "acct-b")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), cats, 2)
	assert.True(suite.T(), cats[0].Global())

	_, err = suite.svc.EnsureGlobalCategories(suite.ctx, []core.Category{{ID: "global-rent-2", Name: "rent", Kind: core.CategoryExpense}})
	var verr *core.ValidationError
	assert.ErrorAs(suite.T(), err, &verr)
}
