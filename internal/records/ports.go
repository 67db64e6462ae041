// Package records defines the persistence ports used by the ledger service.
// Every call is scoped by an explicit account; implementations partition data
// per account and never share rows between accounts.
package records

import (
	"context"

	"expensee/internal/core"
)

// Ports for storage adapters.
type (
	TransactionStore interface {
		// ListTransactions returns the account's transactions, newest date first.
		ListTransactions(ctx context.Context, acct core.AccountID) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, acct core.AccountID, id string) (core.Transaction, error)
		CreateTransaction(ctx context.Context, acct core.AccountID, t core.Transaction) error
		UpdateTransaction(ctx context.Context, acct core.AccountID, t core.Transaction) error
		// DeleteTransaction removes the transaction. When orphan is non-nil the
		// loan is stored with its new status in the same unit of work.
		DeleteTransaction(ctx context.Context, acct core.AccountID, id string, orphan *core.Loan) error
	}

	LoanStore interface {
		ListLoans(ctx context.Context, acct core.AccountID) ([]core.Loan, error)
		GetLoan(ctx context.Context, acct core.AccountID, id string) (core.Loan, error)
		// LoanByOrigin finds the loan opened by transaction txnID.
		LoanByOrigin(ctx context.Context, acct core.AccountID, txnID string) (core.Loan, error)
		// CreateLoan stores the loan and its originating transaction atomically.
		CreateLoan(ctx context.Context, acct core.AccountID, loan core.Loan, origin core.Transaction) error
		// RepayLoan stores the repaid loan and its repayment transaction
		// atomically. It fails with a *core.StateError when the stored loan is
		// no longer pending.
		RepayLoan(ctx context.Context, acct core.AccountID, loan core.Loan, repayment core.Transaction) error
		DeleteLoan(ctx context.Context, acct core.AccountID, id string) error
	}

	CategoryStore interface {
		// ListCategories returns global categories followed by the account's own.
		ListCategories(ctx context.Context, acct core.AccountID) ([]core.Category, error)
		// CreateCategory stores c. An empty c.AccountID creates a global category.
		CreateCategory(ctx context.Context, c core.Category) error
		UpdateCategory(ctx context.Context, acct core.AccountID, c core.Category) error
		DeleteCategory(ctx context.Context, acct core.AccountID, id string) error
	}

	FinancialUserStore interface {
		ListFinancialUsers(ctx context.Context, acct core.AccountID) ([]core.FinancialUser, error)
		CreateFinancialUser(ctx context.Context, acct core.AccountID, u core.FinancialUser) error
		UpdateFinancialUser(ctx context.Context, acct core.AccountID, u core.FinancialUser) error
		// DeleteFinancialUser fails with a *core.StateError while transactions
		// still reference the user.
		DeleteFinancialUser(ctx context.Context, acct core.AccountID, id string) error
	}

	GoalStore interface {
		ListGoals(ctx context.Context, acct core.AccountID) ([]core.Goal, error)
		GetGoal(ctx context.Context, acct core.AccountID, id string) (core.Goal, error)
		CreateGoal(ctx context.Context, acct core.AccountID, g core.Goal) error
		UpdateGoal(ctx context.Context, acct core.AccountID, g core.Goal) error
		DeleteGoal(ctx context.Context, acct core.AccountID, id string) error
	}

	SettingsStore interface {
		// GetSettings reports found=false when the account never saved settings.
		GetSettings(ctx context.Context, acct core.AccountID) (s core.Settings, found bool, err error)
		SaveSettings(ctx context.Context, acct core.AccountID, s core.Settings) error
	}

	VoucherSequencer interface {
		// NextVoucherSeq returns the next counter value for day (YYYYMMDD).
		NextVoucherSeq(ctx context.Context, acct core.AccountID, day string) (int, error)
		// EnsureVoucherSeq raises the counter for day to at least seq.
		EnsureVoucherSeq(ctx context.Context, acct core.AccountID, day string, seq int) error
	}

	AccountData interface {
		// ReplaceAccount swaps all of the account's records for snap atomically.
		ReplaceAccount(ctx context.Context, acct core.AccountID, snap Snapshot) error
		// ResetAccount deletes all of the account's records.
		ResetAccount(ctx context.Context, acct core.AccountID) error
	}

	// AdminStore offers the only cross-account read.
	AdminStore interface {
		ListAccounts(ctx context.Context) ([]core.AccountID, error)
	}

	Store interface {
		TransactionStore
		LoanStore
		CategoryStore
		FinancialUserStore
		GoalStore
		SettingsStore
		VoucherSequencer
		AccountData
		AdminStore
		Close() error
	}
)

// Snapshot is the complete data set of one account.
type Snapshot struct {
	Settings       *core.Settings       `json:"settings,omitempty"`
	Categories     []core.Category      `json:"categories"`
	FinancialUsers []core.FinancialUser `json:"users"`
	Transactions   []core.Transaction   `json:"transactions"`
	Loans          []core.Loan          `json:"loans"`
	Goals          []core.Goal          `json:"goals"`
}
