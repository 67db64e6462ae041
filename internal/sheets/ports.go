package sheets

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"expensee/internal/core"
)

// Row is one mirrored transaction. Rows are keyed by (Account, VoucherID)
// because voucher ids are only unique within an account.
type Row struct {
	Date          core.Date
	VoucherID     string
	Title         string
	Kind          core.TransactionKind
	Amount        decimal.Decimal
	Category      string
	FinancialUser string
	Account       core.AccountID
}

// RowFromTransaction resolves display names for a transaction.
func RowFromTransaction(t core.Transaction, category, party string) Row {
	return Row{
		Date:          t.Date,
		VoucherID:     t.VoucherID,
		Title:         t.Title,
		Kind:          t.Kind,
		Amount:        t.Amount,
		Category:      category,
		FinancialUser: party,
		Account:       t.AccountID,
	}
}

// Values renders the row in column order A..H.
func (r Row) Values() []any {
	return []any{r.Date.String(), r.VoucherID, r.Title, string(r.Kind), r.Amount.StringFixed(2), r.Category, r.FinancialUser, string(r.Account)}
}

func (r Row) String() string {
	return fmt.Sprintf("%s %s %s", r.Account, r.VoucherID, r.Amount.StringFixed(2))
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		// UpsertRow writes the row, replacing an existing row with the same
		// account and voucher.
		UpsertRow(ctx context.Context, r Row) (rowRef string, err error)
	}

	LedgerDeleter interface {
		// DeleteByVoucher clears the row for voucher. A missing row is not an error.
		DeleteByVoucher(ctx context.Context, acct core.AccountID, voucher string) error
	}

	LedgerPruner interface {
		// PruneAccount clears every row of acct whose voucher is not in keep
		// and returns how many rows were cleared.
		PruneAccount(ctx context.Context, acct core.AccountID, keep map[string]struct{}) (int, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerDeleter
		LedgerPruner
	}
)
