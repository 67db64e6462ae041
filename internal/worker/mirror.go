package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"expensee/internal/amqp"
	"expensee/internal/core"
	"expensee/internal/records"
	"expensee/internal/sheets"
)

// Reader is the slice of the record store the mirror needs.
type Reader interface {
	records.TransactionStore
	records.LoanStore
	records.CategoryStore
	records.FinancialUserStore
	records.AdminStore
}

// MirrorWorker keeps the spreadsheet ledger in step with the record store.
type MirrorWorker struct {
	store  Reader
	ledger sheets.Ledger
	// batchSize bounds the concurrent sheet writes during a resync.
	batchSize int
}

func NewMirrorWorker(store Reader, ledger sheets.Ledger, batchSize int) *MirrorWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &MirrorWorker{store: store, ledger: ledger, batchSize: batchSize}
}

// HandleEvent applies one ledger event to the mirror.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	acct := core.AccountID(ev.AccountID)
	if err := acct.Validate(); err != nil {
		slog.WarnContext(ctx, "Dropping event without account", "type", ev.Type, "entity_id", ev.EntityID)
		return nil
	}

	switch ev.Type {
	case amqp.EventTransactionCreated, amqp.EventTransactionUpdated:
		return w.mirrorTransaction(ctx, acct, ev.EntityID)
	case amqp.EventTransactionDeleted:
		if ev.VoucherID == "" {
			slog.WarnContext(ctx, "Delete event has no voucher, nothing to clear", "entity_id", ev.EntityID)
			return nil
		}
		if err := w.ledger.DeleteByVoucher(ctx, acct, ev.VoucherID); err != nil {
			return fmt.Errorf("delete mirrored row: %w", err)
		}
		slog.InfoContext(ctx, "Cleared mirrored transaction", "account_id", acct, "voucher_id", ev.VoucherID)
		return nil
	case amqp.EventLoanCreated, amqp.EventLoanRepaid:
		loan, err := w.store.GetLoan(ctx, acct, ev.EntityID)
		if err != nil {
			if core.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("get loan: %w", err)
		}
		txnID := loan.TransactionID
		if ev.Type == amqp.EventLoanRepaid {
			txnID = loan.RepaymentTransactionID
		}
		return w.mirrorTransaction(ctx, acct, txnID)
	case amqp.EventAccountReplaced:
		n, err := w.ResyncAccount(ctx, acct)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Mirrored replaced account", "account_id", acct, "rows", n)
		return nil
	case amqp.EventLoanOverdue:
		slog.InfoContext(ctx, "Loan overdue", "account_id", acct, "loan_id", ev.EntityID)
		return nil
	default:
		slog.WarnContext(ctx, "Unknown ledger event type", "type", ev.Type)
		return nil
	}
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, acct core.AccountID, id string) error {
	if id == "" {
		return nil
	}
	t, err := w.store.GetTransaction(ctx, acct, id)
	if err != nil {
		if core.IsNotFound(err) {
			// Deleted before the event was handled; its delete event follows.
			slog.DebugContext(ctx, "Transaction gone before mirroring", "account_id", acct, "transaction_id", id)
			return nil
		}
		return fmt.Errorf("get transaction: %w", err)
	}
	names, err := w.loadNames(ctx, acct)
	if err != nil {
		return err
	}
	return w.upsert(ctx, names, t)
}

type displayNames struct {
	categories map[string]string
	users      map[string]string
}

func (w *MirrorWorker) loadNames(ctx context.Context, acct core.AccountID) (displayNames, error) {
	var (
		cats  []core.Category
		users []core.FinancialUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = w.store.ListCategories(gctx, acct)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = w.store.ListFinancialUsers(gctx, acct)
		return err
	})
	if err := g.Wait(); err != nil {
		return displayNames{}, fmt.Errorf("load display names: %w", err)
	}

	n := displayNames{categories: make(map[string]string, len(cats)), users: make(map[string]string, len(users))}
	for _, c := range cats {
		n.categories[c.ID] = c.Name
	}
	for _, u := range users {
		n.users[u.ID] = u.Name
	}
	return n, nil
}

func (w *MirrorWorker) upsert(ctx context.Context, names displayNames, t core.Transaction) error {
	category, ok := names.categories[t.CategoryID]
	if !ok {
		category = core.UncategorizedName
	}
	row := sheets.RowFromTransaction(t, category, names.users[t.FinancialUserID])
	ref, err := w.ledger.UpsertRow(ctx, row)
	if err != nil {
		return fmt.Errorf("upsert mirrored row: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored transaction",
		"account_id", t.AccountID,
		"voucher_id", t.VoucherID,
		"sheets_ref", ref)
	return nil
}

// Resync rewrites every transaction of every account into the mirror. It
// recovers from events lost while the worker was down.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	accounts, err := w.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	total := 0
	for _, acct := range accounts {
		n, err := w.ResyncAccount(ctx, acct)
		if err != nil {
			return err
		}
		total += n
	}
	slog.InfoContext(ctx, "Mirror resync completed", "accounts", len(accounts), "rows", total)
	return nil
}

// ResyncAccount mirrors all transactions of acct, then clears the rows of
// acct whose vouchers no longer exist. It returns how many rows were written.
func (w *MirrorWorker) ResyncAccount(ctx context.Context, acct core.AccountID) (int, error) {
	txns, err := w.store.ListTransactions(ctx, acct)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	names, err := w.loadNames(ctx, acct)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	keep := make(map[string]struct{}, len(txns))
	for _, t := range txns {
		if t.VoucherID == "" {
			continue
		}
		keep[t.VoucherID] = struct{}{}
		g.Go(func() error {
			return w.upsert(gctx, names, t)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("resync account %s: %w", acct, err)
	}

	pruned, err := w.ledger.PruneAccount(ctx, acct, keep)
	if err != nil {
		return 0, fmt.Errorf("prune account %s: %w", acct, err)
	}
	if pruned > 0 {
		slog.InfoContext(ctx, "Cleared stale mirrored rows", "account_id", acct, "rows", pruned)
	}
	return len(keep), nil
}
