package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"expensee/internal/amqp"
	"expensee/internal/core"
	"expensee/internal/records"
)

// Export returns every record of acct. Global categories are left out; they
// belong to no account.
func (s *LedgerService) Export(ctx context.Context, acct core.AccountID) (records.Snapshot, error) {
	if err := checkAccount(acct); err != nil {
		return records.Snapshot{}, err
	}
	var snap records.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, found, err := s.store.GetSettings(gctx, acct)
		if found {
			snap.Settings = &st
		}
		return err
	})
	g.Go(func() error {
		cats, err := s.store.ListCategories(gctx, acct)
		for _, c := range cats {
			if !c.Global() {
				snap.Categories = append(snap.Categories, c)
			}
		}
		return err
	})
	g.Go(func() (err error) {
		snap.FinancialUsers, err = s.store.ListFinancialUsers(gctx, acct)
		return err
	})
	g.Go(func() (err error) {
		snap.Transactions, err = s.store.ListTransactions(gctx, acct)
		return err
	})
	g.Go(func() (err error) {
		snap.Loans, err = s.store.ListLoans(gctx, acct)
		return err
	})
	g.Go(func() (err error) {
		snap.Goals, err = s.store.ListGoals(gctx, acct)
		return err
	})
	if err := g.Wait(); err != nil {
		return records.Snapshot{}, fmt.Errorf("export account: %w", err)
	}
	slog.InfoContext(ctx, "Account exported",
		"account_id", acct,
		"transactions", len(snap.Transactions),
		"loans", len(snap.Loans))
	return snap, nil
}

// Import replaces all records of acct with snap. The snapshot is validated
// as a whole first; nothing is written when any record is rejected.
// Transactions without a voucher get one minted for their creation day.
func (s *LedgerService) Import(ctx context.Context, acct core.AccountID, snap records.Snapshot) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	globals, err := s.store.ListCategories(ctx, "")
	if err != nil {
		return fmt.Errorf("list global categories: %w", err)
	}
	if err := s.prepareSnapshot(acct, &snap, globals); err != nil {
		return err
	}
	highest := s.assignVouchers(&snap)
	if err := s.store.ReplaceAccount(ctx, acct, snap); err != nil {
		return fmt.Errorf("replace account: %w", err)
	}

	// Keep generated vouchers from colliding with imported ones.
	for day, seq := range highest {
		if err := s.store.EnsureVoucherSeq(ctx, acct, day, seq); err != nil {
			return fmt.Errorf("ensure voucher sequence: %w", err)
		}
	}

	slog.InfoContext(ctx, "Account imported",
		"account_id", acct,
		"categories", len(snap.Categories),
		"users", len(snap.FinancialUsers),
		"transactions", len(snap.Transactions),
		"loans", len(snap.Loans),
		"goals", len(snap.Goals))
	s.publish(ctx, amqp.EventAccountReplaced, acct, string(acct), "")
	return nil
}

// assignVouchers mints vouchers for transactions that have none and returns
// the highest sequence used per day.
func (s *LedgerService) assignVouchers(snap *records.Snapshot) map[string]int {
	prefix := s.defaults.VoucherPrefix
	if snap.Settings != nil {
		prefix = snap.Settings.VoucherPrefix
	}
	highest := map[string]int{}
	used := map[string]struct{}{}
	for _, t := range snap.Transactions {
		if t.VoucherID == "" {
			continue
		}
		used[t.VoucherID] = struct{}{}
		if day, seq, ok := core.ParseVoucherSeq(prefix, t.VoucherID); ok && seq > highest[day] {
			highest[day] = seq
		}
	}
	for i := range snap.Transactions {
		t := &snap.Transactions[i]
		if t.VoucherID != "" {
			continue
		}
		day := t.CreatedAt
		if day.IsZero() {
			day = t.Date.Time
		}
		key := core.VoucherDay(day)
		for {
			highest[key]++
			v := core.FormatVoucher(prefix, day, highest[key])
			if _, taken := used[v]; !taken {
				t.VoucherID = v
				used[v] = struct{}{}
				break
			}
		}
	}
	return highest
}

func duplicateID(kind, id string, seen map[string]struct{}) error {
	if _, dup := seen[id]; dup {
		return fmt.Errorf("%s %q: %w", kind, id, &core.ValidationError{Field: "id", Err: core.ErrDuplicateID})
	}
	seen[id] = struct{}{}
	return nil
}

func (s *LedgerService) prepareSnapshot(acct core.AccountID, snap *records.Snapshot, globals []core.Category) error {
	if snap.Settings != nil {
		st := snap.Settings.Normalize(s.defaults)
		if err := st.Validate(); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		snap.Settings = &st
	}

	visible := append([]core.Category(nil), globals...)
	seen := map[string]struct{}{}
	for _, c := range globals {
		seen[c.ID] = struct{}{}
	}
	for i := range snap.Categories {
		c := &snap.Categories[i]
		c.AccountID = acct
		if err := core.ValidateCategory(*c, visible); err != nil {
			return fmt.Errorf("category %q: %w", c.ID, err)
		}
		if err := duplicateID("category", c.ID, seen); err != nil {
			return err
		}
		visible = append(visible, *c)
	}
	seen = map[string]struct{}{}
	for i := range snap.FinancialUsers {
		u := &snap.FinancialUsers[i]
		u.AccountID = acct
		if err := core.ValidateFinancialUser(*u); err != nil {
			return fmt.Errorf("user %q: %w", u.ID, err)
		}
		if err := duplicateID("user", u.ID, seen); err != nil {
			return err
		}
	}

	refs := core.NewReferences(visible, snap.FinancialUsers)
	vouchers := map[string]struct{}{}
	txns := make(map[string]*core.Transaction, len(snap.Transactions))
	for i := range snap.Transactions {
		t := &snap.Transactions[i]
		t.AccountID = acct
		if err := core.ValidateTransaction(*t, refs); err != nil {
			return fmt.Errorf("transaction %q: %w", t.ID, err)
		}
		if _, dup := txns[t.ID]; dup {
			return fmt.Errorf("transaction %q: %w", t.ID, &core.ValidationError{Field: "id", Err: core.ErrDuplicateID})
		}
		txns[t.ID] = t
		if t.VoucherID != "" {
			if _, dup := vouchers[t.VoucherID]; dup {
				return &core.StateError{Op: "import", Reason: "duplicate voucher " + t.VoucherID}
			}
			vouchers[t.VoucherID] = struct{}{}
		}
	}

	seen = map[string]struct{}{}
	linked := map[string]string{}
	for i := range snap.Loans {
		l := &snap.Loans[i]
		l.AccountID = acct
		if err := duplicateID("loan", l.ID, seen); err != nil {
			return err
		}
		origin := txns[l.TransactionID]
		var repayment *core.Transaction
		if l.RepaymentTransactionID != "" {
			repayment = txns[l.RepaymentTransactionID]
		}
		if err := core.ValidateLoan(*l, origin, repayment, refs); err != nil {
			return fmt.Errorf("loan %q: %w", l.ID, err)
		}
		for _, id := range []string{l.TransactionID, l.RepaymentTransactionID} {
			if id == "" || txns[id] == nil {
				continue
			}
			if other, ok := linked[id]; ok {
				return fmt.Errorf("loan %q: transaction %q already belongs to loan %q: %w",
					l.ID, id, other, &core.ValidationError{Field: "transactionId", Err: core.ErrDuplicateID})
			}
			linked[id] = l.ID
		}
		// Pending loans need their origin; anything else only keeps history.
		if origin == nil && l.Status == core.LoanPending {
			l.Status = core.LoanOrphaned
		}
	}

	seen = map[string]struct{}{}
	for i := range snap.Goals {
		g := &snap.Goals[i]
		g.AccountID = acct
		if err := core.ValidateGoal(*g); err != nil {
			return fmt.Errorf("goal %q: %w", g.ID, err)
		}
		if err := duplicateID("goal", g.ID, seen); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes all records of acct.
func (s *LedgerService) Reset(ctx context.Context, acct core.AccountID) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	if err := s.store.ResetAccount(ctx, acct); err != nil {
		return fmt.Errorf("reset account: %w", err)
	}
	slog.WarnContext(ctx, "Account data reset", "account_id", acct)
	s.publish(ctx, amqp.EventAccountReplaced, acct, string(acct), "")
	return nil
}
