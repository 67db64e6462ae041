package memory

import (
	"context"
	"fmt"
	"sync"

	"expensee/internal/core"
	"expensee/internal/sheets"
)

// Ledger is an in-memory mirror used in tests and when Sheets is disabled.
type Ledger struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) find(acct core.AccountID, voucher string) int {
	for i, r := range l.rows {
		if r.Account == acct && r.VoucherID == voucher {
			return i
		}
	}
	return -1
}

// UpsertRow stores the row and returns a synthetic row reference.
func (l *Ledger) UpsertRow(_ context.Context, r sheets.Row) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.find(r.Account, r.VoucherID); i >= 0 {
		l.rows[i] = r
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	l.rows = append(l.rows, r)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

func (l *Ledger) DeleteByVoucher(_ context.Context, acct core.AccountID, voucher string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.find(acct, voucher); i >= 0 {
		l.rows = append(l.rows[:i], l.rows[i+1:]...)
	}
	return nil
}

func (l *Ledger) PruneAccount(_ context.Context, acct core.AccountID, keep map[string]struct{}) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.rows[:0]
	n := 0
	for _, r := range l.rows {
		if _, ok := keep[r.VoucherID]; r.Account == acct && !ok {
			n++
			continue
		}
		kept = append(kept, r)
	}
	l.rows = kept
	return n, nil
}

// Rows returns a copy of the mirrored rows.
func (l *Ledger) Rows() []sheets.Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.Row(nil), l.rows...)
}
