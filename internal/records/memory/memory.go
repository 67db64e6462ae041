// Package memory is an in-process implementation of the record store, used
// for tests and for running without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"expensee/internal/auth"
	"expensee/internal/core"
	"expensee/internal/records"
)

type accountData struct {
	txns     map[string]core.Transaction
	loans    map[string]core.Loan
	cats     map[string]core.Category
	users    map[string]core.FinancialUser
	goals    map[string]core.Goal
	settings *core.Settings
	vouchers map[string]int
}

func newAccountData() *accountData {
	return &accountData{
		txns:     map[string]core.Transaction{},
		loans:    map[string]core.Loan{},
		cats:     map[string]core.Category{},
		users:    map[string]core.FinancialUser{},
		goals:    map[string]core.Goal{},
		vouchers: map[string]int{},
	}
}

// Store keeps every account's records in nested maps guarded by one mutex,
// so multi-record operations are atomic.
type Store struct {
	mu       sync.Mutex
	accounts map[core.AccountID]*accountData
	global   map[string]core.Category

	logins   map[core.AccountID]auth.Account
	sessions map[string]auth.Session
}

var (
	_ records.Store        = (*Store)(nil)
	_ auth.CredentialStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		accounts: map[core.AccountID]*accountData{},
		global:   map[string]core.Category{},
		logins:   map[core.AccountID]auth.Account{},
		sessions: map[string]auth.Session{},
	}
}

func (s *Store) Close() error { return nil }

// data returns the account's partition, creating it on first write.
func (s *Store) data(acct core.AccountID) *accountData {
	d, ok := s.accounts[acct]
	if !ok {
		d = newAccountData()
		s.accounts[acct] = d
	}
	return d
}

// peek returns the account's partition without creating it.
func (s *Store) peek(acct core.AccountID) *accountData {
	if d, ok := s.accounts[acct]; ok {
		return d
	}
	return newAccountData()
}

func notFound(entity, id string) error {
	return &core.NotFoundError{Entity: entity, ID: id}
}

// Transactions

func (s *Store) ListTransactions(_ context.Context, acct core.AccountID) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	out := make([]core.Transaction, 0, len(d.txns))
	for _, t := range d.txns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, acct core.AccountID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.peek(acct).txns[id]
	if !ok {
		return core.Transaction{}, notFound("transaction", id)
	}
	return t, nil
}

func (s *Store) CreateTransaction(_ context.Context, acct core.AccountID, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(acct)
	if err := d.checkVoucher(t); err != nil {
		return err
	}
	t.AccountID = acct
	d.txns[t.ID] = t
	return nil
}

func (d *accountData) checkVoucher(t core.Transaction) error {
	if t.VoucherID == "" {
		return nil
	}
	for _, other := range d.txns {
		if other.ID != t.ID && other.VoucherID == t.VoucherID {
			return &core.StateError{Op: "store transaction", Reason: "voucher " + t.VoucherID + " already used"}
		}
	}
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, acct core.AccountID, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.txns[t.ID]; !ok {
		return notFound("transaction", t.ID)
	}
	if err := d.checkVoucher(t); err != nil {
		return err
	}
	t.AccountID = acct
	d.txns[t.ID] = t
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, acct core.AccountID, id string, orphan *core.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.txns[id]; !ok {
		return notFound("transaction", id)
	}
	delete(d.txns, id)
	if orphan != nil {
		if cur, ok := d.loans[orphan.ID]; ok && cur.Status == core.LoanPending {
			cur.Status = orphan.Status
			d.loans[orphan.ID] = cur
		}
	}
	return nil
}

// Loans

func (s *Store) ListLoans(_ context.Context, acct core.AccountID) ([]core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	out := make([]core.Loan, 0, len(d.loans))
	for _, l := range d.loans {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetLoan(_ context.Context, acct core.AccountID, id string) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.peek(acct).loans[id]
	if !ok {
		return core.Loan{}, notFound("loan", id)
	}
	return l, nil
}

func (s *Store) LoanByOrigin(_ context.Context, acct core.AccountID, txnID string) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.peek(acct).loans {
		if l.TransactionID == txnID {
			return l, nil
		}
	}
	return core.Loan{}, notFound("loan", "origin "+txnID)
}

func (s *Store) CreateLoan(_ context.Context, acct core.AccountID, loan core.Loan, origin core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(acct)
	if err := d.checkVoucher(origin); err != nil {
		return err
	}
	origin.AccountID = acct
	loan.AccountID = acct
	d.txns[origin.ID] = origin
	d.loans[loan.ID] = loan
	return nil
}

func (s *Store) RepayLoan(_ context.Context, acct core.AccountID, loan core.Loan, repayment core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	cur, ok := d.loans[loan.ID]
	if !ok {
		return notFound("loan", loan.ID)
	}
	if cur.Status != core.LoanPending {
		return &core.StateError{Op: "repay loan", Reason: "loan is " + string(cur.Status)}
	}
	if err := d.checkVoucher(repayment); err != nil {
		return err
	}
	repayment.AccountID = acct
	loan.AccountID = acct
	d.txns[repayment.ID] = repayment
	d.loans[loan.ID] = loan
	return nil
}

func (s *Store) DeleteLoan(_ context.Context, acct core.AccountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.loans[id]; !ok {
		return notFound("loan", id)
	}
	delete(d.loans, id)
	return nil
}

// Categories

func (s *Store) ListCategories(_ context.Context, acct core.AccountID) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.global))
	for _, c := range s.global {
		out = append(out, c)
	}
	sortCategories(out)
	own := make([]core.Category, 0)
	for _, c := range s.peek(acct).cats {
		own = append(own, c)
	}
	sortCategories(own)
	return append(out, own...), nil
}

func sortCategories(cs []core.Category) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := strings.ToLower(cs[i].Name), strings.ToLower(cs[j].Name)
		if a != b {
			return a < b
		}
		return cs[i].ID < cs[j].ID
	})
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Global() {
		s.global[c.ID] = c
		return nil
	}
	s.data(c.AccountID).cats[c.ID] = c
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, acct core.AccountID, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.cats[c.ID]; !ok {
		return notFound("category", c.ID)
	}
	c.AccountID = acct
	d.cats[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, acct core.AccountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.cats[id]; !ok {
		return notFound("category", id)
	}
	delete(d.cats, id)
	return nil
}

// Financial users

func (s *Store) ListFinancialUsers(_ context.Context, acct core.AccountID) ([]core.FinancialUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	out := make([]core.FinancialUser, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateFinancialUser(_ context.Context, acct core.AccountID, u core.FinancialUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.AccountID = acct
	s.data(acct).users[u.ID] = u
	return nil
}

func (s *Store) UpdateFinancialUser(_ context.Context, acct core.AccountID, u core.FinancialUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.users[u.ID]; !ok {
		return notFound("financial user", u.ID)
	}
	u.AccountID = acct
	d.users[u.ID] = u
	return nil
}

func (s *Store) DeleteFinancialUser(_ context.Context, acct core.AccountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.users[id]; !ok {
		return notFound("financial user", id)
	}
	txns := make([]core.Transaction, 0, len(d.txns))
	for _, t := range d.txns {
		txns = append(txns, t)
	}
	if err := core.CheckFinancialUserDeletable(id, txns); err != nil {
		return err
	}
	delete(d.users, id)
	return nil
}

// Goals

func (s *Store) ListGoals(_ context.Context, acct core.AccountID) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	out := make([]core.Goal, 0, len(d.goals))
	for _, g := range d.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline.Time) {
			return out[i].Deadline.Before(out[j].Deadline.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetGoal(_ context.Context, acct core.AccountID, id string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.peek(acct).goals[id]
	if !ok {
		return core.Goal{}, notFound("goal", id)
	}
	return g, nil
}

func (s *Store) CreateGoal(_ context.Context, acct core.AccountID, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.AccountID = acct
	s.data(acct).goals[g.ID] = g
	return nil
}

func (s *Store) UpdateGoal(_ context.Context, acct core.AccountID, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.goals[g.ID]; !ok {
		return notFound("goal", g.ID)
	}
	g.AccountID = acct
	d.goals[g.ID] = g
	return nil
}

func (s *Store) DeleteGoal(_ context.Context, acct core.AccountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if _, ok := d.goals[id]; !ok {
		return notFound("goal", id)
	}
	delete(d.goals, id)
	return nil
}

// Settings and vouchers

func (s *Store) GetSettings(_ context.Context, acct core.AccountID) (core.Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.peek(acct)
	if d.settings == nil {
		return core.Settings{}, false, nil
	}
	return *d.settings, true, nil
}

func (s *Store) SaveSettings(_ context.Context, acct core.AccountID, st core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data(acct).settings = &st
	return nil
}

func (s *Store) NextVoucherSeq(_ context.Context, acct core.AccountID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(acct)
	d.vouchers[day]++
	return d.vouchers[day], nil
}

func (s *Store) EnsureVoucherSeq(_ context.Context, acct core.AccountID, day string, seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(acct)
	if d.vouchers[day] < seq {
		d.vouchers[day] = seq
	}
	return nil
}

// Account data

func (s *Store) ReplaceAccount(_ context.Context, acct core.AccountID, snap records.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := newAccountData()
	if snap.Settings != nil {
		st := *snap.Settings
		d.settings = &st
	}
	for _, c := range snap.Categories {
		c.AccountID = acct
		d.cats[c.ID] = c
	}
	for _, u := range snap.FinancialUsers {
		u.AccountID = acct
		d.users[u.ID] = u
	}
	for _, t := range snap.Transactions {
		t.AccountID = acct
		d.txns[t.ID] = t
	}
	for _, l := range snap.Loans {
		l.AccountID = acct
		d.loans[l.ID] = l
	}
	for _, g := range snap.Goals {
		g.AccountID = acct
		d.goals[g.ID] = g
	}
	s.accounts[acct] = d
	return nil
}

func (s *Store) ResetAccount(_ context.Context, acct core.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, acct)
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.AccountID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[core.AccountID]struct{}{}
	for id := range s.accounts {
		seen[id] = struct{}{}
	}
	for id := range s.logins {
		seen[id] = struct{}{}
	}
	out := make([]core.AccountID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Credentials

func (s *Store) CreateAccount(_ context.Context, a auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.logins {
		if strings.EqualFold(other.Username, a.Username) || strings.EqualFold(other.Email, a.Email) {
			return auth.ErrAccountExists
		}
	}
	s.logins[a.ID] = a
	return nil
}

func (s *Store) AccountByUsername(_ context.Context, username string) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.logins {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}
	return auth.Account{}, notFound("account", username)
}

func (s *Store) AccountByID(_ context.Context, id core.AccountID) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.logins[id]
	if !ok {
		return auth.Account{}, notFound("account", string(id))
	}
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logins[a.ID]; !ok {
		return notFound("account", string(a.ID))
	}
	for id, other := range s.logins {
		if id != a.ID && strings.EqualFold(other.Email, a.Email) {
			return auth.ErrAccountExists
		}
	}
	s.logins[a.ID] = a
	return nil
}

func (s *Store) AllAccounts(_ context.Context) ([]auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Account, 0, len(s.logins))
	for _, a := range s.logins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, sess auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) SessionByToken(_ context.Context, token string) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return auth.Session{}, notFound("session", "token")
	}
	return sess, nil
}

func (s *Store) ExtendSession(_ context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return notFound("session", "token")
	}
	sess.ExpiresAt = expiresAt
	s.sessions[token] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return notFound("session", "token")
	}
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for tok, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, tok)
			n++
		}
	}
	return n, nil
}
