package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"expensee/internal/amqp"
	"expensee/internal/core"
)

// TransactionFilter narrows a transaction listing. Zero fields match all.
type TransactionFilter struct {
	Kind            core.TransactionKind
	CategoryID      string
	FinancialUserID string
	From, To        core.Date
	// Query matches title or voucher, case-insensitively.
	Query string
}

func (f TransactionFilter) match(t core.Transaction) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.FinancialUserID != "" && t.FinancialUserID != f.FinancialUserID {
		return false
	}
	if !core.Between(f.From, f.To)(t) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.VoucherID), q)
	}
	return true
}

// TransactionInput holds the editable fields of a transaction.
type TransactionInput struct {
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Amount          decimal.Decimal      `json:"amount"`
	Kind            core.TransactionKind `json:"type"`
	CategoryID      string               `json:"categoryId"`
	FinancialUserID string               `json:"userId"`
	Date            core.Date            `json:"date"`
}

func (s *LedgerService) ListTransactions(ctx context.Context, acct core.AccountID, f TransactionFilter) ([]core.Transaction, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactions(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := txns[:0:0]
	for _, t := range txns {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, acct core.AccountID, id string) (core.Transaction, error) {
	if err := checkAccount(acct); err != nil {
		return core.Transaction{}, err
	}
	return s.store.GetTransaction(ctx, acct, id)
}

// CreateTransaction validates and stores a new transaction with a fresh
// voucher id.
func (s *LedgerService) CreateTransaction(ctx context.Context, acct core.AccountID, in TransactionInput) (core.Transaction, error) {
	if err := checkAccount(acct); err != nil {
		return core.Transaction{}, err
	}
	refs, err := s.references(ctx, acct)
	if err != nil {
		return core.Transaction{}, err
	}
	now := s.now().UTC()
	t := core.Transaction{
		ID:              s.newID(),
		AccountID:       acct,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Amount:          in.Amount,
		Kind:            in.Kind,
		CategoryID:      in.CategoryID,
		FinancialUserID: in.FinancialUserID,
		Date:            in.Date,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	// Validate before reserving a voucher so rejected input burns no number.
	if err := core.ValidateTransaction(t, refs); err != nil {
		return core.Transaction{}, err
	}
	if t.VoucherID, err = s.nextVoucher(ctx, acct, now); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.CreateTransaction(ctx, acct, t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"account_id", acct,
		"transaction_id", t.ID,
		"voucher_id", t.VoucherID,
		"type", t.Kind,
		"amount", t.Amount.String())
	s.publish(ctx, amqp.EventTransactionCreated, acct, t.ID, t.VoucherID)
	return t, nil
}

// UpdateTransaction edits a transaction in place. The voucher and creation
// time never change. A transaction backing a loan keeps its amount and type.
func (s *LedgerService) UpdateTransaction(ctx context.Context, acct core.AccountID, id string, in TransactionInput) (core.Transaction, error) {
	if err := checkAccount(acct); err != nil {
		return core.Transaction{}, err
	}
	cur, err := s.store.GetTransaction(ctx, acct, id)
	if err != nil {
		return core.Transaction{}, err
	}
	refs, err := s.references(ctx, acct)
	if err != nil {
		return core.Transaction{}, err
	}

	t := cur
	t.Title = strings.TrimSpace(in.Title)
	t.Description = strings.TrimSpace(in.Description)
	t.Amount = in.Amount
	t.Kind = in.Kind
	t.CategoryID = in.CategoryID
	t.FinancialUserID = in.FinancialUserID
	t.Date = in.Date
	t.UpdatedAt = s.now().UTC()
	if err := core.ValidateTransaction(t, refs); err != nil {
		return core.Transaction{}, err
	}

	if !t.Amount.Equal(cur.Amount) || t.Kind != cur.Kind {
		if err := s.checkNotLoanBacked(ctx, acct, id); err != nil {
			return core.Transaction{}, err
		}
	}
	if err := s.store.UpdateTransaction(ctx, acct, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction updated", "account_id", acct, "transaction_id", id, "voucher_id", t.VoucherID)
	s.publish(ctx, amqp.EventTransactionUpdated, acct, t.ID, t.VoucherID)
	return t, nil
}

func (s *LedgerService) checkNotLoanBacked(ctx context.Context, acct core.AccountID, id string) error {
	loans, err := s.store.ListLoans(ctx, acct)
	if err != nil {
		return fmt.Errorf("list loans: %w", err)
	}
	for _, l := range loans {
		if l.TransactionID == id || l.RepaymentTransactionID == id {
			return &core.StateError{Op: "update transaction", Reason: "amount and type are fixed by loan " + l.ID}
		}
	}
	return nil
}

// DeleteTransaction removes a transaction. A pending loan it originated is
// moved to orphaned in the same store call; no other record is touched.
func (s *LedgerService) DeleteTransaction(ctx context.Context, acct core.AccountID, id string) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	t, err := s.store.GetTransaction(ctx, acct, id)
	if err != nil {
		return err
	}

	var orphan *core.Loan
	loan, err := s.store.LoanByOrigin(ctx, acct, id)
	switch {
	case err == nil:
		if l, changed := core.OrphanLoan(loan); changed {
			orphan = &l
		}
	case !core.IsNotFound(err):
		return fmt.Errorf("find loan by origin: %w", err)
	}

	if err := s.store.DeleteTransaction(ctx, acct, id, orphan); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if orphan != nil {
		slog.WarnContext(ctx, "Loan orphaned by transaction delete", "account_id", acct, "loan_id", orphan.ID, "transaction_id", id)
	}
	slog.InfoContext(ctx, "Transaction deleted", "account_id", acct, "transaction_id", id, "voucher_id", t.VoucherID)
	s.publish(ctx, amqp.EventTransactionDeleted, acct, id, t.VoucherID)
	return nil
}
