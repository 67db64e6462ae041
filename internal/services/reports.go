package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"expensee/internal/core"
)

func filter(txns []core.Transaction, pred core.Predicate) []core.Transaction {
	if pred == nil {
		return txns
	}
	out := make([]core.Transaction, 0, len(txns))
	for _, t := range txns {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// Summary totals the account's transactions selected by pred.
func (s *LedgerService) Summary(ctx context.Context, acct core.AccountID, pred core.Predicate) (core.PeriodSummary, error) {
	txns, err := s.ListTransactions(ctx, acct, TransactionFilter{})
	if err != nil {
		return core.PeriodSummary{}, err
	}
	return core.Summarize(txns, pred), nil
}

// Breakdown groups the selected transactions per category.
func (s *LedgerService) Breakdown(ctx context.Context, acct core.AccountID, pred core.Predicate, order core.BreakdownOrder) ([]core.CategoryBreakdown, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	var (
		txns []core.Transaction
		cats []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = s.store.ListTransactions(gctx, acct)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = s.store.ListCategories(gctx, acct)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load breakdown: %w", err)
	}
	return core.BreakdownByCategory(filter(txns, pred), cats, order), nil
}

func (s *LedgerService) LoanSummary(ctx context.Context, acct core.AccountID) (core.LoanSummary, error) {
	loans, err := s.ListLoans(ctx, acct)
	if err != nil {
		return core.LoanSummary{}, err
	}
	return core.SummarizeLoans(loans), nil
}

// Trend returns income and expense per month of year.
func (s *LedgerService) Trend(ctx context.Context, acct core.AccountID, year int) ([]core.MonthSummary, error) {
	txns, err := s.ListTransactions(ctx, acct, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	return core.MonthlyTrend(txns, year), nil
}

func (s *LedgerService) Dashboard(ctx context.Context, acct core.AccountID) (core.Dashboard, error) {
	if err := checkAccount(acct); err != nil {
		return core.Dashboard{}, err
	}
	var (
		txns  []core.Transaction
		loans []core.Loan
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = s.store.ListTransactions(gctx, acct)
		return err
	})
	g.Go(func() error {
		var err error
		loans, err = s.store.ListLoans(gctx, acct)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, fmt.Errorf("load dashboard: %w", err)
	}
	return core.BuildDashboard(txns, loans, s.now()), nil
}
