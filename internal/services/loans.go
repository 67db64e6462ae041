package services

import (
	"context"
	"fmt"
	"log/slog"

	"expensee/internal/amqp"
	"expensee/internal/core"
)

func (s *LedgerService) ListLoans(ctx context.Context, acct core.AccountID) ([]core.Loan, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	loans, err := s.store.ListLoans(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (s *LedgerService) GetLoan(ctx context.Context, acct core.AccountID, id string) (core.Loan, error) {
	if err := checkAccount(acct); err != nil {
		return core.Loan{}, err
	}
	return s.store.GetLoan(ctx, acct, id)
}

// OpenLoan records a loan and its originating transaction in one store call.
func (s *LedgerService) OpenLoan(ctx context.Context, acct core.AccountID, req core.LoanRequest) (core.Loan, core.Transaction, error) {
	if err := checkAccount(acct); err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	refs, err := s.references(ctx, acct)
	if err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	// Dry run with a blank stamp so invalid requests reserve no voucher.
	if _, _, err := core.OpenLoan(acct, req, refs, core.Stamp{Now: s.now().UTC()}); err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	st, err := s.stamp(ctx, acct)
	if err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	loan, txn, err := core.OpenLoan(acct, req, refs, st)
	if err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	if err := s.store.CreateLoan(ctx, acct, loan, txn); err != nil {
		return core.Loan{}, core.Transaction{}, fmt.Errorf("create loan: %w", err)
	}

	slog.InfoContext(ctx, "Loan opened",
		"account_id", acct,
		"loan_id", loan.ID,
		"direction", loan.Direction,
		"amount", loan.Amount.String(),
		"voucher_id", txn.VoucherID)
	s.publish(ctx, amqp.EventLoanCreated, acct, loan.ID, txn.VoucherID)
	return loan, txn, nil
}

// RepayLoan settles a pending loan and records the repayment transaction.
// Repaying a loan that is not pending fails with a *core.StateError.
func (s *LedgerService) RepayLoan(ctx context.Context, acct core.AccountID, id string) (core.Loan, core.Transaction, error) {
	if err := checkAccount(acct); err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	loan, err := s.store.GetLoan(ctx, acct, id)
	if err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	if loan.Status != core.LoanPending {
		return core.Loan{}, core.Transaction{}, &core.StateError{Op: "repay loan", Reason: "loan is " + string(loan.Status)}
	}
	origin, err := s.store.GetTransaction(ctx, acct, loan.TransactionID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.Loan{}, core.Transaction{}, &core.StateError{Op: "repay loan", Reason: "originating transaction is gone"}
		}
		return core.Loan{}, core.Transaction{}, err
	}

	st, err := s.stamp(ctx, acct)
	if err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	repaid, repayment, err := core.RepayLoan(loan, origin, st)
	if err != nil {
		return core.Loan{}, core.Transaction{}, err
	}
	// The store re-checks the pending status, so a concurrent repay loses here.
	if err := s.store.RepayLoan(ctx, acct, repaid, repayment); err != nil {
		return core.Loan{}, core.Transaction{}, fmt.Errorf("repay loan: %w", err)
	}

	slog.InfoContext(ctx, "Loan repaid",
		"account_id", acct,
		"loan_id", repaid.ID,
		"repayment_id", repayment.ID,
		"voucher_id", repayment.VoucherID)
	s.publish(ctx, amqp.EventLoanRepaid, acct, repaid.ID, repayment.VoucherID)
	return repaid, repayment, nil
}

// DeleteLoan removes only the loan record. Its transactions stay in the
// ledger.
func (s *LedgerService) DeleteLoan(ctx context.Context, acct core.AccountID, id string) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	if err := s.store.DeleteLoan(ctx, acct, id); err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	slog.InfoContext(ctx, "Loan deleted", "account_id", acct, "loan_id", id)
	return nil
}

// OverdueLoans lists the pending loans of acct past their due date.
func (s *LedgerService) OverdueLoans(ctx context.Context, acct core.AccountID) ([]core.Loan, error) {
	loans, err := s.ListLoans(ctx, acct)
	if err != nil {
		return nil, err
	}
	return core.OverdueLoans(loans, s.now()), nil
}
