package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"expensee/internal/core"
)

const loanColumns = `id, transaction_id, repayment_transaction_id, financial_user_id, amount,
	direction, status, due_date, repaid_date, created_at`

func scanLoan(acct core.AccountID, row rowScanner) (core.Loan, error) {
	var (
		l                          core.Loan
		amount, direction, status  string
		dueDate, repaid, createdAt string
	)
	if err := row.Scan(&l.ID, &l.TransactionID, &l.RepaymentTransactionID, &l.FinancialUserID,
		&amount, &direction, &status, &dueDate, &repaid, &createdAt); err != nil {
		return core.Loan{}, err
	}
	var err error
	if l.Amount, err = parseAmount(amount); err != nil {
		return core.Loan{}, err
	}
	if l.DueDate, err = parseDate(dueDate); err != nil {
		return core.Loan{}, fmt.Errorf("parse due date %q: %w", dueDate, err)
	}
	if repaid != "" {
		t, err := parseTime(repaid)
		if err != nil {
			return core.Loan{}, fmt.Errorf("parse repaid date: %w", err)
		}
		l.RepaidDate = &t
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Loan{}, fmt.Errorf("parse created_at: %w", err)
	}
	l.Direction = core.LoanDirection(direction)
	l.Status = core.LoanStatus(status)
	l.AccountID = acct
	return l, nil
}

func repaidValue(l core.Loan) string {
	if l.RepaidDate == nil {
		return ""
	}
	return formatTime(*l.RepaidDate)
}

func (r *SQLiteRepository) ListLoans(ctx context.Context, acct core.AccountID) ([]core.Loan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans
		WHERE account_id = ? ORDER BY created_at DESC, id DESC`, string(acct))
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var out []core.Loan
	for rows.Next() {
		l, err := scanLoan(acct, rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, acct core.AccountID, id string) (core.Loan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE account_id = ? AND id = ?`,
		string(acct), id)
	l, err := scanLoan(acct, row)
	if noRows(err) {
		return core.Loan{}, notFound("loan", id)
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (r *SQLiteRepository) LoanByOrigin(ctx context.Context, acct core.AccountID, txnID string) (core.Loan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans
		WHERE account_id = ? AND transaction_id = ?`, string(acct), txnID)
	l, err := scanLoan(acct, row)
	if noRows(err) {
		return core.Loan{}, notFound("loan", "origin "+txnID)
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan by origin: %w", err)
	}
	return l, nil
}

func insertLoan(ctx context.Context, q querier, acct core.AccountID, l core.Loan) error {
	_, err := q.ExecContext(ctx, `INSERT INTO loans (account_id, `+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(acct), l.ID, l.TransactionID, l.RepaymentTransactionID, l.FinancialUserID, l.Amount.String(),
		string(l.Direction), string(l.Status), formatDate(l.DueDate), repaidValue(l), formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateLoan(ctx context.Context, acct core.AccountID, loan core.Loan, origin core.Transaction) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTransaction(ctx, tx, acct, origin); err != nil {
			return err
		}
		return insertLoan(ctx, tx, acct, loan)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Loan saved to SQLite",
		"account_id", acct,
		"loan_id", loan.ID,
		"transaction_id", origin.ID,
		"direction", loan.Direction)
	return nil
}

func (r *SQLiteRepository) RepayLoan(ctx context.Context, acct core.AccountID, loan core.Loan, repayment core.Transaction) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE loans SET status = ?, repaid_date = ?, repayment_transaction_id = ?
			WHERE account_id = ? AND id = ? AND status = 'pending'`,
			string(loan.Status), repaidValue(loan), loan.RepaymentTransactionID, string(acct), loan.ID)
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			var status string
			err := tx.QueryRowContext(ctx, `SELECT status FROM loans WHERE account_id = ? AND id = ?`,
				string(acct), loan.ID).Scan(&status)
			if noRows(err) {
				return notFound("loan", loan.ID)
			}
			if err != nil {
				return fmt.Errorf("read loan status: %w", err)
			}
			return &core.StateError{Op: "repay loan", Reason: "loan is " + status}
		}
		return insertTransaction(ctx, tx, acct, repayment)
	})
}

func (r *SQLiteRepository) DeleteLoan(ctx context.Context, acct core.AccountID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE account_id = ? AND id = ?`, string(acct), id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return mustAffect(res, "loan", id)
}
