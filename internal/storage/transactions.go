package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"expensee/internal/core"
)

const transactionColumns = `id, voucher_id, title, description, amount, kind, category_id,
	financial_user_id, date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(acct core.AccountID, row rowScanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		amount, kind, day    string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.VoucherID, &t.Title, &t.Description, &amount, &kind,
		&t.CategoryID, &t.FinancialUserID, &day, &createdAt, &updatedAt); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if t.Amount, err = parseAmount(amount); err != nil {
		return core.Transaction{}, err
	}
	if t.Date, err = parseDate(day); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", day, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse updated_at: %w", err)
	}
	t.Kind = core.TransactionKind(kind)
	t.AccountID = acct
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, acct core.AccountID) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? ORDER BY date DESC, created_at DESC, id DESC`, string(acct))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(acct, rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, acct core.AccountID, id string) (core.Transaction, error) {
	return getTransaction(ctx, r.db, acct, id)
}

func getTransaction(ctx context.Context, q querier, acct core.AccountID, id string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND id = ?`, string(acct), id)
	t, err := scanTransaction(acct, row)
	if noRows(err) {
		return core.Transaction{}, notFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func insertTransaction(ctx context.Context, q querier, acct core.AccountID, t core.Transaction) error {
	_, err := q.ExecContext(ctx, `INSERT INTO transactions (account_id, `+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(acct), t.ID, t.VoucherID, t.Title, t.Description, t.Amount.String(), string(t.Kind),
		t.CategoryID, t.FinancialUserID, formatDate(t.Date), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if conflict := transactionConflict(err, t); conflict != nil {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// transactionConflict names the unique key a write of t collided with.
func transactionConflict(err error, t core.Transaction) error {
	switch {
	case uniqueViolationOn(err, "transactions.voucher_id"):
		return &core.StateError{Op: "store transaction", Reason: "voucher " + t.VoucherID + " already used"}
	case uniqueViolationOn(err, "transactions.id"):
		return &core.StateError{Op: "store transaction", Reason: "transaction " + t.ID + " already exists"}
	}
	return nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, acct core.AccountID, t core.Transaction) error {
	if err := insertTransaction(ctx, r.db, acct, t); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"account_id", acct,
		"id", t.ID,
		"voucher_id", t.VoucherID,
		"amount", t.Amount.String(),
		"kind", t.Kind)
	return nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, acct core.AccountID, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET voucher_id = ?, title = ?, description = ?,
		amount = ?, kind = ?, category_id = ?, financial_user_id = ?, date = ?, updated_at = ?
		WHERE account_id = ? AND id = ?`,
		t.VoucherID, t.Title, t.Description, t.Amount.String(), string(t.Kind), t.CategoryID,
		t.FinancialUserID, formatDate(t.Date), formatTime(t.UpdatedAt), string(acct), t.ID)
	if conflict := transactionConflict(err, t); conflict != nil {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return mustAffect(res, "transaction", t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, acct core.AccountID, id string, orphan *core.Loan) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ? AND id = ?`, string(acct), id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if err := mustAffect(res, "transaction", id); err != nil {
			return err
		}
		if orphan == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE loans SET status = ?
			WHERE account_id = ? AND id = ? AND status = 'pending'`,
			string(orphan.Status), string(acct), orphan.ID); err != nil {
			return fmt.Errorf("orphan loan: %w", err)
		}
		return nil
	})
}
