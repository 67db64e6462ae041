package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"expensee/internal/core"
	"expensee/internal/records"
)

func (r *SQLiteRepository) GetSettings(ctx context.Context, acct core.AccountID) (core.Settings, bool, error) {
	var (
		s                   core.Settings
		notify, backup      int
		numberFormat, theme string
	)
	err := r.db.QueryRowContext(ctx, `SELECT currency, number_format, date_format, theme, voucher_prefix,
		software_name, notifications, auto_backup FROM settings WHERE account_id = ?`, string(acct)).
		Scan(&s.Currency, &numberFormat, &s.DateFormat, &theme, &s.VoucherPrefix, &s.SoftwareName, &notify, &backup)
	if noRows(err) {
		return core.Settings{}, false, nil
	}
	if err != nil {
		return core.Settings{}, false, fmt.Errorf("get settings: %w", err)
	}
	s.NumberFormat = core.NumberFormat(numberFormat)
	s.Theme = core.Theme(theme)
	s.Notifications = notify != 0
	s.AutoBackup = backup != 0
	return s, true, nil
}

func saveSettings(ctx context.Context, q querier, acct core.AccountID, s core.Settings) error {
	_, err := q.ExecContext(ctx, `INSERT INTO settings (account_id, currency, number_format, date_format, theme,
		voucher_prefix, software_name, notifications, auto_backup)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET currency = excluded.currency, number_format = excluded.number_format,
		date_format = excluded.date_format, theme = excluded.theme, voucher_prefix = excluded.voucher_prefix,
		software_name = excluded.software_name, notifications = excluded.notifications,
		auto_backup = excluded.auto_backup`,
		string(acct), s.Currency, string(s.NumberFormat), s.DateFormat, string(s.Theme), s.VoucherPrefix,
		s.SoftwareName, boolInt(s.Notifications), boolInt(s.AutoBackup))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, acct core.AccountID, s core.Settings) error {
	return saveSettings(ctx, r.db, acct, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLiteRepository) NextVoucherSeq(ctx context.Context, acct core.AccountID, day string) (int, error) {
	var seq int
	err := r.db.QueryRowContext(ctx, `INSERT INTO voucher_counters (account_id, day, seq) VALUES (?, ?, 1)
		ON CONFLICT(account_id, day) DO UPDATE SET seq = seq + 1
		RETURNING seq`, string(acct), day).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next voucher sequence: %w", err)
	}
	return seq, nil
}

func ensureVoucherSeq(ctx context.Context, q querier, acct core.AccountID, day string, seq int) error {
	_, err := q.ExecContext(ctx, `INSERT INTO voucher_counters (account_id, day, seq) VALUES (?, ?, ?)
		ON CONFLICT(account_id, day) DO UPDATE SET seq = MAX(seq, excluded.seq)`, string(acct), day, seq)
	if err != nil {
		return fmt.Errorf("ensure voucher sequence: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) EnsureVoucherSeq(ctx context.Context, acct core.AccountID, day string, seq int) error {
	return ensureVoucherSeq(ctx, r.db, acct, day, seq)
}

var accountTables = []string{"transactions", "loans", "categories", "financial_users", "goals", "settings", "voucher_counters"}

func deleteAccountRows(ctx context.Context, tx *sql.Tx, acct core.AccountID) error {
	for _, table := range accountTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE account_id = ?`, string(acct)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ResetAccount(ctx context.Context, acct core.AccountID) error {
	if err := r.withTx(ctx, func(tx *sql.Tx) error { return deleteAccountRows(ctx, tx, acct) }); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Account data reset", "account_id", acct)
	return nil
}

func (r *SQLiteRepository) ReplaceAccount(ctx context.Context, acct core.AccountID, snap records.Snapshot) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteAccountRows(ctx, tx, acct); err != nil {
			return err
		}
		if snap.Settings != nil {
			if err := saveSettings(ctx, tx, acct, *snap.Settings); err != nil {
				return err
			}
		}
		for _, c := range snap.Categories {
			c.AccountID = acct
			if err := insertCategory(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, u := range snap.FinancialUsers {
			if err := insertFinancialUser(ctx, tx, acct, u); err != nil {
				return err
			}
		}
		for _, t := range snap.Transactions {
			if err := insertTransaction(ctx, tx, acct, t); err != nil {
				return err
			}
		}
		for _, l := range snap.Loans {
			if err := insertLoan(ctx, tx, acct, l); err != nil {
				return err
			}
		}
		for _, g := range snap.Goals {
			if err := insertGoal(ctx, tx, acct, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListAccounts returns every account that is registered or owns records.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.AccountID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM accounts
		UNION SELECT DISTINCT account_id FROM transactions
		UNION SELECT DISTINCT account_id FROM loans
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.AccountID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, core.AccountID(id))
	}
	return out, rows.Err()
}
