package storage

import (
	"context"
	"fmt"
	"time"

	"expensee/internal/auth"
	"expensee/internal/core"
)

const accountColumns = `id, username, email, name, role, password_hash, created_at`

func scanAccount(row rowScanner) (auth.Account, error) {
	var (
		a             auth.Account
		id, role, cre string
	)
	if err := row.Scan(&id, &a.Username, &a.Email, &a.Name, &role, &a.PasswordHash, &cre); err != nil {
		return auth.Account{}, err
	}
	created, err := parseTime(cre)
	if err != nil {
		return auth.Account{}, fmt.Errorf("parse created_at: %w", err)
	}
	a.ID = core.AccountID(id)
	a.Role = auth.Role(role)
	a.CreatedAt = created
	return a, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a auth.Account) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), a.Username, a.Email, a.Name, string(a.Role), a.PasswordHash, formatTime(a.CreatedAt))
	if isUniqueViolation(err) {
		return auth.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AccountByUsername(ctx context.Context, username string) (auth.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username))
	if noRows(err) {
		return auth.Account{}, notFound("account", username)
	}
	if err != nil {
		return auth.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) AccountByID(ctx context.Context, id core.AccountID) (auth.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id)))
	if noRows(err) {
		return auth.Account{}, notFound("account", string(id))
	}
	if err != nil {
		return auth.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a auth.Account) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET email = ?, name = ?, role = ?, password_hash = ? WHERE id = ?`,
		a.Email, a.Name, string(a.Role), a.PasswordHash, string(a.ID))
	if isUniqueViolation(err) {
		return auth.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return mustAffect(res, "account", string(a.ID))
}

func (r *SQLiteRepository) AllAccounts(ctx context.Context) ([]auth.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, username`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []auth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s auth.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (token, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, string(s.AccountID), formatTime(s.CreatedAt), formatTime(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SessionByToken(ctx context.Context, token string) (auth.Session, error) {
	var (
		s                  auth.Session
		acct, cre, expires string
	)
	err := r.db.QueryRowContext(ctx, `SELECT token, account_id, created_at, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &acct, &cre, &expires)
	if noRows(err) {
		return auth.Session{}, notFound("session", "token")
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("get session: %w", err)
	}
	s.AccountID = core.AccountID(acct)
	if s.CreatedAt, err = parseTime(cre); err != nil {
		return auth.Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	if s.ExpiresAt, err = parseTime(expires); err != nil {
		return auth.Session{}, fmt.Errorf("parse expires_at: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ExtendSession(ctx context.Context, token string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE token = ?`, formatTime(expiresAt), token)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	return mustAffect(res, "session", "token")
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return mustAffect(res, "session", "token")
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
