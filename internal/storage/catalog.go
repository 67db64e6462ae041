package storage

import (
	"context"
	"database/sql"
	"fmt"

	"expensee/internal/core"
)

// Categories

func (r *SQLiteRepository) ListCategories(ctx context.Context, acct core.AccountID) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT account_id, id, name, color, kind, created_at FROM categories
		WHERE account_id = '' OR account_id = ?
		ORDER BY account_id <> '', name COLLATE NOCASE, id`, string(acct))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c              core.Category
			owner, created string
		)
		if err := rows.Scan(&owner, &c.ID, &c.Name, &c.Color, &c.Kind, &created); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.AccountID = core.AccountID(owner)
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertCategory(ctx context.Context, q querier, c core.Category) error {
	_, err := q.ExecContext(ctx, `INSERT INTO categories (account_id, id, name, color, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(c.AccountID), c.ID, c.Name, c.Color, string(c.Kind), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	return insertCategory(ctx, r.db, c)
}

// UpdateCategory only touches the account's own rows; global categories are
// read-only to accounts.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, acct core.AccountID, c core.Category) error {
	res, err := r.db.ExecContext(ctx, `UPDATE categories SET name = ?, color = ?, kind = ?
		WHERE account_id = ? AND id = ?`, c.Name, c.Color, string(c.Kind), string(acct), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return mustAffect(res, "category", c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, acct core.AccountID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE account_id = ? AND id = ?`, string(acct), id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return mustAffect(res, "category", id)
}

// Financial users

func (r *SQLiteRepository) ListFinancialUsers(ctx context.Context, acct core.AccountID) ([]core.FinancialUser, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, created_at FROM financial_users
		WHERE account_id = ? ORDER BY name, id`, string(acct))
	if err != nil {
		return nil, fmt.Errorf("list financial users: %w", err)
	}
	defer rows.Close()

	var out []core.FinancialUser
	for rows.Next() {
		var (
			u       core.FinancialUser
			created string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Type, &created); err != nil {
			return nil, fmt.Errorf("scan financial user: %w", err)
		}
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		u.AccountID = acct
		out = append(out, u)
	}
	return out, rows.Err()
}

func insertFinancialUser(ctx context.Context, q querier, acct core.AccountID, u core.FinancialUser) error {
	_, err := q.ExecContext(ctx, `INSERT INTO financial_users (account_id, id, name, type, created_at)
		VALUES (?, ?, ?, ?, ?)`, string(acct), u.ID, u.Name, string(u.Type), formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert financial user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateFinancialUser(ctx context.Context, acct core.AccountID, u core.FinancialUser) error {
	return insertFinancialUser(ctx, r.db, acct, u)
}

func (r *SQLiteRepository) UpdateFinancialUser(ctx context.Context, acct core.AccountID, u core.FinancialUser) error {
	res, err := r.db.ExecContext(ctx, `UPDATE financial_users SET name = ?, type = ? WHERE account_id = ? AND id = ?`,
		u.Name, string(u.Type), string(acct), u.ID)
	if err != nil {
		return fmt.Errorf("update financial user: %w", err)
	}
	return mustAffect(res, "financial user", u.ID)
}

// DeleteFinancialUser counts references and deletes in one transaction so a
// concurrent insert cannot slip in between.
func (r *SQLiteRepository) DeleteFinancialUser(ctx context.Context, acct core.AccountID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions
			WHERE account_id = ? AND financial_user_id = ?`, string(acct), id).Scan(&refs); err != nil {
			return fmt.Errorf("count references: %w", err)
		}
		if refs > 0 {
			return &core.StateError{Op: "delete financial user", Reason: "referenced by transactions", Count: refs}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM financial_users WHERE account_id = ? AND id = ?`, string(acct), id)
		if err != nil {
			return fmt.Errorf("delete financial user: %w", err)
		}
		return mustAffect(res, "financial user", id)
	})
}

// Goals

const goalColumns = `id, title, target_amount, current_amount, deadline, status, created_at`

func scanGoal(acct core.AccountID, row rowScanner) (core.Goal, error) {
	var (
		g                        core.Goal
		target, current          string
		deadline, status, create string
	)
	if err := row.Scan(&g.ID, &g.Title, &target, &current, &deadline, &status, &create); err != nil {
		return core.Goal{}, err
	}
	var err error
	if g.TargetAmount, err = parseAmount(target); err != nil {
		return core.Goal{}, err
	}
	if g.CurrentAmount, err = parseAmount(current); err != nil {
		return core.Goal{}, err
	}
	if g.Deadline, err = parseDate(deadline); err != nil {
		return core.Goal{}, fmt.Errorf("parse deadline %q: %w", deadline, err)
	}
	if g.CreatedAt, err = parseTime(create); err != nil {
		return core.Goal{}, fmt.Errorf("parse created_at: %w", err)
	}
	g.Status = core.GoalStatus(status)
	g.AccountID = acct
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, acct core.AccountID) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals
		WHERE account_id = ? ORDER BY deadline, id`, string(acct))
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(acct, rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, acct core.AccountID, id string) (core.Goal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE account_id = ? AND id = ?`,
		string(acct), id)
	g, err := scanGoal(acct, row)
	if noRows(err) {
		return core.Goal{}, notFound("goal", id)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func insertGoal(ctx context.Context, q querier, acct core.AccountID, g core.Goal) error {
	_, err := q.ExecContext(ctx, `INSERT INTO goals (account_id, `+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(acct), g.ID, g.Title, g.TargetAmount.String(), g.CurrentAmount.String(),
		formatDate(g.Deadline), string(g.Status), formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, acct core.AccountID, g core.Goal) error {
	return insertGoal(ctx, r.db, acct, g)
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, acct core.AccountID, g core.Goal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE goals SET title = ?, target_amount = ?, current_amount = ?,
		deadline = ?, status = ? WHERE account_id = ? AND id = ?`,
		g.Title, g.TargetAmount.String(), g.CurrentAmount.String(), formatDate(g.Deadline), string(g.Status),
		string(acct), g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return mustAffect(res, "goal", g.ID)
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, acct core.AccountID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE account_id = ? AND id = ?`, string(acct), id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return mustAffect(res, "goal", id)
}
