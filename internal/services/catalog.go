package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"expensee/internal/core"
)

func (s *LedgerService) ListCategories(ctx context.Context, acct core.AccountID) ([]core.Category, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	cats, err := s.store.ListCategories(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// CreateCategory adds an account category. Names are unique across the
// global categories and the account's own, ignoring case.
func (s *LedgerService) CreateCategory(ctx context.Context, acct core.AccountID, c core.Category) (core.Category, error) {
	visible, err := s.ListCategories(ctx, acct)
	if err != nil {
		return core.Category{}, err
	}
	c.ID = s.newID()
	c.AccountID = acct
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = s.now().UTC()
	if err := core.ValidateCategory(c, visible); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "account_id", acct, "category_id", c.ID, "name", c.Name)
	return c, nil
}

// UpdateCategory renames or recolors an account category. Global categories
// are not visible to the update and report not found.
func (s *LedgerService) UpdateCategory(ctx context.Context, acct core.AccountID, id string, in core.Category) (core.Category, error) {
	visible, err := s.ListCategories(ctx, acct)
	if err != nil {
		return core.Category{}, err
	}
	var cur *core.Category
	for i := range visible {
		if visible[i].ID == id && !visible[i].Global() {
			cur = &visible[i]
			break
		}
	}
	if cur == nil {
		return core.Category{}, &core.NotFoundError{Entity: "category", ID: id}
	}
	c := *cur
	c.Name = strings.TrimSpace(in.Name)
	c.Color = in.Color
	c.Kind = in.Kind
	if err := core.ValidateCategory(c, visible); err != nil {
		return core.Category{}, err
	}
	if err := s.store.UpdateCategory(ctx, acct, c); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes an account category. Transactions keep their
// reference and are reported as uncategorized.
func (s *LedgerService) DeleteCategory(ctx context.Context, acct core.AccountID, id string) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, acct, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	slog.InfoContext(ctx, "Category deleted", "account_id", acct, "category_id", id)
	return nil
}

// CreateGlobalCategory adds a category shared by all accounts. It is an
// administrative operation and is not reachable from account scoped routes.
func (s *LedgerService) CreateGlobalCategory(ctx context.Context, c core.Category) (core.Category, error) {
	// Global names must not clash with other global categories.
	existing, err := s.store.ListCategories(ctx, "")
	if err != nil {
		return core.Category{}, fmt.Errorf("list categories: %w", err)
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.AccountID = ""
	c.Name = strings.TrimSpace(c.Name)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if err := core.ValidateCategory(c, existing); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create global category: %w", err)
	}
	return c, nil
}

// EnsureGlobalCategories creates the seeded global categories that do not
// exist yet, matching by id. It returns how many were created.
func (s *LedgerService) EnsureGlobalCategories(ctx context.Context, cats []core.Category) (int, error) {
	existing, err := s.store.ListCategories(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.ID] = true
	}
	n := 0
	for _, c := range cats {
		if c.ID != "" && have[c.ID] {
			continue
		}
		created, err := s.CreateGlobalCategory(ctx, c)
		if err != nil {
			return n, fmt.Errorf("seed category %q: %w", c.Name, err)
		}
		have[created.ID] = true
		n++
	}
	if n > 0 {
		slog.InfoContext(ctx, "Seeded global categories", "created", n)
	}
	return n, nil
}

func (s *LedgerService) ListFinancialUsers(ctx context.Context, acct core.AccountID) ([]core.FinancialUser, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	users, err := s.store.ListFinancialUsers(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("list financial users: %w", err)
	}
	return users, nil
}

func (s *LedgerService) CreateFinancialUser(ctx context.Context, acct core.AccountID, u core.FinancialUser) (core.FinancialUser, error) {
	if err := checkAccount(acct); err != nil {
		return core.FinancialUser{}, err
	}
	u.ID = s.newID()
	u.AccountID = acct
	u.Name = strings.TrimSpace(u.Name)
	u.CreatedAt = s.now().UTC()
	if err := core.ValidateFinancialUser(u); err != nil {
		return core.FinancialUser{}, err
	}
	if err := s.store.CreateFinancialUser(ctx, acct, u); err != nil {
		return core.FinancialUser{}, fmt.Errorf("create financial user: %w", err)
	}
	slog.InfoContext(ctx, "Financial user created", "account_id", acct, "user_id", u.ID)
	return u, nil
}

func (s *LedgerService) UpdateFinancialUser(ctx context.Context, acct core.AccountID, id string, in core.FinancialUser) (core.FinancialUser, error) {
	users, err := s.ListFinancialUsers(ctx, acct)
	if err != nil {
		return core.FinancialUser{}, err
	}
	for _, u := range users {
		if u.ID != id {
			continue
		}
		u.Name = strings.TrimSpace(in.Name)
		u.Type = in.Type
		if err := core.ValidateFinancialUser(u); err != nil {
			return core.FinancialUser{}, err
		}
		if err := s.store.UpdateFinancialUser(ctx, acct, u); err != nil {
			return core.FinancialUser{}, fmt.Errorf("update financial user: %w", err)
		}
		return u, nil
	}
	return core.FinancialUser{}, &core.NotFoundError{Entity: "financial user", ID: id}
}

// DeleteFinancialUser is refused while transactions reference the user.
func (s *LedgerService) DeleteFinancialUser(ctx context.Context, acct core.AccountID, id string) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	txns, err := s.store.ListTransactions(ctx, acct)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	if err := core.CheckFinancialUserDeletable(id, txns); err != nil {
		return err
	}
	// The store checks again inside its own unit of work.
	if err := s.store.DeleteFinancialUser(ctx, acct, id); err != nil {
		return fmt.Errorf("delete financial user: %w", err)
	}
	slog.InfoContext(ctx, "Financial user deleted", "account_id", acct, "user_id", id)
	return nil
}

func (s *LedgerService) ListGoals(ctx context.Context, acct core.AccountID) ([]core.Goal, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	goals, err := s.store.ListGoals(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

func (s *LedgerService) CreateGoal(ctx context.Context, acct core.AccountID, g core.Goal) (core.Goal, error) {
	if err := checkAccount(acct); err != nil {
		return core.Goal{}, err
	}
	g.ID = s.newID()
	g.AccountID = acct
	g.Title = strings.TrimSpace(g.Title)
	g.CreatedAt = s.now().UTC()
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	if err := core.ValidateGoal(g); err != nil {
		return core.Goal{}, err
	}
	if err := s.store.CreateGoal(ctx, acct, g); err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	return g, nil
}

func (s *LedgerService) UpdateGoal(ctx context.Context, acct core.AccountID, id string, in core.Goal) (core.Goal, error) {
	if err := checkAccount(acct); err != nil {
		return core.Goal{}, err
	}
	g, err := s.store.GetGoal(ctx, acct, id)
	if err != nil {
		return core.Goal{}, err
	}
	g.Title = strings.TrimSpace(in.Title)
	g.TargetAmount = in.TargetAmount
	g.CurrentAmount = in.CurrentAmount
	g.Deadline = in.Deadline
	if in.Status != "" {
		g.Status = in.Status
	}
	if err := core.ValidateGoal(g); err != nil {
		return core.Goal{}, err
	}
	if err := s.store.UpdateGoal(ctx, acct, g); err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	return g, nil
}

// ContributeToGoal adds amount to a goal's progress.
func (s *LedgerService) ContributeToGoal(ctx context.Context, acct core.AccountID, id string, amount decimal.Decimal) (core.Goal, error) {
	if err := checkAccount(acct); err != nil {
		return core.Goal{}, err
	}
	g, err := s.store.GetGoal(ctx, acct, id)
	if err != nil {
		return core.Goal{}, err
	}
	if g, err = g.Contribute(amount); err != nil {
		return core.Goal{}, err
	}
	if err := s.store.UpdateGoal(ctx, acct, g); err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	if g.Status == core.GoalCompleted {
		slog.InfoContext(ctx, "Goal completed", "account_id", acct, "goal_id", g.ID)
	}
	return g, nil
}

func (s *LedgerService) DeleteGoal(ctx context.Context, acct core.AccountID, id string) error {
	if err := checkAccount(acct); err != nil {
		return err
	}
	if err := s.store.DeleteGoal(ctx, acct, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}
