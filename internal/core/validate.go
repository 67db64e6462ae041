package core

import (
	"strings"
	"unicode/utf8"
)

const maxTitleLen = 200

// References is the set of categories and financial users visible to an
// account, used to check that a transaction points at existing records.
type References struct {
	categories []Category
	catIDs     map[string]struct{}
	userIDs    map[string]struct{}
}

func NewReferences(categories []Category, users []FinancialUser) References {
	r := References{
		categories: categories,
		catIDs:     make(map[string]struct{}, len(categories)),
		userIDs:    make(map[string]struct{}, len(users)),
	}
	for _, c := range categories {
		r.catIDs[c.ID] = struct{}{}
	}
	for _, u := range users {
		r.userIDs[u.ID] = struct{}{}
	}
	return r
}

func (r References) HasCategory(id string) bool {
	_, ok := r.catIDs[id]
	return ok
}

func (r References) HasFinancialUser(id string) bool {
	_, ok := r.userIDs[id]
	return ok
}

func (r References) Categories() []Category { return r.categories }

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

// truncateTitle cuts title to maxTitleLen runes.
func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	return string([]rune(title)[:maxTitleLen])
}

// ValidateTransaction checks a transaction before it is stored.
func ValidateTransaction(t Transaction, refs References) error {
	if err := t.AccountID.Validate(); err != nil {
		return invalid("account", err)
	}
	if err := validateTitle(t.Title); err != nil {
		return invalid("title", err)
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return invalid("amount", err)
	}
	if !t.Kind.Valid() {
		return invalid("type", ErrInvalidKind)
	}
	if err := t.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if !refs.HasCategory(t.CategoryID) {
		return invalid("categoryId", ErrUnknownRef)
	}
	if !refs.HasFinancialUser(t.FinancialUserID) {
		return invalid("userId", ErrUnknownRef)
	}
	return nil
}

// ValidateCategory checks name and kind, and that the name is unique
// (case-insensitive) among the categories visible to the account.
func ValidateCategory(c Category, visible []Category) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return invalid("name", ErrEmptyName)
	}
	if !c.Kind.Valid() {
		return invalid("type", ErrInvalidKind)
	}
	for _, other := range visible {
		if other.ID == c.ID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(other.Name), name) {
			return invalid("name", ErrDuplicateName)
		}
	}
	return nil
}

func ValidateFinancialUser(u FinancialUser) error {
	if strings.TrimSpace(u.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if !u.Type.Valid() {
		return invalid("type", ErrInvalidKind)
	}
	return nil
}

// CheckFinancialUserDeletable refuses deletion while any transaction still
// references the financial user.
func CheckFinancialUserDeletable(id string, txns []Transaction) error {
	n := 0
	for _, t := range txns {
		if t.FinancialUserID == id {
			n++
		}
	}
	if n > 0 {
		return &StateError{Op: "delete financial user", Reason: "referenced by transactions", Count: n}
	}
	return nil
}

func ValidateGoal(g Goal) error {
	if err := validateTitle(g.Title); err != nil {
		return invalid("title", err)
	}
	if g.TargetAmount.IsNegative() {
		return invalid("targetAmount", ErrInvalidAmount)
	}
	if g.CurrentAmount.IsNegative() {
		return invalid("currentAmount", ErrInvalidAmount)
	}
	if err := g.Deadline.Validate(); err != nil {
		return invalid("deadline", err)
	}
	if !g.Status.Valid() {
		return invalid("status", ErrInvalidStatus)
	}
	return nil
}
