package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

const (
	KindIncome    TransactionKind = "income"
	KindExpense   TransactionKind = "expense"
	KindLoanGiven TransactionKind = "loan_given"
	KindLoanTaken TransactionKind = "loan_taken"
)

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
	CategoryShared  CategoryKind = "shared"
)

const (
	PartyOffice PartyType = "Office"
	PartyFriend PartyType = "Friend"
	PartyFamily PartyType = "Family"
	PartyClient PartyType = "Client"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

type (
	// AccountID scopes every record to the owning login account.
	AccountID string

	TransactionKind string
	CategoryKind    string
	PartyType       string
	GoalStatus      string

	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID              string          `json:"id"`
		AccountID       AccountID       `json:"-"`
		VoucherID       string          `json:"voucherId"`
		Title           string          `json:"title"`
		Description     string          `json:"description,omitempty"`
		Amount          decimal.Decimal `json:"amount"`
		Kind            TransactionKind `json:"type"`
		CategoryID      string          `json:"categoryId"`
		FinancialUserID string          `json:"userId"`
		Date            Date            `json:"date"`
		CreatedAt       time.Time       `json:"createdAt"`
		UpdatedAt       time.Time       `json:"updatedAt"`
	}

	// Category is global when AccountID is empty.
	Category struct {
		ID        string       `json:"id"`
		AccountID AccountID    `json:"-"`
		Name      string       `json:"name"`
		Color     string       `json:"color,omitempty"`
		Kind      CategoryKind `json:"type"`
		CreatedAt time.Time    `json:"createdAt"`
	}

	// FinancialUser is a counterparty transactions are attributed to.
	FinancialUser struct {
		ID        string    `json:"id"`
		AccountID AccountID `json:"-"`
		Name      string    `json:"name"`
		Type      PartyType `json:"type"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Goal struct {
		ID            string          `json:"id"`
		AccountID     AccountID       `json:"-"`
		Title         string          `json:"title"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		Deadline      Date            `json:"deadline"`
		Status        GoalStatus      `json:"status"`
		CreatedAt     time.Time       `json:"createdAt"`
	}
)

var (
	ErrMissingAccount = errors.New("missing account")
	ErrInvalidDay     = errors.New("invalid day")
	ErrInvalidMonth   = errors.New("invalid month")
	ErrZeroDate       = errors.New("date cannot be zero")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidKind    = errors.New("invalid kind")
	ErrEmptyTitle     = errors.New("empty title")
	ErrTitleTooLong   = errors.New("title too long (max 200 characters)")
	ErrEmptyName      = errors.New("empty name")
	ErrDuplicateName  = errors.New("name already exists")
	ErrUnknownRef     = errors.New("unknown reference")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrLoanMismatch   = errors.New("does not match the loan transaction")
)

func (a AccountID) Validate() error {
	if strings.TrimSpace(string(a)) == "" {
		return ErrMissingAccount
	}
	return nil
}

func (a AccountID) String() string { return string(a) }

func (k TransactionKind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindLoanGiven, KindLoanTaken:
		return true
	}
	return false
}

// Ledger maps a kind onto the two ledger directions. Loan tags count as the
// cash movement they represent.
func (k TransactionKind) Ledger() TransactionKind {
	switch k {
	case KindLoanGiven:
		return KindExpense
	case KindLoanTaken:
		return KindIncome
	}
	return k
}

func (k CategoryKind) Valid() bool {
	switch k {
	case CategoryIncome, CategoryExpense, CategoryShared:
		return true
	}
	return false
}

func (p PartyType) Valid() bool {
	switch p {
	case PartyOffice, PartyFriend, PartyFamily, PartyClient:
		return true
	}
	return false
}

func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalPaused:
		return true
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrZeroDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Time.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrZeroDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps as well as plain days.
	if len(s) > len(dateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return ErrZeroDate
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Global reports whether the category is shared by every account.
func (c Category) Global() bool { return c.AccountID == "" }

// Progress returns the completed fraction of the goal, capped at 1.
func (g Goal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	p, _ := g.CurrentAmount.Div(g.TargetAmount).Float64()
	if p > 1 {
		return 1
	}
	return p
}

// Contribute adds amount to the goal and completes it once the target is met.
func (g Goal) Contribute(amount decimal.Decimal) (Goal, error) {
	if !amount.IsPositive() {
		return g, &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	if g.Status == GoalActive && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.Status = GoalCompleted
	}
	return g, nil
}
