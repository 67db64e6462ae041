package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedName labels transactions whose category no longer exists.
const UncategorizedName = "Uncategorized"

const (
	ByExpenseDesc BreakdownOrder = iota
	ByIncomeDesc
	ByName
)

var hundred = decimal.NewFromInt(100)

type (
	// Predicate selects the transactions an aggregate covers.
	Predicate func(Transaction) bool

	BreakdownOrder int

	PeriodSummary struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Net     decimal.Decimal `json:"net"`
		// SavingsRate is Net/Income, or 0 without income.
		SavingsRate float64 `json:"savingsRate"`
	}

	CategoryBreakdown struct {
		CategoryID        string          `json:"categoryId"`
		Name              string          `json:"name"`
		Color             string          `json:"color,omitempty"`
		Income            decimal.Decimal `json:"income"`
		Expense           decimal.Decimal `json:"expense"`
		Net               decimal.Decimal `json:"net"`
		Count             int             `json:"count"`
		PctOfTotalIncome  float64         `json:"pctOfTotalIncome"`
		PctOfTotalExpense float64         `json:"pctOfTotalExpense"`
	}

	LoanSummary struct {
		TotalGiven    decimal.Decimal `json:"totalGiven"`
		TotalTaken    decimal.Decimal `json:"totalTaken"`
		NetPosition   decimal.Decimal `json:"netPosition"`
		PendingCount  int             `json:"pendingCount"`
		RepaidCount   int             `json:"repaidCount"`
		OrphanedCount int             `json:"orphanedCount"`
	}

	MonthSummary struct {
		Year  int `json:"year"`
		Month int `json:"month"` // 1-12
		PeriodSummary
	}

	Dashboard struct {
		TotalBalance    decimal.Decimal `json:"totalBalance"`
		MonthlyIncome   decimal.Decimal `json:"monthlyIncome"`
		MonthlyExpenses decimal.Decimal `json:"monthlyExpenses"`
		NetLoans        decimal.Decimal `json:"netLoans"`
		SavingsRate     float64         `json:"savingsRate"`
		OverdueLoans    int             `json:"overdueLoans"`
	}
)

func All(Transaction) bool { return true }

func InMonth(year int, month time.Month) Predicate {
	return func(t Transaction) bool {
		return t.Date.Year() == year && t.Date.Month() == month
	}
}

// Between is inclusive on both ends. A zero bound is open.
func Between(from, to Date) Predicate {
	return func(t Transaction) bool {
		if !from.IsZero() && t.Date.Before(from.Time) {
			return false
		}
		if !to.IsZero() && t.Date.After(to.Time) {
			return false
		}
		return true
	}
}

// NetBalance is total income minus total expense at ledger level.
func NetBalance(txns []Transaction) decimal.Decimal {
	return Summarize(txns, All).Net
}

func Summarize(txns []Transaction, pred Predicate) PeriodSummary {
	if pred == nil {
		pred = All
	}
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range txns {
		if !pred(t) {
			continue
		}
		switch t.Kind.Ledger() {
		case KindIncome:
			income = income.Add(t.Amount)
		case KindExpense:
			expense = expense.Add(t.Amount)
		}
	}
	return newPeriodSummary(income, expense)
}

func newPeriodSummary(income, expense decimal.Decimal) PeriodSummary {
	s := PeriodSummary{Income: income, Expense: expense, Net: income.Sub(expense)}
	if income.IsPositive() {
		s.SavingsRate, _ = s.Net.Div(income).Float64()
	}
	return s
}

// BreakdownByCategory groups transactions per category. Categories without
// activity are left out; unknown category ids share one Uncategorized row.
func BreakdownByCategory(txns []Transaction, categories []Category, order BreakdownOrder) []CategoryBreakdown {
	byID := make(map[string]Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	rows := make(map[string]*CategoryBreakdown)
	totalIncome, totalExpense := decimal.Zero, decimal.Zero
	for _, t := range txns {
		key := t.CategoryID
		c, known := byID[key]
		if !known {
			key = ""
		}
		row, ok := rows[key]
		if !ok {
			row = &CategoryBreakdown{CategoryID: key, Name: UncategorizedName, Income: decimal.Zero, Expense: decimal.Zero}
			if known {
				row.Name = c.Name
				row.Color = c.Color
			}
			rows[key] = row
		}
		row.Count++
		switch t.Kind.Ledger() {
		case KindIncome:
			row.Income = row.Income.Add(t.Amount)
			totalIncome = totalIncome.Add(t.Amount)
		case KindExpense:
			row.Expense = row.Expense.Add(t.Amount)
			totalExpense = totalExpense.Add(t.Amount)
		}
	}

	out := make([]CategoryBreakdown, 0, len(rows))
	for _, row := range rows {
		row.Net = row.Income.Sub(row.Expense)
		row.PctOfTotalIncome = percent(row.Income, totalIncome)
		row.PctOfTotalExpense = percent(row.Expense, totalExpense)
		out = append(out, *row)
	}
	sortBreakdown(out, order)
	return out
}

func percent(part, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	p, _ := part.Mul(hundred).Div(total).Float64()
	return p
}

func sortBreakdown(rows []CategoryBreakdown, order BreakdownOrder) {
	byName := func(a, b CategoryBreakdown) bool {
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.CategoryID < b.CategoryID
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch order {
		case ByExpenseDesc:
			if c := a.Expense.Cmp(b.Expense); c != 0 {
				return c > 0
			}
		case ByIncomeDesc:
			if c := a.Income.Cmp(b.Income); c != 0 {
				return c > 0
			}
		}
		return byName(a, b)
	})
}

// SummarizeLoans totals outstanding loans. Only pending loans count towards
// the amounts; all statuses are counted.
func SummarizeLoans(loans []Loan) LoanSummary {
	s := LoanSummary{TotalGiven: decimal.Zero, TotalTaken: decimal.Zero}
	for _, l := range loans {
		switch l.Status {
		case LoanRepaid:
			s.RepaidCount++
			continue
		case LoanOrphaned:
			s.OrphanedCount++
			continue
		}
		s.PendingCount++
		if l.Direction == LoanGiven {
			s.TotalGiven = s.TotalGiven.Add(l.Amount)
		} else {
			s.TotalTaken = s.TotalTaken.Add(l.Amount)
		}
	}
	s.NetPosition = s.TotalGiven.Sub(s.TotalTaken)
	return s
}

// MonthlyTrend returns one summary per month of year.
func MonthlyTrend(txns []Transaction, year int) []MonthSummary {
	out := make([]MonthSummary, 12)
	for m := 1; m <= 12; m++ {
		out[m-1] = MonthSummary{Year: year, Month: m, PeriodSummary: Summarize(txns, InMonth(year, time.Month(m)))}
	}
	return out
}

// BuildDashboard computes the headline figures as of now.
func BuildDashboard(txns []Transaction, loans []Loan, now time.Time) Dashboard {
	month := Summarize(txns, InMonth(now.Year(), now.Month()))
	return Dashboard{
		TotalBalance:    NetBalance(txns),
		MonthlyIncome:   month.Income,
		MonthlyExpenses: month.Expense,
		NetLoans:        SummarizeLoans(loans).NetPosition,
		SavingsRate:     month.SavingsRate,
		OverdueLoans:    len(OverdueLoans(loans, now)),
	}
}
