package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanGiven LoanDirection = "given"
	LoanTaken LoanDirection = "taken"
)

const (
	LoanPending LoanStatus = "pending"
	LoanRepaid  LoanStatus = "repaid"
	// LoanOrphaned marks a pending loan whose originating transaction was
	// deleted. It is terminal and cannot be repaid.
	LoanOrphaned LoanStatus = "orphaned"
)

type (
	LoanDirection string
	LoanStatus    string

	Loan struct {
		ID                     string          `json:"id"`
		AccountID              AccountID       `json:"-"`
		TransactionID          string          `json:"transactionId"`
		RepaymentTransactionID string          `json:"repaymentTransactionId,omitempty"`
		FinancialUserID        string          `json:"userId"`
		Amount                 decimal.Decimal `json:"amount"`
		Direction              LoanDirection   `json:"type"`
		Status                 LoanStatus      `json:"status"`
		DueDate                Date            `json:"dueDate"`
		RepaidDate             *time.Time      `json:"repaidDate,omitempty"`
		CreatedAt              time.Time       `json:"createdAt"`
	}

	// LoanRequest carries the user supplied fields for opening a loan.
	LoanRequest struct {
		FinancialUserID string
		Amount          decimal.Decimal
		Direction       LoanDirection
		Title           string
		Description     string
		CategoryID      string
		Date            Date
		DueDate         Date
	}

	// Stamp holds the generated identifiers and clock reading for one
	// lifecycle step, keeping the transitions deterministic.
	Stamp struct {
		LoanID        string
		TransactionID string
		VoucherID     string
		Now           time.Time
	}
)

func (d LoanDirection) Valid() bool {
	return d == LoanGiven || d == LoanTaken
}

// OriginKind is the ledger kind of the transaction that opens the loan.
func (d LoanDirection) OriginKind() TransactionKind {
	if d == LoanTaken {
		return KindIncome
	}
	return KindExpense
}

// RepaymentKind is the inverse of OriginKind.
func (d LoanDirection) RepaymentKind() TransactionKind {
	if d == LoanTaken {
		return KindExpense
	}
	return KindIncome
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanRepaid, LoanOrphaned:
		return true
	}
	return false
}

// OpenLoan builds a pending loan together with the transaction that moves the
// money. Both must be persisted together.
func OpenLoan(account AccountID, req LoanRequest, refs References, st Stamp) (Loan, Transaction, error) {
	if err := account.Validate(); err != nil {
		return Loan{}, Transaction{}, invalid("account", err)
	}
	if !req.Direction.Valid() {
		return Loan{}, Transaction{}, invalid("type", ErrInvalidKind)
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return Loan{}, Transaction{}, invalid("amount", err)
	}
	if strings.TrimSpace(req.FinancialUserID) == "" || !refs.HasFinancialUser(req.FinancialUserID) {
		return Loan{}, Transaction{}, invalid("userId", ErrUnknownRef)
	}

	categoryID := req.CategoryID
	if categoryID == "" {
		if c, ok := DefaultLoanCategory(refs.Categories()); ok {
			categoryID = c.ID
		}
	}
	day := req.Date
	if day.IsZero() {
		day = DateOf(st.Now)
	}

	txn := Transaction{
		ID:              st.TransactionID,
		AccountID:       account,
		VoucherID:       st.VoucherID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Amount:          req.Amount,
		Kind:            req.Direction.OriginKind(),
		CategoryID:      categoryID,
		FinancialUserID: req.FinancialUserID,
		Date:            day,
		CreatedAt:       st.Now,
		UpdatedAt:       st.Now,
	}
	if err := ValidateTransaction(txn, refs); err != nil {
		return Loan{}, Transaction{}, err
	}

	loan := Loan{
		ID:              st.LoanID,
		AccountID:       account,
		TransactionID:   txn.ID,
		FinancialUserID: req.FinancialUserID,
		Amount:          req.Amount,
		Direction:       req.Direction,
		Status:          LoanPending,
		DueDate:         req.DueDate,
		CreatedAt:       st.Now,
	}
	return loan, txn, nil
}

// RepayLoan transitions a pending loan to repaid and builds the inverse
// transaction. Any other status is rejected; repaying is never a no-op.
func RepayLoan(loan Loan, origin Transaction, st Stamp) (Loan, Transaction, error) {
	if loan.Status != LoanPending {
		return Loan{}, Transaction{}, &StateError{Op: "repay loan", Reason: "loan is " + string(loan.Status)}
	}
	if origin.ID != loan.TransactionID {
		return Loan{}, Transaction{}, &StateError{Op: "repay loan", Reason: "originating transaction mismatch"}
	}

	desc := origin.Description
	if desc == "" {
		desc = origin.Title
	}
	repayment := Transaction{
		ID:              st.TransactionID,
		AccountID:       loan.AccountID,
		VoucherID:       st.VoucherID,
		Title:           truncateTitle("Loan Repayment: " + origin.Title),
		Description:     "Repayment of loan: " + desc,
		Amount:          loan.Amount,
		Kind:            loan.Direction.RepaymentKind(),
		CategoryID:      origin.CategoryID,
		FinancialUserID: loan.FinancialUserID,
		Date:            DateOf(st.Now),
		CreatedAt:       st.Now,
		UpdatedAt:       st.Now,
	}

	repaidAt := st.Now
	loan.Status = LoanRepaid
	loan.RepaidDate = &repaidAt
	loan.RepaymentTransactionID = repayment.ID
	return loan, repayment, nil
}

// ValidateLoan checks a loan that arrives whole, as in a backup. origin and
// repayment are the linked transactions when they are known; a loan must
// match its origin in amount and ledger direction, and a repayment must move
// the same amount back.
func ValidateLoan(l Loan, origin, repayment *Transaction, refs References) error {
	if strings.TrimSpace(l.ID) == "" {
		return invalid("id", ErrUnknownRef)
	}
	if !l.Direction.Valid() {
		return invalid("type", ErrInvalidKind)
	}
	if !l.Status.Valid() {
		return invalid("status", ErrInvalidStatus)
	}
	if err := ValidateAmount(l.Amount); err != nil {
		return invalid("amount", err)
	}
	if !refs.HasFinancialUser(l.FinancialUserID) {
		return invalid("userId", ErrUnknownRef)
	}
	if origin != nil {
		if !origin.Amount.Equal(l.Amount) {
			return invalid("amount", ErrLoanMismatch)
		}
		if origin.Kind.Ledger() != l.Direction.OriginKind() {
			return invalid("type", ErrLoanMismatch)
		}
	}
	if repayment != nil {
		if l.Status != LoanRepaid {
			return invalid("repaymentTransactionId", ErrInvalidStatus)
		}
		if !repayment.Amount.Equal(l.Amount) {
			return invalid("amount", ErrLoanMismatch)
		}
		if repayment.Kind.Ledger() != l.Direction.RepaymentKind() {
			return invalid("type", ErrLoanMismatch)
		}
	}
	return nil
}

// OrphanLoan is applied when the originating transaction of a loan is
// deleted. Only pending loans change; repaid loans keep their history.
func OrphanLoan(loan Loan) (Loan, bool) {
	if loan.Status != LoanPending {
		return loan, false
	}
	loan.Status = LoanOrphaned
	return loan, true
}

// Overdue reports whether a pending loan is past its due date on day now.
func (l Loan) Overdue(now time.Time) bool {
	if l.Status != LoanPending || l.DueDate.IsZero() {
		return false
	}
	return l.DueDate.Before(DateOf(now).Time)
}

func OverdueLoans(loans []Loan, now time.Time) []Loan {
	var out []Loan
	for _, l := range loans {
		if l.Overdue(now) {
			out = append(out, l)
		}
	}
	return out
}

// DefaultLoanCategory picks the first category whose name mentions "loan",
// falling back to the first category.
func DefaultLoanCategory(categories []Category) (Category, bool) {
	if len(categories) == 0 {
		return Category{}, false
	}
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c.Name), "loan") {
			return c, true
		}
	}
	return categories[0], true
}
