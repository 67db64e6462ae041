package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"expensee/internal/auth"
	"expensee/internal/core"
)

type loanRequest struct {
	FinancialUserID string             `json:"userId"`
	Amount          decimal.Decimal    `json:"amount"`
	Direction       core.LoanDirection `json:"type"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	CategoryID      string             `json:"categoryId"`
	Date            core.Date          `json:"date"`
	DueDate         core.Date          `json:"dueDate"`
}

// loanResult pairs a loan with the transaction a lifecycle step created.
type loanResult struct {
	Loan        core.Loan        `json:"loan"`
	Transaction core.Transaction `json:"transaction"`
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	loans, err := s.ledger.ListLoans(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleOverdueLoans(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	loans, err := s.ledger.OverdueLoans(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	l, err := s.ledger.GetLoan(r.Context(), acct.ID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleOpenLoan(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in loanRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	loan, origin, err := s.ledger.OpenLoan(r.Context(), acct.ID, core.LoanRequest{
		FinancialUserID: in.FinancialUserID,
		Amount:          in.Amount,
		Direction:       in.Direction,
		Title:           in.Title,
		Description:     in.Description,
		CategoryID:      in.CategoryID,
		Date:            in.Date,
		DueDate:         in.DueDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/loans/"+loan.ID).
		Body(loanResult{Loan: loan, Transaction: origin}).Write(w)
}

// handleRepayLoan answers 409 when the loan is not pending.
func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	loan, repayment, err := s.ledger.RepayLoan(r.Context(), acct.ID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanResult{Loan: loan, Transaction: repayment})
}

func (s *Server) handleDeleteLoan(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	if err := s.ledger.DeleteLoan(r.Context(), acct.ID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
