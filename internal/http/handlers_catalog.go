package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"expensee/internal/auth"
	"expensee/internal/core"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	cats, err := s.ledger.ListCategories(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	type categoryView struct {
		core.Category
		Global bool `json:"global"`
	}
	out := make([]categoryView, len(cats))
	for i, c := range cats {
		out[i] = categoryView{Category: c, Global: c.Global()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in core.Category
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.CreateCategory(r.Context(), acct.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in core.Category
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.UpdateCategory(r.Context(), acct.ID, pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	if err := s.ledger.DeleteCategory(r.Context(), acct.ID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListFinancialUsers(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	users, err := s.ledger.ListFinancialUsers(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateFinancialUser(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in core.FinancialUser
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.ledger.CreateFinancialUser(r.Context(), acct.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateFinancialUser(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in core.FinancialUser
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.ledger.UpdateFinancialUser(r.Context(), acct.ID, pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleDeleteFinancialUser answers 409 with the number of referencing
// transactions while the user is still in use.
func (s *Server) handleDeleteFinancialUser(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	if err := s.ledger.DeleteFinancialUser(r.Context(), acct.ID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	goals, err := s.ledger.ListGoals(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	type goalView struct {
		core.Goal
		Progress float64 `json:"progress"`
	}
	out := make([]goalView, len(goals))
	for i, g := range goals {
		out[i] = goalView{Goal: g, Progress: g.Progress()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in core.Goal
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.CreateGoal(r.Context(), acct.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in core.Goal
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.UpdateGoal(r.Context(), acct.ID, pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleContributeGoal(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.ContributeToGoal(r.Context(), acct.ID, pathID(r), in.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	if err := s.ledger.DeleteGoal(r.Context(), acct.ID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
