package http

import (
	"net/http"
	"time"

	"expensee/internal/auth"
	"expensee/internal/records"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	s.cachedReport(w, r, acct.ID, func() (any, error) {
		return s.ledger.Dashboard(r.Context(), acct.ID)
	})
}

func (s *Server) handleSummaryReport(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	pred, err := ParsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cachedReport(w, r, acct.ID, func() (any, error) {
		return s.ledger.Summary(r.Context(), acct.ID, pred)
	})
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	q := r.URL.Query()
	pred, err := ParsePeriod(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := ParseBreakdownOrder(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cachedReport(w, r, acct.ID, func() (any, error) {
		return s.ledger.Breakdown(r.Context(), acct.ID, pred, order)
	})
}

func (s *Server) handleLoanReport(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	s.cachedReport(w, r, acct.ID, func() (any, error) {
		return s.ledger.LoanSummary(r.Context(), acct.ID)
	})
}

// handleTrendReport returns twelve monthly summaries, for the current year
// unless ?year= is given.
func (s *Server) handleTrendReport(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	year, err := queryInt(r.URL.Query(), "year", time.Now().Year(), 1900, 9999)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cachedReport(w, r, acct.ID, func() (any, error) {
		return s.ledger.Trend(r.Context(), acct.ID, year)
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	st, err := s.ledger.Settings(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	cur, err := s.ledger.Settings(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Fields missing from the body keep their current value.
	in := cur
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.ledger.UpdateSettings(r.Context(), acct.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	snap, err := s.ledger.Export(r.Context(), acct.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := "expensee-backup-" + time.Now().UTC().Format("20060102") + ".json"
	NewJSONResponse().
		Header("Content-Disposition", `attachment; filename="`+name+`"`).
		Body(snap).Write(w)
}

// handleImport replaces all of the account's data with the uploaded backup.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	var snap records.Snapshot
	if err := decodeJSON(w, r, &snap); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.Import(r.Context(), acct.ID, snap); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"categories":   len(snap.Categories),
		"users":        len(snap.FinancialUsers),
		"transactions": len(snap.Transactions),
		"loans":        len(snap.Loans),
		"goals":        len(snap.Goals),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, acct auth.Account) {
	if err := s.ledger.Reset(r.Context(), acct.ID); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
