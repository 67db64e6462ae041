// Package http exposes the ledger as a JSON API. Every route below /api,
// except login and registration, requires a bearer token and acts on the
// account the token belongs to.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"expensee/internal/auth"
	"expensee/internal/cache"
	"expensee/internal/core"
	applog "expensee/internal/log"
	"expensee/internal/middleware/ratelimit"
	"expensee/internal/middleware/security"
	"expensee/internal/middleware/trace"
	"expensee/internal/services"
)

type Options struct {
	Addr      string
	RateLimit ratelimit.Config
	// CacheSize of zero disables report caching.
	CacheSize int
	CacheTTL  time.Duration
	// Ready reports whether dependencies are usable; nil means always ready.
	Ready  func(context.Context) error
	Logger *applog.Logger
	// AllowRegistration exposes POST /api/auth/register.
	AllowRegistration bool
}

type Server struct {
	http.Server
	ledger *services.LedgerService
	auth   *auth.Service
	ready  func(context.Context) error

	// Cached report bodies keyed by "<account>|<path>?<query>".
	reports  *cache.LRUCache[any]
	// gens counts invalidations per account; a report computed under an
	// older generation is not cached.
	genMu sync.Mutex
	gens  map[core.AccountID]uint64

	cacheMgr *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready to run server.
func NewServer(ledger *services.LedgerService, authSvc *auth.Service, opts Options) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	s := &Server{
		ledger:   ledger,
		auth:     authSvc,
		ready:    opts.Ready,
		reports:  cache.NewLRUCache[any](opts.CacheSize, opts.CacheTTL),
		gens:     make(map[core.AccountID]uint64),
		cacheMgr: cache.NewManager(),
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)
	s.cacheMgr.Register(s.reports)
	s.cacheMgr.StartCleanup(opts.CacheTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	if opts.AllowRegistration {
		mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	}
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.authed(s.handleMe))
	mux.HandleFunc("PUT /api/auth/me", s.authed(s.handleUpdateMe))
	mux.HandleFunc("POST /api/auth/password", s.authed(s.handleChangePassword))

	mux.HandleFunc("GET /api/admin/accounts", s.authed(adminOnly(s.handleListAccounts)))
	mux.HandleFunc("POST /api/admin/accounts", s.authed(adminOnly(s.handleCreateAccount)))

	mux.HandleFunc("GET /api/transactions", s.authed(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.authed(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions/{id}", s.authed(s.handleGetTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.authed(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.authed(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/categories", s.authed(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.authed(s.handleCreateCategory))
	mux.HandleFunc("PUT /api/categories/{id}", s.authed(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.authed(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/users", s.authed(s.handleListFinancialUsers))
	mux.HandleFunc("POST /api/users", s.authed(s.handleCreateFinancialUser))
	mux.HandleFunc("PUT /api/users/{id}", s.authed(s.handleUpdateFinancialUser))
	mux.HandleFunc("DELETE /api/users/{id}", s.authed(s.handleDeleteFinancialUser))

	mux.HandleFunc("GET /api/goals", s.authed(s.handleListGoals))
	mux.HandleFunc("POST /api/goals", s.authed(s.handleCreateGoal))
	mux.HandleFunc("PUT /api/goals/{id}", s.authed(s.handleUpdateGoal))
	mux.HandleFunc("POST /api/goals/{id}/contribute", s.authed(s.handleContributeGoal))
	mux.HandleFunc("DELETE /api/goals/{id}", s.authed(s.handleDeleteGoal))

	mux.HandleFunc("GET /api/loans", s.authed(s.handleListLoans))
	mux.HandleFunc("POST /api/loans", s.authed(s.handleOpenLoan))
	mux.HandleFunc("GET /api/loans/overdue", s.authed(s.handleOverdueLoans))
	mux.HandleFunc("GET /api/loans/{id}", s.authed(s.handleGetLoan))
	mux.HandleFunc("POST /api/loans/{id}/repay", s.authed(s.handleRepayLoan))
	mux.HandleFunc("DELETE /api/loans/{id}", s.authed(s.handleDeleteLoan))

	mux.HandleFunc("GET /api/settings", s.authed(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", s.authed(s.handleUpdateSettings))

	mux.HandleFunc("GET /api/dashboard", s.authed(s.handleDashboard))
	mux.HandleFunc("GET /api/reports/summary", s.authed(s.handleSummaryReport))
	mux.HandleFunc("GET /api/reports/categories", s.authed(s.handleCategoryReport))
	mux.HandleFunc("GET /api/reports/loans", s.authed(s.handleLoanReport))
	mux.HandleFunc("GET /api/reports/trend", s.authed(s.handleTrendReport))

	mux.HandleFunc("GET /api/export", s.authed(s.handleExport))
	mux.HandleFunc("POST /api/import", s.authed(s.handleImport))
	mux.HandleFunc("POST /api/reset", s.authed(s.handleReset))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "route not found").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var h http.Handler = mux
	h = applog.Middleware(logger)(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// accountHandler serves a request on behalf of an authenticated account.
type accountHandler func(w http.ResponseWriter, r *http.Request, acct auth.Account)

// authed resolves the bearer token and, after a write, drops the cached
// reports of the account.
func (s *Server) authed(next accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		r = r.WithContext(applog.WithAccount(r.Context(), string(acct.ID)))
		next(w, r, acct)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.invalidate(acct.ID)
		}
	}
}

func cacheKey(acct core.AccountID, r *http.Request) string {
	return string(acct) + "|" + r.URL.Path + "?" + r.URL.RawQuery
}

func (s *Server) invalidate(acct core.AccountID) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[acct]++
	s.reports.DeletePrefix(string(acct) + "|")
}

func (s *Server) generation(acct core.AccountID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[acct]
}

// storeReport caches v unless the account was invalidated since gen.
func (s *Server) storeReport(acct core.AccountID, gen uint64, key string, v any) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[acct] != gen {
		return false
	}
	s.reports.Set(key, v)
	return true
}

// cachedReport serves a report from the cache or computes and stores it.
func (s *Server) cachedReport(w http.ResponseWriter, r *http.Request, acct core.AccountID, load func() (any, error)) {
	key := cacheKey(acct, r)
	if v, ok := s.reports.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Body(v).Write(w)
		return
	}
	gen := s.generation(acct)
	v, err := load()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.storeReport(acct, gen, key, v)
	NewJSONResponse().Header("X-Cache", "MISS").Body(v).Write(w)
}

// Shutdown stops background goroutines and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
