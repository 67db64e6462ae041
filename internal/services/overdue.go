package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expensee/internal/amqp"
	"expensee/internal/core"
	"expensee/internal/records"
)

// OverdueConfig holds configuration for the overdue scanner.
type OverdueConfig struct {
	// PollInterval is how often loans are scanned (default: 1h)
	PollInterval time.Duration

	// CleanupInterval is how often expired sessions are purged (default: 6h)
	CleanupInterval time.Duration
}

func DefaultOverdueConfig() OverdueConfig {
	return OverdueConfig{
		PollInterval:    time.Hour,
		CleanupInterval: 6 * time.Hour,
	}
}

// LoanScanner is what the scanner needs from the store. Listing accounts is
// the one cross-account read in the system.
type LoanScanner interface {
	records.LoanStore
	records.AdminStore
}

// SessionPurger drops expired login sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// OverdueScanner periodically announces pending loans past their due date.
// Each loan is announced at most once per day.
type OverdueScanner struct {
	store  LoanScanner
	events EventPublisher
	purger SessionPurger
	config OverdueConfig
	now    func() time.Time

	scanMu   sync.Mutex
	notified map[string]string // loan id -> day announced

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewOverdueScanner creates a scanner. purger may be nil.
func NewOverdueScanner(store LoanScanner, events EventPublisher, purger SessionPurger, config OverdueConfig) *OverdueScanner {
	def := DefaultOverdueConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &OverdueScanner{
		store:    store,
		events:   events,
		purger:   purger,
		config:   config,
		now:      time.Now,
		notified: map[string]string{},
	}
}

// ScanOnce checks every account and returns how many loans were announced.
func (p *OverdueScanner) ScanOnce(ctx context.Context) (int, error) {
	accounts, err := p.store.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}
	now := p.now()
	today := core.DateOf(now).String()

	p.scanMu.Lock()
	defer p.scanMu.Unlock()

	announced := 0
	for _, acct := range accounts {
		loans, err := p.store.ListLoans(ctx, acct)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list loans", "account_id", acct, "error", err)
			continue
		}
		for _, l := range core.OverdueLoans(loans, now) {
			if p.notified[l.ID] == today {
				continue
			}
			if p.events != nil {
				ev := amqp.NewLedgerEvent(amqp.EventLoanOverdue, string(acct), l.ID, "")
				if err := p.events.Publish(ctx, ev); err != nil {
					slog.ErrorContext(ctx, "Failed to publish overdue loan", "account_id", acct, "loan_id", l.ID, "error", err)
					continue
				}
			}
			p.notified[l.ID] = today
			announced++
			slog.InfoContext(ctx, "Loan overdue",
				"account_id", acct,
				"loan_id", l.ID,
				"due_date", l.DueDate.String(),
				"amount", l.Amount.String())
		}
	}

	slog.InfoContext(ctx, "Overdue scan complete", "accounts", len(accounts), "announced", announced)
	return announced, nil
}

// Start begins the scan loop. Returns an error if already running.
func (p *OverdueScanner) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("overdue scanner is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Overdue scanner started",
		"poll_interval", p.config.PollInterval,
		"cleanup_interval", p.config.CleanupInterval)
	return nil
}

// Stop gracefully stops the scanner and waits for the loop to exit.
func (p *OverdueScanner) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Overdue scanner stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Overdue scanner stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *OverdueScanner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OverdueScanner) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.scan(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.scan(ctx)
		case <-cleanupTicker.C:
			p.purgeSessions(ctx)
		}
	}
}

func (p *OverdueScanner) scan(ctx context.Context) {
	if _, err := p.ScanOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Overdue scan failed", "error", err)
	}
}

func (p *OverdueScanner) purgeSessions(ctx context.Context) {
	if p.purger == nil {
		return
	}
	n, err := p.purger.PurgeExpired(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to purge expired sessions", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired sessions", "count", n)
	}
}
