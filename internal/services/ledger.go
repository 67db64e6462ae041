// Package services orchestrates the core rules over the record store and
// announces every ledger change on the event bus.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"expensee/internal/amqp"
	"expensee/internal/core"
	"expensee/internal/records"
)

// EventPublisher announces ledger changes. The AMQP client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService is the account scoped entry point for all mutations and
// reports. Every method takes the account explicitly.
type LedgerService struct {
	store    records.Store
	events   EventPublisher
	defaults core.Settings

	newID func() string
	now   func() time.Time
}

// NewLedgerService wires the service. events may be nil, in which case
// changes are not announced.
func NewLedgerService(store records.Store, events EventPublisher, defaults core.Settings) *LedgerService {
	return &LedgerService{
		store:    store,
		events:   events,
		defaults: defaults.Normalize(core.DefaultSettings()),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Close releases the store and the publisher when it can be closed.
func (s *LedgerService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.events.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}

func (s *LedgerService) publish(ctx context.Context, typ amqp.EventType, acct core.AccountID, entityID, voucher string) {
	if s.events == nil {
		slog.DebugContext(ctx, "No event publisher, skipping ledger event", "type", typ)
		return
	}
	// The record is already stored; a lost event is repaired by the mirror resync.
	if err := s.events.Publish(ctx, amqp.NewLedgerEvent(typ, string(acct), entityID, voucher)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", typ,
			"account_id", acct,
			"entity_id", entityID,
			"error", err)
	}
}

// references loads the categories and financial users visible to acct.
func (s *LedgerService) references(ctx context.Context, acct core.AccountID) (core.References, error) {
	var (
		cats  []core.Category
		users []core.FinancialUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = s.store.ListCategories(gctx, acct)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.store.ListFinancialUsers(gctx, acct)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.References{}, fmt.Errorf("load references: %w", err)
	}
	return core.NewReferences(cats, users), nil
}

// nextVoucher reserves the next voucher id of the day for acct.
func (s *LedgerService) nextVoucher(ctx context.Context, acct core.AccountID, now time.Time) (string, error) {
	settings, err := s.Settings(ctx, acct)
	if err != nil {
		return "", err
	}
	seq, err := s.store.NextVoucherSeq(ctx, acct, core.VoucherDay(now))
	if err != nil {
		return "", fmt.Errorf("next voucher: %w", err)
	}
	return core.FormatVoucher(settings.VoucherPrefix, now, seq), nil
}

// stamp produces identifiers and a voucher for one mutation.
func (s *LedgerService) stamp(ctx context.Context, acct core.AccountID) (core.Stamp, error) {
	now := s.now().UTC()
	voucher, err := s.nextVoucher(ctx, acct, now)
	if err != nil {
		return core.Stamp{}, err
	}
	return core.Stamp{
		LoanID:        s.newID(),
		TransactionID: s.newID(),
		VoucherID:     voucher,
		Now:           now,
	}, nil
}

func checkAccount(acct core.AccountID) error {
	if err := acct.Validate(); err != nil {
		return &core.ValidationError{Field: "account", Err: err}
	}
	return nil
}

// Settings returns the stored settings of acct, or the defaults.
func (s *LedgerService) Settings(ctx context.Context, acct core.AccountID) (core.Settings, error) {
	if err := checkAccount(acct); err != nil {
		return core.Settings{}, err
	}
	st, found, err := s.store.GetSettings(ctx, acct)
	if err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	if !found {
		return s.defaults, nil
	}
	return st.Normalize(s.defaults), nil
}

// UpdateSettings replaces the account settings. Empty fields fall back to
// the defaults.
func (s *LedgerService) UpdateSettings(ctx context.Context, acct core.AccountID, in core.Settings) (core.Settings, error) {
	if err := checkAccount(acct); err != nil {
		return core.Settings{}, err
	}
	st := in.Normalize(s.defaults)
	if err := st.Validate(); err != nil {
		return core.Settings{}, err
	}
	if err := s.store.SaveSettings(ctx, acct, st); err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	slog.InfoContext(ctx, "Settings updated", "account_id", acct, "currency", st.Currency)
	return st, nil
}
