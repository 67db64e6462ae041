// Package backend builds the record store and the event publisher selected
// by configuration.
package backend

import (
	"context"

	"expensee/internal/auth"
	"expensee/internal/records"
	"expensee/internal/services"
)

// Backend is a record store that also keeps login credentials.
type Backend interface {
	records.Store
	auth.CredentialStore
}

type CleanupFunc func() error

// BackendResult carries the store and, when AMQP is configured, the
// publisher for ledger events. Events is nil otherwise.
type BackendResult struct {
	Backend Backend
	Events  services.EventPublisher
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
