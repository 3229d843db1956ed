package backend

import (
	"context"

	"expenses/internal/services"
)

// Store is a data backend holding both users and expenses.
type Store interface {
	services.ExpenseStore
	services.UserStore
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional event publisher and the
// function releasing both.
type BackendResult struct {
	Store Store
	// Events is nil when change events are disabled or the broker was
	// unreachable at startup.
	Events  services.EventPublisher
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// DSN is the SQLite file path or the Postgres/MySQL connection string.
	DSN string

	// Change events. An empty URL disables them.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MySQLBackend    BackendType = "mysql"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MySQLBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// IsSQL reports whether the backend is served by storage.Repository.
func (bt BackendType) IsSQL() bool {
	return bt.IsValid() && bt != MemoryBackend
}
