package backend

import (
	"context"
	"errors"
	"fmt"

	"expenses/internal/amqp"
	"expenses/internal/log"
	"expenses/internal/storage"
	"expenses/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// dialEvents is swapped in tests.
	dialEvents func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger:     logger.WithComponent(log.ComponentBackend),
		dialEvents: amqp.NewClient,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch config.Type {
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	case SQLiteBackend, PostgresBackend, MySQLBackend:
		store, err = f.createSQLBackend(ctx, config)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{Store: store}
	var events *amqp.Client
	if config.AMQPURL != "" {
		events, err = f.dialEvents(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events",
				log.FieldError, err.Error())
			events = nil
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Events = events
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if events != nil {
			errs = append(errs, events.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, config Config) (Store, error) {
	dialect, err := storage.ParseDialect(config.Type.String())
	if err != nil {
		return nil, err
	}
	repo, err := storage.Open(ctx, dialect, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", dialect, err)
	}
	fields := []any{"dialect", string(dialect)}
	if dialect == storage.SQLite {
		fields = append(fields, "db_path", config.DSN)
	}
	f.logger.InfoContext(ctx, "Initialized SQL backend", fields...)
	return repo, nil
}
