package backend

import (
	"context"
	"fmt"

	"foodlog/internal/amqp"
	"foodlog/internal/entries"
	"foodlog/internal/entries/memory"
	"foodlog/internal/log"
	"foodlog/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the configured store and, when an AMQP URL is set,
// the change event client. A broker that cannot be reached is logged and
// skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store entries.Backend
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		store = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	return &BackendResult{
		Backend: store,
		Events:  f.createEventClient(ctx, config),
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (entries.Backend, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryBackend() entries.Backend {
	f.logger.Info("Initialized memory backend")
	return memory.New()
}

func (f *DefaultFactory) createEventClient(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
