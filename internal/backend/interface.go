package backend

import (
	"context"

	"foodlog/internal/amqp"
	"foodlog/internal/entries"
	"foodlog/internal/services"
)

// BackendResult contains the backend instance and the optional event client.
type BackendResult struct {
	Backend entries.Backend
	Events  *amqp.Client
}

// Service wires a FoodService over the result. The service owns the backend
// and event client from then on; closing it closes both.
func (r *BackendResult) Service(opts services.Options) *services.FoodService {
	if r.Events != nil {
		opts.Publisher = r.Events
	}
	return services.NewFoodService(r.Backend, opts)
}

// Cleanup releases the backend and event client without a service.
func (r *BackendResult) Cleanup() error {
	var err error
	if r.Events != nil {
		err = r.Events.Close()
	}
	if cerr := r.Backend.Close(); cerr != nil {
		err = cerr
	}
	return err
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
