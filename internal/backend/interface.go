package backend

import (
	"context"

	"ledger/internal/events"
	"ledger/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StorageResult is an opened repository with its readiness probe and
// cleanup.
type StorageResult struct {
	Repository ledger.Repository
	Ready      func(context.Context) error
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateStorage(ctx context.Context, config Config) (*StorageResult, error)
	// CreatePublisher returns nil when no event sink is configured.
	CreatePublisher(ctx context.Context, config Config) (events.Publisher, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// SinkType names where change events are published.
type SinkType string

const (
	NoSink    SinkType = "none"
	AMQPSink  SinkType = "amqp"
	KafkaSink SinkType = "kafka"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

func (st SinkType) IsValid() bool {
	switch st {
	case NoSink, AMQPSink, KafkaSink:
		return true
	default:
		return false
	}
}
