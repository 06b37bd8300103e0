package backend

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/events"
	"ledger/internal/events/kafka"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateStorage implements Factory.CreateStorage
func (f *DefaultFactory) CreateStorage(ctx context.Context, config Config) (*StorageResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.OpenSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return sqlResult(repo, config.Retry), nil

	case PostgresBackend:
		repo, err := storage.OpenPostgres(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Postgres backend")
		return sqlResult(repo, config.Retry), nil

	case MemoryBackend:
		repo := memory.New()
		f.logger.WarnContext(ctx, "Initialized memory backend, records are lost on exit")
		return &StorageResult{
			Repository: repo,
			Ready:      func(context.Context) error { return nil },
			Cleanup:    repo.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func sqlResult(repo *storage.SQLRepository, retry storage.RetryPolicy) *StorageResult {
	if retry.Attempts > 0 {
		repo = repo.WithRetry(retry)
	}
	return &StorageResult{
		Repository: repo,
		Ready:      repo.Ping,
		Cleanup:    repo.Close,
	}
}

// CreatePublisher implements Factory.CreatePublisher. An unreachable AMQP
// broker is an error here; once connected, the client reconnects on its
// own.
func (f *DefaultFactory) CreatePublisher(ctx context.Context, config Config) (events.Publisher, error) {
	switch config.Sink {
	case "", NoSink:
		return nil, nil

	case AMQPSink:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized AMQP publisher",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client, nil

	case KafkaSink:
		f.logger.InfoContext(ctx, "Initialized Kafka publisher",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic)
		return kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic), nil

	default:
		return nil, fmt.Errorf("unsupported event sink: %s", config.Sink)
	}
}
