package backend

import (
	"fmt"
	"time"

	"ledger/internal/config"
	"ledger/internal/storage"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string
	Retry        storage.RetryPolicy

	Sink         SinkType
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	KafkaBrokers []string
	KafkaTopic   string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:         BackendType(appConfig.DataBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		Retry: storage.RetryPolicy{
			Attempts: appConfig.StorageRetryAttempts,
			Base:     appConfig.StorageRetryBase,
			Max:      maxRetryWait(appConfig.StorageRetryBase),
		},
		Sink:         SinkType(appConfig.EventSink),
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		KafkaBrokers: appConfig.KafkaBrokers,
		KafkaTopic:   appConfig.KafkaTopic,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// maxRetryWait caps backoff at twenty base intervals, and never below
// the storage default.
func maxRetryWait(base time.Duration) time.Duration {
	if limit := 20 * base; limit > storage.DefaultRetryPolicy.Max {
		return limit
	}
	return storage.DefaultRetryPolicy.Max
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	}

	sink := c.Sink
	if sink == "" {
		sink = NoSink
	}
	if !sink.IsValid() {
		return fmt.Errorf("invalid event sink: %s", c.Sink)
	}
	switch sink {
	case AMQPSink:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP URL, exchange and queue are required for the amqp sink")
		}
	case KafkaSink:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("Kafka brokers and topic are required for the kafka sink")
		}
	}
	return nil
}
