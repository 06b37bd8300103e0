// Package events forwards ledger changes to message brokers.
package events

import (
	"context"
	"errors"
	"log/slog"

	"ledger/internal/ledger"
)

var (
	ErrMissingTransactionID = errors.New("message has no transaction id")
	ErrUnknownOp            = errors.New("message has unknown op")
)

// Publisher delivers a change message to one broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Relay hands every ledger change to each publisher. A failing publisher
// is logged and skipped; the ledger write it describes has already been
// committed and is never rolled back.
type Relay struct {
	sub        *ledger.Subscription
	publishers []Publisher
	logger     *slog.Logger
}

// NewRelay subscribes to feed immediately, so changes committed between
// NewRelay and Run are queued and forwarded once Run starts.
func NewRelay(feed ledger.Feed, logger *slog.Logger, publishers ...Publisher) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{sub: feed.Subscribe(), publishers: publishers, logger: logger}
}

// Run forwards changes until ctx is done or the ledger closes the
// subscription. The subscription is released when Run returns.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.sub
	defer sub.Close()

	r.logger.InfoContext(ctx, "Change relay started", "publishers", len(r.publishers))
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Change relay stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-sub.Done():
			return nil
		case <-sub.Ready():
			for _, c := range sub.Drain() {
				r.forward(ctx, NewMessage(c))
			}
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg Message) {
	for _, p := range r.publishers {
		if err := p.Publish(ctx, msg); err != nil {
			r.logger.ErrorContext(ctx, "Failed to publish change",
				"error", err,
				"transaction_id", msg.TransactionID,
				"op", string(msg.Op),
				"seq", msg.Seq)
		}
	}
}

// Close releases the subscription, closes every publisher and returns
// their errors joined.
func (r *Relay) Close() error {
	r.sub.Close()
	var errs []error
	for _, p := range r.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
