// Package ledger owns the transaction collection. It validates records,
// serializes mutations, and emits a Change for every committed write.
package ledger

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
)

// Snapshot is a consistent read: the records and the sequence number of the
// last mutation they include.
type Snapshot struct {
	Records []core.Transaction
	Seq     uint64
}

// Ledger is the only writer of the record collection. Mutations hold the
// write lock for the whole persist-and-publish step, so readers never see a
// partial write and subscribers see changes in commit order.
type Ledger struct {
	repo   Repository
	feed   *feed
	now    func() time.Time
	logger *slog.Logger

	mu  sync.RWMutex
	seq uint64
}

type Option func(*Ledger)

// WithClock overrides the clock used for CreatedAt and Change.At.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func New(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:   repo,
		feed:   newFeed(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Insert stores a new record. CreatedAt and Source are defaulted when unset.
func (l *Ledger) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = l.normalize(tx)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.repo.Create(ctx, tx); err != nil {
		return core.Transaction{}, err
	}
	l.commit(ctx, OpInsert, tx.ID)

	l.logger.InfoContext(ctx, "Transaction inserted",
		"transaction_id", tx.ID,
		"kind", tx.Kind.String(),
		"amount_minor", tx.AmountMinor,
		"category", tx.Category,
		"seq", l.seq)
	return tx, nil
}

// Update replaces the stored record with the same id. CreatedAt of the
// stored record is kept. Replacing a record with identical values is a
// no-op and emits no change.
func (l *Ledger) Update(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = l.normalize(tx)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok, err := l.repo.Find(ctx, tx.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	if !ok {
		return core.Transaction{}, core.NotFound(tx.ID)
	}
	tx.CreatedAt = current.CreatedAt
	if tx == current {
		return current, nil
	}

	if err := l.repo.Replace(ctx, tx); err != nil {
		return core.Transaction{}, err
	}
	l.commit(ctx, OpUpdate, tx.ID)

	l.logger.InfoContext(ctx, "Transaction updated",
		"transaction_id", tx.ID,
		"amount_minor", tx.AmountMinor,
		"seq", l.seq)
	return tx, nil
}

// Delete removes the record permanently.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Invalid(core.ErrEmptyID, "id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.repo.Remove(ctx, id); err != nil {
		return err
	}
	l.commit(ctx, OpDelete, id)

	l.logger.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "seq", l.seq)
	return nil
}

// Get returns the record with id. A missing record is (zero, false, nil).
func (l *Ledger) Get(ctx context.Context, id string) (core.Transaction, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.repo.Find(ctx, id)
}

// All returns every record in ledger order.
func (l *Ledger) All(ctx context.Context) ([]core.Transaction, error) {
	snap, err := l.Snapshot(ctx, 0, 0)
	return snap.Records, err
}

// Each returns the records of a point-in-time snapshot in ledger order.
// The snapshot is read up front; the sequence yields it one record at a
// time and stops early when the consumer does or ctx is done.
func (l *Ledger) Each(ctx context.Context) (iter.Seq[core.Transaction], error) {
	records, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(core.Transaction) bool) {
		for _, r := range records {
			if ctx.Err() != nil || !yield(r) {
				return
			}
		}
	}, nil
}

// Range returns records with start <= OccurredAt <= end in ledger order.
// Both bounds are inclusive and literal: OccurredAt is always positive, so
// a window ending at or before zero is empty.
func (l *Ledger) Range(ctx context.Context, start, end int64) ([]core.Transaction, error) {
	if end < 1 {
		return []core.Transaction{}, nil
	}
	if start > end {
		return nil, core.Invalid(nil, "range start is after end")
	}
	// Snapshot treats zero as open; 1 is the smallest valid OccurredAt.
	start = max(start, 1)
	snap, err := l.Snapshot(ctx, start, end)
	return snap.Records, err
}

// Snapshot reads records in [from, to] together with the sequence number
// they reflect. Zero bounds are open.
func (l *Ledger) Snapshot(ctx context.Context, from, to int64) (Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	records, err := l.repo.List(ctx, from, to)
	if err != nil {
		return Snapshot{Seq: l.seq}, err
	}
	if records == nil {
		records = []core.Transaction{}
	}
	return Snapshot{Records: records, Seq: l.seq}, nil
}

// Subscribe returns a subscription to changes committed from now on.
func (l *Ledger) Subscribe() *Subscription {
	return l.feed.subscribe()
}

// Subscribers reports how many subscriptions are attached.
func (l *Ledger) Subscribers() int {
	return l.feed.count()
}

// Seq is the sequence number of the last committed mutation.
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Close detaches all subscribers. The repository is owned by whoever
// opened it and is not closed here.
func (l *Ledger) Close() {
	l.feed.closeAll()
}

// commit must be called with the write lock held.
func (l *Ledger) commit(ctx context.Context, op Op, id string) {
	l.seq++
	l.feed.publish(Change{Seq: l.seq, Op: op, ID: id, At: l.now()})
	l.logger.DebugContext(ctx, "Change published", "op", string(op), "transaction_id", id, "seq", l.seq)
}

func (l *Ledger) normalize(tx core.Transaction) core.Transaction {
	tx.ID = strings.TrimSpace(tx.ID)
	tx.Category = strings.TrimSpace(tx.Category)
	tx.Description = strings.TrimSpace(tx.Description)
	if tx.CreatedAt == 0 {
		tx.CreatedAt = core.Millis(l.now())
	}
	if tx.Source == "" {
		tx.Source = core.SourceManual
	}
	return tx
}

var (
	_ Reader = (*Ledger)(nil)
	_ Writer = (*Ledger)(nil)
	_ Feed   = (*Ledger)(nil)
)
