package ledger

import (
	"context"
	"iter"

	"ledger/internal/core"
)

// Repository is the persistence port behind a Ledger. Implementations
// return *core.Error values: CodeConflict from Create on a duplicate id,
// CodeNotFound from Replace/Remove on a missing id, CodeStorage for I/O.
type Repository interface {
	Create(ctx context.Context, tx core.Transaction) error
	Replace(ctx context.Context, tx core.Transaction) error
	Remove(ctx context.Context, id string) error
	Find(ctx context.Context, id string) (core.Transaction, bool, error)
	// List returns records with from <= OccurredAt <= to in core.LedgerOrder.
	// A zero bound is open.
	List(ctx context.Context, from, to int64) ([]core.Transaction, error)
	Close() error
}

// Reader is the read side a consumer needs from the ledger.
type Reader interface {
	Get(ctx context.Context, id string) (core.Transaction, bool, error)
	All(ctx context.Context) ([]core.Transaction, error)
	Each(ctx context.Context) (iter.Seq[core.Transaction], error)
	Range(ctx context.Context, start, end int64) ([]core.Transaction, error)
}

// Writer is the mutation side of the ledger.
type Writer interface {
	Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
}

// Feed hands out change subscriptions.
type Feed interface {
	Subscribe() *Subscription
	Seq() uint64
}
