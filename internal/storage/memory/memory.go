package memory

import (
	"context"
	"errors"
	"sync"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Repository keeps transactions in a map. Reads copy, so callers can never
// reach the stored values.
type Repository struct {
	mu     sync.RWMutex
	items  map[string]core.Transaction
	closed bool
}

func New() *Repository {
	return &Repository{items: make(map[string]core.Transaction)}
}

// NewWithRecords seeds the repository. Duplicate ids keep the last record.
func NewWithRecords(records ...core.Transaction) *Repository {
	r := New()
	for _, tx := range records {
		r.items[tx.ID] = tx
	}
	return r
}

func (r *Repository) Create(_ context.Context, tx core.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	if _, exists := r.items[tx.ID]; exists {
		return core.Conflict(tx.ID)
	}
	r.items[tx.ID] = tx
	return nil
}

func (r *Repository) Replace(_ context.Context, tx core.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	if _, exists := r.items[tx.ID]; !exists {
		return core.NotFound(tx.ID)
	}
	r.items[tx.ID] = tx
	return nil
}

func (r *Repository) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	if _, exists := r.items[id]; !exists {
		return core.NotFound(id)
	}
	delete(r.items, id)
	return nil
}

func (r *Repository) Find(_ context.Context, id string) (core.Transaction, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return core.Transaction{}, false, err
	}
	tx, ok := r.items[id]
	return tx, ok, nil
}

func (r *Repository) List(_ context.Context, from, to int64) ([]core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	window := core.Criteria{From: from, To: to}
	out := make([]core.Transaction, 0, len(r.items))
	for _, tx := range r.items {
		if window.Match(tx) {
			out = append(out, tx)
		}
	}
	core.SortLedger(out)
	return out, nil
}

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Repository) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *Repository) checkOpen() error {
	if r.closed {
		return core.Storage("memory repository", errClosed)
	}
	return nil
}

var errClosed = errors.New("repository is closed")

var _ ledger.Repository = (*Repository)(nil)
