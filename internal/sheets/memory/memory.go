package memory

import (
	"context"
	"sort"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// Sheet is an in-process mirror used when no spreadsheet is configured
// and in tests.
type Sheet struct {
	mu   sync.Mutex
	rows map[string][]string
}

func New() *Sheet {
	return &Sheet{rows: make(map[string][]string)}
}

func (s *Sheet) UpsertRow(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[tx.ID] = ports.RowValues(tx)
	return nil
}

func (s *Sheet) DeleteRow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

// ListIDs returns the mirrored ids sorted.
func (s *Sheet) ListIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Row returns a copy of the row for id.
func (s *Sheet) Row(id string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), row...), true
}

func (s *Sheet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

var _ ports.Mirror = (*Sheet)(nil)
