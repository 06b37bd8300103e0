package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

func openTestDB(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sample(id string, kind core.Kind, amount int64, occurred int64) core.Transaction {
	return core.Transaction{
		ID:          id,
		AmountMinor: amount,
		Kind:        kind,
		Category:    "food",
		Description: "sample " + id,
		OccurredAt:  occurred,
		CreatedAt:   1700000000000,
		Source:      core.SourceManual,
	}
}

func TestSQLiteCreateAndFind(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	tx := sample("a", core.KindExpense, 1234, 1000)
	require.NoError(t, repo.Create(ctx, tx))

	got, ok, err := repo.Find(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx, got)

	_, ok, err = repo.Find(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteConflict(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sample("a", core.KindIncome, 1, 1)))
	err := repo.Create(ctx, sample("a", core.KindExpense, 2, 2))
	assert.ErrorIs(t, err, core.ErrConflict)

	got, _, _ := repo.Find(ctx, "a")
	assert.Equal(t, core.KindIncome, got.Kind)
}

func TestSQLiteReplaceAndRemove(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	tx := sample("a", core.KindIncome, 100, 1)
	assert.ErrorIs(t, repo.Replace(ctx, tx), core.ErrNotFound)
	require.NoError(t, repo.Create(ctx, tx))

	tx.AmountMinor = 250
	tx.Category = "salary"
	require.NoError(t, repo.Replace(ctx, tx))
	got, _, _ := repo.Find(ctx, "a")
	assert.Equal(t, tx, got)

	require.NoError(t, repo.Remove(ctx, "a"))
	assert.ErrorIs(t, repo.Remove(ctx, "a"), core.ErrNotFound)
}

func TestSQLiteListOrderAndWindow(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	for _, tx := range []core.Transaction{
		sample("b", core.KindExpense, 1, 200),
		sample("B", core.KindExpense, 1, 200),
		sample("a", core.KindExpense, 1, 200),
		sample("c", core.KindIncome, 1, 300),
		sample("d", core.KindExpense, 1, 100),
	} {
		require.NoError(t, repo.Create(ctx, tx))
	}

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "B", "a", "b", "d"}, idsOf(all))
	assert.True(t, isLedgerSorted(all))

	window, err := repo.List(ctx, 150, 250)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "a", "b"}, idsOf(window))

	none, err := repo.List(ctx, 5000, 6000)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	repo, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, sample("keep", core.KindIncome, 42, 10)))
	require.NoError(t, repo.Close())

	repo, err = OpenSQLite(path)
	require.NoError(t, err)
	defer repo.Close()

	got, ok, err := repo.Find(ctx, "keep")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.AmountMinor)
}

func TestSQLiteBehindLedger(t *testing.T) {
	repo := openTestDB(t)
	l := ledger.New(repo)
	defer l.Close()
	ctx := context.Background()

	tx, err := l.Insert(ctx, core.Transaction{
		ID: "x", Kind: core.KindIncome, AmountMinor: 500, Category: "salary", OccurredAt: 3,
	})
	require.NoError(t, err)
	_, err = l.Insert(ctx, core.Transaction{
		ID: "y", Kind: core.KindExpense, AmountMinor: 300, Category: "rent", OccurredAt: 2,
	})
	require.NoError(t, err)

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Totals{Income: 500, Expense: 300, Net: 200}, core.Summarize(all))

	tx.AmountMinor = 600
	_, err = l.Update(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), l.Seq())
}

func TestSQLiteClosedIsStorageError(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.List(context.Background(), 0, 0)
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLRepository{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
	assert.Equal(t, `id COLLATE "C" ASC`, pg.idOrder())
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 2 * time.Millisecond}
	ctx := context.Background()

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, "op", func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, "op", func(context.Context) error {
			calls++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("ledger errors are final", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, "op", func(context.Context) error {
			calls++
			return core.Conflict("x")
		})
		assert.ErrorIs(t, err, core.ErrConflict)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := p.Do(cctx, "op", func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBackoffCapped(t *testing.T) {
	p := RetryPolicy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	for attempt, want := range []time.Duration{10, 20, 40, 50, 50} {
		t.Run(fmt.Sprintf("attempt_%d", attempt), func(t *testing.T) {
			assert.Equal(t, want*time.Millisecond, p.backoff(attempt))
		})
	}
}

func idsOf(records []core.Transaction) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func isLedgerSorted(records []core.Transaction) bool {
	for i := 1; i < len(records); i++ {
		if core.LedgerOrder(records[i-1], records[i]) > 0 {
			return false
		}
	}
	return true
}
