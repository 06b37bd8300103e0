package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/events"
	"ledger/internal/ledger"
	sheetmem "ledger/internal/sheets/memory"
	"ledger/internal/storage/memory"
)

func txn(id string, amount int64) core.Transaction {
	return core.Transaction{
		ID: id, AmountMinor: amount, Kind: core.KindExpense, Category: "food",
		OccurredAt: 1700000000000, CreatedAt: 1700000000000, Source: core.SourceManual,
	}
}

func TestHandleChangeUpsertsCurrentState(t *testing.T) {
	repo := memory.NewWithRecords(txn("a", 250))
	sheet := sheetmem.New()
	w := NewMirrorWorker(repo, sheet)
	ctx := context.Background()

	require.NoError(t, w.HandleChange(ctx, events.Message{Seq: 1, Op: ledger.OpInsert, TransactionID: "a"}))
	row, ok := sheet.Row("a")
	require.True(t, ok)
	assert.Equal(t, "2.50", row[5])

	require.NoError(t, repo.Replace(ctx, txn("a", 999)))
	require.NoError(t, w.HandleChange(ctx, events.Message{Seq: 2, Op: ledger.OpUpdate, TransactionID: "a"}))
	row, _ = sheet.Row("a")
	assert.Equal(t, "9.99", row[5])
	assert.Equal(t, 1, sheet.Len())
}

func TestHandleChangeDelete(t *testing.T) {
	repo := memory.New()
	sheet := sheetmem.New()
	require.NoError(t, sheet.UpsertRow(context.Background(), txn("gone", 1)))
	w := NewMirrorWorker(repo, sheet)

	require.NoError(t, w.HandleChange(context.Background(), events.Message{Op: ledger.OpDelete, TransactionID: "gone"}))
	assert.Equal(t, 0, sheet.Len())
}

func TestHandleChangeForMissingRecordRemovesRow(t *testing.T) {
	sheet := sheetmem.New()
	require.NoError(t, sheet.UpsertRow(context.Background(), txn("late", 1)))
	w := NewMirrorWorker(memory.New(), sheet)

	require.NoError(t, w.HandleChange(context.Background(), events.Message{Op: ledger.OpUpdate, TransactionID: "late"}))
	assert.Equal(t, 0, sheet.Len())
}

type brokenSource struct{}

func (brokenSource) Find(context.Context, string) (core.Transaction, bool, error) {
	return core.Transaction{}, false, errors.New("db down")
}

func (brokenSource) List(context.Context, int64, int64) ([]core.Transaction, error) {
	return nil, errors.New("db down")
}

func TestHandleChangeStorageErrorIsReturned(t *testing.T) {
	w := NewMirrorWorker(brokenSource{}, sheetmem.New())
	err := w.HandleChange(context.Background(), events.Message{Op: ledger.OpInsert, TransactionID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get transaction from storage")

	_, err = w.Resync(context.Background())
	assert.Error(t, err)
}

func TestResync(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewWithRecords(txn("a", 1), txn("b", 2))
	sheet := sheetmem.New()
	require.NoError(t, sheet.UpsertRow(ctx, txn("stale", 3)))
	require.NoError(t, sheet.UpsertRow(ctx, txn("a", 100)))

	report, err := NewMirrorWorker(repo, sheet).Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Upserted: 2, Removed: 1}, report)

	ids, _ := sheet.ListIDs(ctx)
	assert.Equal(t, []string{"a", "b"}, ids)
	row, _ := sheet.Row("a")
	assert.Equal(t, "0.01", row[5])
}
