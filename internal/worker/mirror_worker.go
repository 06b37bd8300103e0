package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/events"
	"ledger/internal/ledger"
	"ledger/internal/sheets"
)

// RecordSource is the read side of the ledger database the worker needs.
type RecordSource interface {
	Find(ctx context.Context, id string) (core.Transaction, bool, error)
	List(ctx context.Context, from, to int64) ([]core.Transaction, error)
}

// MirrorWorker keeps a spreadsheet in step with the ledger database.
// Messages only say which record changed; the worker always writes the
// record's current state, so duplicated or reordered messages converge.
type MirrorWorker struct {
	source RecordSource
	sheet  sheets.Mirror
}

// SyncReport summarizes a Resync run.
type SyncReport struct {
	Upserted int
	Removed  int
	Failed   int
}

func NewMirrorWorker(source RecordSource, sheet sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{source: source, sheet: sheet}
}

// HandleChange applies one change message to the sheet.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg events.Message) error {
	if msg.Op == ledger.OpDelete {
		if err := w.sheet.DeleteRow(ctx, msg.TransactionID); err != nil {
			return fmt.Errorf("delete row %s: %w", msg.TransactionID, err)
		}
		return nil
	}

	tx, ok, err := w.source.Find(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if !ok {
		// Deleted after the message was sent; the delete message may still
		// be in flight, but the row has to go either way.
		slog.InfoContext(ctx, "Transaction no longer exists, removing row",
			"transaction_id", msg.TransactionID,
			"seq", msg.Seq)
		if err := w.sheet.DeleteRow(ctx, msg.TransactionID); err != nil {
			return fmt.Errorf("delete row %s: %w", msg.TransactionID, err)
		}
		return nil
	}

	if err := w.sheet.UpsertRow(ctx, tx); err != nil {
		return fmt.Errorf("upsert row %s: %w", tx.ID, err)
	}
	return nil
}

// Resync rewrites every ledger record to the sheet and removes rows whose
// record is gone. It recovers from messages lost while the worker was down.
func (w *MirrorWorker) Resync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	records, err := w.source.List(ctx, 0, 0)
	if err != nil {
		return report, fmt.Errorf("list transactions: %w", err)
	}
	existing, err := w.sheet.ListIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list sheet rows: %w", err)
	}

	live := make(map[string]struct{}, len(records))
	for _, tx := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		live[tx.ID] = struct{}{}
		if err := w.sheet.UpsertRow(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction", "transaction_id", tx.ID, "error", err)
			report.Failed++
			continue
		}
		report.Upserted++
	}

	for _, id := range existing {
		if _, ok := live[id]; ok {
			continue
		}
		if err := w.sheet.DeleteRow(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to remove stale row", "transaction_id", id, "error", err)
			report.Failed++
			continue
		}
		report.Removed++
	}

	slog.InfoContext(ctx, "Sheet resync completed",
		"upserted", report.Upserted,
		"removed", report.Removed,
		"failed", report.Failed)
	return report, nil
}
