package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// RowWriter mirrors single transactions as spreadsheet rows keyed by id.
	RowWriter interface {
		UpsertRow(ctx context.Context, tx core.Transaction) error
		DeleteRow(ctx context.Context, id string) error
	}

	// RowLister returns the ids currently present in the sheet.
	RowLister interface {
		ListIDs(ctx context.Context) ([]string, error)
	}

	// Mirror is a sheet the worker can keep in step with the ledger.
	Mirror interface {
		RowWriter
		RowLister
	}
)

// Header is the first row of a mirror sheet.
var Header = []string{"ID", "Date", "Kind", "Category", "Description", "Amount", "Source"}

// RowValues renders tx in Header column order.
func RowValues(tx core.Transaction) []string {
	return []string{
		tx.ID,
		tx.OccurredTime().Format("2006-01-02"),
		tx.Kind.String(),
		tx.Category,
		tx.Description,
		core.FormatMinor(tx.AmountMinor),
		string(tx.Source),
	}
}
