// Package importer loads transactions from CSV files into the ledger.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// idNamespace scopes ids derived from CSV rows.
var idNamespace = uuid.MustParse("6f1c3a52-8d0e-4b7a-9c41-2f5e7d9a0b13")

var requiredColumns = []string{"date", "kind", "category", "amount"}

// RowError describes a CSV row that could not be imported. Row is the
// 1-based line number in the file, header included.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, core.DetailOf(e.Err))
}

// Row is a parsed CSV line.
type Row struct {
	Line int
	Tx   core.Transaction
}

// Parse reads a CSV with a header naming at least date, kind, category
// and amount (description is optional, column order is free). Rows that
// fail to parse are returned as RowErrors; the rest as transactions with
// ids derived from their content, so importing the same file twice yields
// the same ids.
func Parse(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := parseHeader(header)
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("csv header is missing column %q", name)
		}
	}

	var (
		rows    []Row
		rowErrs []RowError
	)
	seen := make(map[string]int)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return rows, rowErrs, fmt.Errorf("read csv: %w", err)
			}
			rowErrs = append(rowErrs, RowError{Row: pe.StartLine, Err: core.Invalid(err, "malformed csv line")})
			continue
		}
		lineNum, _ := reader.FieldPos(0)
		if isBlank(record) {
			continue
		}

		tx, err := toTransaction(cols, record)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: lineNum, Err: err})
			continue
		}

		// Identical lines in one file are distinct purchases; the
		// occurrence count keeps their ids apart.
		key := rowKey(tx)
		seen[key]++
		tx.ID = uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s#%d", key, seen[key]))).String()
		rows = append(rows, Row{Line: lineNum, Tx: tx})
	}
	return rows, rowErrs, nil
}

func parseHeader(row []string) map[string]int {
	cols := make(map[string]int, len(row))
	for i, h := range row {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

func field(cols map[string]int, record []string, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func toTransaction(cols map[string]int, record []string) (core.Transaction, error) {
	occurredAt, err := core.ParseOccurredAt(field(cols, record, "date"))
	if err != nil {
		return core.Transaction{}, err
	}
	kind, err := core.ParseKind(field(cols, record, "kind"))
	if err != nil {
		return core.Transaction{}, core.Invalid(err, "kind must be income or expense")
	}
	amount, err := core.ParseMinor(field(cols, record, "amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	category := field(cols, record, "category")
	if category == "" {
		return core.Transaction{}, core.Invalid(core.ErrEmptyCategory, "category is required")
	}

	return core.Transaction{
		AmountMinor: amount,
		Kind:        kind,
		Category:    category,
		Description: field(cols, record, "description"),
		OccurredAt:  occurredAt,
		Source:      core.SourceImported,
	}, nil
}

func rowKey(tx core.Transaction) string {
	return strings.Join([]string{
		fmt.Sprint(tx.OccurredAt),
		tx.Kind.String(),
		strings.ToLower(tx.Category),
		fmt.Sprint(tx.AmountMinor),
		strings.ToLower(tx.Description),
	}, "|")
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Report is the outcome of an Import.
type Report struct {
	Imported int
	Skipped  int
	Errors   []RowError
}

// Importer inserts parsed rows through the ledger, so imports are
// validated and announced like any other write.
type Importer struct {
	writer ledger.Writer
	logger *slog.Logger
}

func New(writer ledger.Writer, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{writer: writer, logger: logger}
}

// Import reads r and inserts every valid row. Rows already in the ledger
// are counted as skipped. A storage failure stops the import and is
// returned with the partial report.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Report, error) {
	rows, rowErrs, err := Parse(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Errors: rowErrs}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, err := im.writer.Insert(ctx, row.Tx)
		switch core.CodeOf(err) {
		case "":
			if err != nil {
				return report, fmt.Errorf("insert row %d: %w", row.Line, err)
			}
			report.Imported++
		case core.CodeConflict:
			report.Skipped++
		case core.CodeValidation:
			report.Errors = append(report.Errors, RowError{Row: row.Line, Err: err})
		default:
			return report, fmt.Errorf("insert row %d: %w", row.Line, err)
		}
	}

	im.logger.InfoContext(ctx, "CSV import finished",
		"imported", report.Imported,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}
