package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/storage/memory"
)

func TestParseValid(t *testing.T) {
	content := `Date,Kind,Category,Amount,Description
2025-08-17,expense,Groceries,42.50,weekly shop
2025-08-18, income , Salary ,1500,`

	rows, rowErrs, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, rows, 2)

	first := rows[0].Tx
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, core.KindExpense, first.Kind)
	assert.Equal(t, int64(4250), first.AmountMinor)
	assert.Equal(t, "Groceries", first.Category)
	assert.Equal(t, "weekly shop", first.Description)
	assert.Equal(t, core.SourceImported, first.Source)
	assert.Equal(t, core.Millis(time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC)), first.OccurredAt)
	assert.NotEmpty(t, first.ID)

	second := rows[1].Tx
	assert.Equal(t, core.KindIncome, second.Kind)
	assert.Equal(t, "Salary", second.Category)
	assert.Equal(t, int64(150000), second.AmountMinor)
}

func TestParseColumnOrderAndCase(t *testing.T) {
	content := "AMOUNT,category,DATE,kind\n3,food,2025-01-02,Expense\n"
	rows, rowErrs, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(300), rows[0].Tx.AmountMinor)
	assert.Equal(t, "", rows[0].Tx.Description)
}

func TestParseReportsBadRows(t *testing.T) {
	content := `date,kind,category,amount
2025-01-01,expense,food,10

not-a-date,expense,food,10
2025-01-01,transfer,food,10
2025-01-01,expense,,10
2025-01-01,expense,food,1.005
2025-01-01,expense,food,-4
`
	rows, rowErrs, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.Len(t, rowErrs, 5)

	lines := make([]int, len(rowErrs))
	for i, re := range rowErrs {
		lines[i] = re.Row
		assert.True(t, errors.Is(re.Err, core.ErrValidation), "row %d: %v", re.Row, re.Err)
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8}, lines)
	assert.Contains(t, rowErrs[3].Error(), "row 7")
}

func TestParseMissingColumn(t *testing.T) {
	_, _, err := Parse(strings.NewReader("date,kind,amount\n2025-01-01,expense,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"category"`)
}

func TestParseEmpty(t *testing.T) {
	rows, rowErrs, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, rowErrs)
}

func TestParseIDsAreStable(t *testing.T) {
	content := `date,kind,category,amount,description
2025-03-01,expense,coffee,2.20,espresso
2025-03-01,expense,coffee,2.20,espresso
2025-03-02,expense,coffee,2.20,espresso
`
	a, _, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	b, _, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	require.Len(t, a, 3)
	for i := range a {
		assert.Equal(t, a[i].Tx.ID, b[i].Tx.ID)
	}
	assert.NotEqual(t, a[0].Tx.ID, a[1].Tx.ID, "repeated lines are separate purchases")
	assert.NotEqual(t, a[1].Tx.ID, a[2].Tx.ID)
}

func TestImportIsIdempotent(t *testing.T) {
	l := ledger.New(memory.New())
	defer l.Close()
	im := New(l, nil)
	ctx := context.Background()

	content := `date,kind,category,amount
2025-01-01,income,salary,500
2025-01-02,expense,rent,300
bad,expense,rent,300
`
	report, err := im.Import(ctx, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 0, report.Skipped)
	assert.Len(t, report.Errors, 1)

	again, err := im.Import(ctx, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, again.Skipped)

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Totals{Income: 50000, Expense: 30000, Net: 20000}, core.Summarize(all))
}

func TestImportStopsOnStorageError(t *testing.T) {
	repo := memory.New()
	require.NoError(t, repo.Close())
	l := ledger.New(repo)
	defer l.Close()

	report, err := New(l, nil).Import(context.Background(),
		strings.NewReader("date,kind,category,amount\n2025-01-01,income,x,1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.Equal(t, 0, report.Imported)
}
