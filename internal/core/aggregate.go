package core

import (
	"cmp"
	"math"
	"slices"
)

// Criteria is a conjunction of optional constraints. A zero field is unset
// and matches everything: Kind 0, Category "", From 0, To 0.
// From and To are inclusive epoch milliseconds.
type Criteria struct {
	Kind     Kind
	Category string
	From     int64
	To       int64
}

// IsZero reports whether no constraint is set.
func (c Criteria) IsZero() bool {
	return c == Criteria{}
}

// HasRange reports whether either date bound is set.
func (c Criteria) HasRange() bool {
	return c.From != 0 || c.To != 0
}

// Match reports whether t satisfies every set constraint.
func (c Criteria) Match(t Transaction) bool {
	if c.Kind != 0 && t.Kind != c.Kind {
		return false
	}
	if c.Category != "" && t.Category != c.Category {
		return false
	}
	if c.From != 0 && t.OccurredAt < c.From {
		return false
	}
	if c.To != 0 && t.OccurredAt > c.To {
		return false
	}
	return true
}

// Filter returns the records matching c, preserving input order.
func Filter(records []Transaction, c Criteria) []Transaction {
	out := make([]Transaction, 0, len(records))
	for _, r := range records {
		if c.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// TotalByKind sums AmountMinor over records of the given kind. Sums are
// exact up to math.MaxInt64 and clamp there; that needs about 92k records
// at MaxAmountMinor.
func TotalByKind(records []Transaction, kind Kind) int64 {
	var total int64
	for _, r := range records {
		if r.Kind == kind {
			total = addAmount(total, r.AmountMinor)
		}
	}
	return total
}

// addAmount adds two non-negative amounts, clamping at math.MaxInt64.
func addAmount(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// NetBalance is income minus expense for the given record set only. It is a
// period-scoped net, not a lifetime balance: pass it all history if that is
// what you want.
func NetBalance(records []Transaction) int64 {
	return TotalByKind(records, KindIncome) - TotalByKind(records, KindExpense)
}

// Summarize computes the three period totals in one pass.
func Summarize(records []Transaction) Totals {
	var t Totals
	for _, r := range records {
		switch r.Kind {
		case KindIncome:
			t.Income = addAmount(t.Income, r.AmountMinor)
		case KindExpense:
			t.Expense = addAmount(t.Expense, r.AmountMinor)
		}
	}
	t.Net = t.Income - t.Expense
	return t
}

// GroupByCategory totals records of one kind per category. Records of the
// other kind are ignored so signs are never mixed. The result is sorted by
// amount descending, then name.
func GroupByCategory(records []Transaction, kind Kind) []CategoryAmount {
	sums := make(map[string]int64)
	for _, r := range records {
		if r.Kind != kind {
			continue
		}
		sums[r.Category] = addAmount(sums[r.Category], r.AmountMinor)
	}
	out := make([]CategoryAmount, 0, len(sums))
	for name, amount := range sums {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	slices.SortFunc(out, func(a, b CategoryAmount) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// LedgerOrder is the canonical record order: OccurredAt descending, ties
// broken by ID ascending (bytewise).
func LedgerOrder(a, b Transaction) int {
	if c := cmp.Compare(b.OccurredAt, a.OccurredAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortLedger sorts records in place by LedgerOrder.
func SortLedger(records []Transaction) {
	slices.SortFunc(records, LedgerOrder)
}
