package core

// CategoryAmount is a per-category total for a single Kind.
type CategoryAmount struct {
	Name   string
	Amount int64
}

// Totals are period-scoped: they describe only the record set they were
// computed from, never the all-time position.
type Totals struct {
	Income  int64
	Expense int64
	Net     int64
}
