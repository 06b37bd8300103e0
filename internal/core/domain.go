package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	KindIncome Kind = iota + 1
	KindExpense
)

const (
	SourceManual   Source = "manual"
	SourceImported Source = "imported"
)

const (
	maxIDLength          = 64
	maxCategoryLength    = 64
	maxDescriptionLength = 200
)

type (
	// Kind carries the direction of a transaction. The zero value is not a
	// valid kind and is used by Criteria to mean "any".
	Kind uint8

	// Source is a provenance tag. It has no behavioural effect.
	Source string

	// Transaction is the only ledger entity. Amounts are minor currency
	// units (cents) and always positive; Kind says which way the money went.
	// OccurredAt and CreatedAt are epoch milliseconds, UTC.
	Transaction struct {
		ID          string
		AmountMinor int64
		Kind        Kind
		Category    string
		Description string
		OccurredAt  int64
		CreatedAt   int64
		Source      Source
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidKind       = errors.New("invalid kind")
	ErrEmptyID           = errors.New("empty id")
	ErrEmptyCategory     = errors.New("empty category")
	ErrMissingOccurredAt = errors.New("missing occurred_at")
)

func (k Kind) String() string {
	switch k {
	case KindIncome:
		return "income"
	case KindExpense:
		return "expense"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the two defined kinds.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// ParseKind maps "income"/"expense" (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return KindIncome, nil
	case "expense":
		return KindExpense, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// NewID returns a fresh client-side transaction identifier.
func NewID() string {
	return uuid.NewString()
}

// Millis converts t to epoch milliseconds in UTC.
func Millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ParseOccurredAt accepts a calendar date (2006-01-02, taken as midnight
// UTC), an RFC 3339 timestamp, or epoch milliseconds.
func ParseOccurredAt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, Invalid(ErrMissingOccurredAt, "date is required")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return Millis(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Millis(t), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return ms, nil
	}
	return 0, Invalid(ErrMissingOccurredAt, fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s))
}

// OccurredTime returns OccurredAt as a time.Time.
func (t Transaction) OccurredTime() time.Time {
	return FromMillis(t.OccurredAt)
}

// Signed returns the amount with the sign implied by Kind.
func (t Transaction) Signed() int64 {
	if t.Kind == KindExpense {
		return -t.AmountMinor
	}
	return t.AmountMinor
}

// Validate checks the record invariants. Every failure is a validation
// error that also matches the specific sentinel via errors.Is.
func (t Transaction) Validate() error {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return Invalid(ErrEmptyID, "id is required")
	}
	if len(id) > maxIDLength {
		return Invalid(ErrEmptyID, fmt.Sprintf("id too long (max %d characters)", maxIDLength))
	}
	if t.AmountMinor <= 0 {
		return Invalid(ErrInvalidAmount, "amount must be positive")
	}
	if t.AmountMinor > MaxAmountMinor {
		return Invalid(ErrInvalidAmount, "amount exceeds maximum")
	}
	if !t.Kind.Valid() {
		return Invalid(ErrInvalidKind, "kind must be income or expense")
	}
	category := strings.TrimSpace(t.Category)
	if category == "" {
		return Invalid(ErrEmptyCategory, "category is required")
	}
	if len(category) > maxCategoryLength {
		return Invalid(ErrEmptyCategory, fmt.Sprintf("category too long (max %d characters)", maxCategoryLength))
	}
	if len(t.Description) > maxDescriptionLength {
		return Invalid(nil, fmt.Sprintf("description too long (max %d characters)", maxDescriptionLength))
	}
	if t.OccurredAt <= 0 {
		return Invalid(ErrMissingOccurredAt, "occurred_at is required")
	}
	if t.CreatedAt < 0 {
		return Invalid(nil, "created_at cannot be negative")
	}
	return nil
}
