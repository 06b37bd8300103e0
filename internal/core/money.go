// Package core provides money parsing and handling utilities.
//
// This file converts between major-unit strings ("10.50") and the integer
// minor units stored in the ledger. Arithmetic never goes through floats.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountMinor caps a single amount at one trillion major units.
const MaxAmountMinor int64 = 100_000_000_000_000

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(MaxAmountMinor)
)

// ParseMinor converts a positive decimal string to minor units.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Values with
// more than two significant fractional digits are rejected rather than
// rounded, so every accepted input round-trips through FormatMinor.
//
// Examples:
//
//	ParseMinor("10.50") -> 1050, nil
//	ParseMinor("12,3")  -> 1230, nil
//	ParseMinor("1.005") -> 0, error
func ParseMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, Invalid(ErrInvalidAmount, "amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, Invalid(ErrInvalidAmount, "amount must be a positive decimal number")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, Invalid(ErrInvalidAmount, "amount must be a positive decimal number")
	}
	scaled := d.Mul(hundred)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, Invalid(ErrInvalidAmount, "amount has more than two decimal places")
	}
	if scaled.Sign() <= 0 {
		return 0, Invalid(ErrInvalidAmount, "amount must be positive")
	}
	if scaled.GreaterThan(maxMinor) {
		return 0, Invalid(ErrInvalidAmount, "amount exceeds maximum")
	}
	return scaled.IntPart(), nil
}

// FormatMinor renders minor units with exactly two fractional digits.
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
