package core

import (
	"errors"
	"testing"
)

func TestParseMinor(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"10.50", 1050, true},
		{"10.500", 1050, true},
		{".5", 50, true},
		{" 2.50 ", 250, true},
		{"1000000000000", MaxAmountMinor, true},
		{"1000000000000.01", 0, false},
		{"1.005", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.00", 0, false},
		{"1e3", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMinor(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error, got %d", tc.in, got)
		}
		if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected validation error, got %v", tc.in, err)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	cases := map[int64]string{
		1:       "0.01",
		50:      "0.50",
		1050:    "10.50",
		100:     "1.00",
		123456:  "1234.56",
		-1050:   "-10.50",
		0:       "0.00",
	}
	for in, want := range cases {
		if got := FormatMinor(in); got != want {
			t.Fatalf("FormatMinor(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestMinorRoundTrip(t *testing.T) {
	for _, s := range []string{"10.50", "0.01", "0.99", "19.99", "250.00", "999999999999.99", "1000000000000.00"} {
		minor, err := ParseMinor(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if back := FormatMinor(minor); back != s {
			t.Fatalf("round trip %q -> %d -> %q", s, minor, back)
		}
	}
	// Every cent value in a window parses back to itself.
	for minor := int64(1); minor <= 10_000; minor++ {
		got, err := ParseMinor(FormatMinor(minor))
		if err != nil || got != minor {
			t.Fatalf("minor %d round trip got %d (err=%v)", minor, got, err)
		}
	}
}
