package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"1e3", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1234.5", "usd", "$1,234.50"},
		{"0.5", "EUR", "€0.50"},
		{"-1000000", "USD", "-$1,000,000.00"},
		{"12", "CHF", "CHF 12.00"},
	}
	for _, tc := range cases {
		if got := FormatAmount(decimal.RequireFromString(tc.amount), tc.currency); got != tc.want {
			t.Fatalf("FormatAmount(%s, %s) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestVoucherFormat(t *testing.T) {
	day := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	v := FormatVoucher("EX-", day, 7)
	if v != "EX-20250704-0007" {
		t.Fatalf("unexpected voucher %q", v)
	}
	d, seq, ok := ParseVoucherSeq("EX-", v)
	if !ok || d != VoucherDay(day) || seq != 7 {
		t.Fatalf("unexpected parse: %s %d %v", d, seq, ok)
	}
	if _, _, ok := ParseVoucherSeq("", "random"); ok {
		t.Fatalf("expected parse failure")
	}
}

func TestSettingsNormalize(t *testing.T) {
	s := Settings{Currency: " eur ", Theme: "neon"}.Normalize(DefaultSettings())
	if s.Currency != "EUR" || s.Theme != ThemeLight || s.NumberFormat != NumberEnglish || s.DateFormat == "" {
		t.Fatalf("unexpected normalized settings: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}
	if err := (Settings{Currency: "EURO"}).Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error")
	}
}
