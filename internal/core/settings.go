package core

import (
	"errors"
	"strings"
)

const (
	NumberEnglish NumberFormat = "english"
	NumberBengali NumberFormat = "bengali"

	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type (
	NumberFormat string
	Theme        string

	// Settings are per-account preferences. Zero fields are filled from
	// defaults by Normalize.
	Settings struct {
		Currency      string       `json:"currency" yaml:"currency"`
		NumberFormat  NumberFormat `json:"numberFormat" yaml:"number_format"`
		DateFormat    string       `json:"dateFormat" yaml:"date_format"`
		Theme         Theme        `json:"theme" yaml:"theme"`
		VoucherPrefix string       `json:"voucherPrefix" yaml:"voucher_prefix"`
		SoftwareName  string       `json:"softwareName" yaml:"software_name"`
		Notifications bool         `json:"notifications" yaml:"notifications"`
		AutoBackup    bool         `json:"autoBackup" yaml:"auto_backup"`
	}
)

var (
	ErrInvalidCurrency = errors.New("currency must be a 3 letter code")
	ErrPrefixTooLong   = errors.New("voucher prefix too long (max 10 characters)")
)

func DefaultSettings() Settings {
	return Settings{
		Currency:      "USD",
		NumberFormat:  NumberEnglish,
		DateFormat:    "MM/DD/YYYY",
		Theme:         ThemeLight,
		SoftwareName:  "Expensee",
		Notifications: true,
	}
}

// Normalize fills empty fields from base and canonicalizes the currency.
func (s Settings) Normalize(base Settings) Settings {
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Currency == "" {
		s.Currency = base.Currency
	}
	if s.NumberFormat != NumberEnglish && s.NumberFormat != NumberBengali {
		s.NumberFormat = base.NumberFormat
	}
	if strings.TrimSpace(s.DateFormat) == "" {
		s.DateFormat = base.DateFormat
	}
	if s.Theme != ThemeLight && s.Theme != ThemeDark {
		s.Theme = base.Theme
	}
	s.VoucherPrefix = strings.TrimSpace(s.VoucherPrefix)
	if strings.TrimSpace(s.SoftwareName) == "" {
		s.SoftwareName = base.SoftwareName
	}
	return s
}

func (s Settings) Validate() error {
	if len(s.Currency) != 3 {
		return invalid("currency", ErrInvalidCurrency)
	}
	if len(s.VoucherPrefix) > 10 {
		return invalid("voucherPrefix", ErrPrefixTooLong)
	}
	return nil
}
