// Package core provides the account domain model and money handling utilities.
//
// This file contains functions for parsing monetary amounts from strings,
// rounding them to cents and rendering them as localized currency text.
package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// maxCents bounds every amount the terminal accepts (10 trillion).
var maxCents = decimal.New(1, 15)

// Money is a fixed-point amount stored as integer cents.
type Money struct {
	Cents int64
}

// FromCents returns the amount for the given number of cents.
func FromCents(cents int64) Money {
	return Money{Cents: cents}
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Neg returns -m.
func (m Money) Neg() Money { return Money{Cents: -m.Cents} }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Cents == 0 }

// Decimal returns the amount as a decimal with two fractional digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount as a float64 for display purposes.
// Note: Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String renders the amount with exactly two decimals ("650.00").
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string and rounds it to cents.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return ErrInvalidAmount
	}
	var text string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return ErrInvalidAmount
		}
	} else {
		text = string(data)
	}
	parsed, err := ParseAmount(text)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Round2 rounds x to two decimal places, half away from zero.
//
// Non-finite inputs are returned unchanged.
//
// Examples:
//
//	Round2(1.005)  -> 1.01
//	Round2(-2.675) -> -2.68
//	Round2(0.1+0.2) -> 0.3
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// ParseAmount converts a decimal string to Money with proper rounding.
//
// A literal comma is accepted as decimal separator (12,34) and the value is
// rounded half away from zero on the third decimal place. ParseAmount does
// not check the sign: callers that need a positive amount must check it.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,34")  -> 1234 cents
//	ParseAmount("12.345") -> 1235 cents
//	ParseAmount("abc")    -> ErrInvalidAmount
func ParseAmount(text string) (Money, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.Abs().GreaterThan(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// CurrencyFormatter renders amounts as localized currency text.
type CurrencyFormatter struct {
	printer *message.Printer
	symbol  string
}

// NewCurrencyFormatter creates a formatter for the given locale and currency symbol.
func NewCurrencyFormatter(tag language.Tag, symbol string) *CurrencyFormatter {
	return &CurrencyFormatter{
		printer: message.NewPrinter(tag),
		symbol:  symbol,
	}
}

// Format renders m with the locale's grouping and decimal separators,
// always with two fractional digits ("$1,234.50", "-$50.00").
func (f *CurrencyFormatter) Format(m Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := f.printer.Sprint(number.Decimal(float64(cents)/100.0,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2)))
	return sign + f.symbol + amount
}

var defaultFormatter = NewCurrencyFormatter(language.MustParse("es-MX"), "$")

// FormatCurrency renders m as Mexican peso text. Purely presentational.
func FormatCurrency(m Money) string {
	return defaultFormatter.Format(m)
}
