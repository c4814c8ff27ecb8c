// Package money stores currency as integer minor units and converts to and
// from decimal major units with half-up rounding.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Amount is a count of cents. It marshals to JSON as a 2-place decimal number.
type Amount int64

// ToCents converts a major-unit decimal into cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts cents back to a decimal with 2 places.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Parse reads a decimal string such as "15000.50" into an Amount.
func Parse(raw string) (Amount, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return Amount(ToCents(d)), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(raw string) Amount {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// Cents returns the stored integer value.
func (a Amount) Cents() int64 { return int64(a) }

// Decimal returns the major-unit view.
func (a Amount) Decimal() decimal.Decimal { return FromCents(int64(a)) }

// String renders the amount with exactly two decimals.
func (a Amount) String() string { return a.Decimal().StringFixed(2) }

// Format renders the amount with a currency code and thousands separators.
func (a Amount) Format(currency string) string {
	s := a.Decimal().Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if a < 0 {
		sign = "-"
	}
	if currency == "" {
		return sign + b.String() + frac
	}
	return currency + " " + sign + b.String() + frac
}

// Sum adds amounts in cents.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// MarshalJSON emits a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
