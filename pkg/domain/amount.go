package domain

import (
	"github.com/shopspring/decimal"

	dErrors "namereg/pkg/domain-errors"
)

// weiPerEther is the number of base units in one ether.
var weiPerEther = decimal.New(1, 18)

// Amount is a non-negative quantity of the ledger's base currency, in wei.
// The zero value is zero wei.
type Amount struct {
	wei decimal.Decimal
}

// ZeroAmount is zero wei.
var ZeroAmount = Amount{}

// Wei builds an Amount from an integer number of wei.
func Wei(n int64) Amount {
	if n < 0 {
		panic("domain: negative amount")
	}
	return Amount{wei: decimal.NewFromInt(n)}
}

// Ether builds an Amount from a decimal ether string such as "0.01".
// It panics on malformed or fractional-wei input; use it for constants.
func Ether(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	wei := d.Mul(weiPerEther)
	if wei.IsNegative() || !wei.Equal(wei.Truncate(0)) {
		panic("domain: ether amount is not a whole number of wei")
	}
	return Amount{wei: wei}
}

// ParseAmount parses a non-negative integer wei string from external input.
//
// Errors: returns CodeInvalidInput for empty, negative, fractional or
// non-numeric values.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount cannot be empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be an integer number of wei")
	}
	if d.IsNegative() {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount cannot be negative")
	}
	if !d.Equal(d.Truncate(0)) {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be an integer number of wei")
	}
	return Amount{wei: d}, nil
}

// Equal reports exact equality.
func (a Amount) Equal(b Amount) bool {
	return a.wei.Equal(b.wei)
}

// IsZero reports whether the amount is zero wei.
func (a Amount) IsZero() bool {
	return a.wei.IsZero()
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{wei: a.wei.Add(b.wei)}
}

// Half returns floor(a/2).
func (a Amount) Half() Amount {
	return Amount{wei: a.wei.Div(decimal.NewFromInt(2)).Truncate(0)}
}

// String returns the amount in wei as a base-10 integer.
func (a Amount) String() string {
	return a.wei.StringFixed(0)
}

// EtherString returns the amount in ether for display.
func (a Amount) EtherString() string {
	return a.wei.Div(weiPerEther).String()
}

// Decimal exposes the underlying wei value for storage drivers.
func (a Amount) Decimal() decimal.Decimal {
	return a.wei
}

// AmountFromDecimal converts a stored wei value back into an Amount.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	return ParseAmount(d.String())
}

// MarshalText encodes the amount as a wei integer string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a wei integer string.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
