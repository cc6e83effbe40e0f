package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an upper-case ISO-4217 style currency code, e.g. "USD" or "XCD".
type Currency string

// Currencies the platform settles in.
const (
	XCD Currency = "XCD"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// Normalize upper-cases and trims a raw currency code.
func Normalize(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// Balance is a wallet's position in a single currency. Available funds are
// immediately spendable; reserved funds are withheld as a risk buffer and
// only move back to available through a reserve release.
type Balance struct {
	Available decimal.Decimal
	Reserved  decimal.Decimal
}

// IsZero reports whether both components are zero.
func (b Balance) IsZero() bool {
	return b.Available.IsZero() && b.Reserved.IsZero()
}

// Zero returns an empty balance.
func Zero() Balance {
	return Balance{Available: decimal.Zero, Reserved: decimal.Zero}
}
