package money

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable occurs when no exchange rate is known for a currency pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RateProvider supplies exchange rates for ordered currency pairs. The static
// table below stands in for a live FX feed; production deployments inject a
// provider backed by one.
type RateProvider interface {
	Rate(ctx context.Context, from, to Currency) (decimal.Decimal, error)
}

// StaticRates is a fixed in-memory rate table keyed by ordered currency pair.
type StaticRates struct {
	rates map[string]decimal.Decimal
}

// NewStaticRates builds the default rate table used when no live provider is
// configured.
func NewStaticRates() *StaticRates {
	return &StaticRates{rates: map[string]decimal.Decimal{
		pairKey(XCD, USD): decimal.RequireFromString("0.37"),
		pairKey(USD, XCD): decimal.RequireFromString("2.70"),
		pairKey(XCD, EUR): decimal.RequireFromString("0.34"),
		pairKey(EUR, XCD): decimal.RequireFromString("2.94"),
		pairKey(XCD, GBP): decimal.RequireFromString("0.29"),
		pairKey(GBP, XCD): decimal.RequireFromString("3.45"),
		pairKey(USD, EUR): decimal.RequireFromString("0.92"),
		pairKey(EUR, USD): decimal.RequireFromString("1.09"),
		pairKey(USD, GBP): decimal.RequireFromString("0.79"),
		pairKey(GBP, USD): decimal.RequireFromString("1.27"),
	}}
}

// Rate looks up the rate for the ordered pair (from, to).
func (s *StaticRates) Rate(_ context.Context, from, to Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := s.rates[pairKey(from, to)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s->%s", ErrRateUnavailable, from, to)
	}
	return rate, nil
}

// Convert translates amount from one currency to another using the provider.
// Identity conversion never consults the provider.
func Convert(ctx context.Context, provider RateProvider, amount decimal.Decimal, from, to Currency) (decimal.Decimal, decimal.Decimal, error) {
	if from == to {
		return amount, decimal.NewFromInt(1), nil
	}
	rate, err := provider.Rate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return amount.Mul(rate), rate, nil
}

func pairKey(from, to Currency) string {
	return string(from) + "/" + string(to)
}
