package money

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestConvertWithTableRate(t *testing.T) {
	ctx := context.Background()
	rates := NewStaticRates()

	converted, rate, err := Convert(ctx, rates, decimal.NewFromInt(100), XCD, USD)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.37")) {
		t.Fatalf("expected rate 0.37, got %s", rate)
	}
	if !converted.Equal(decimal.RequireFromString("37")) {
		t.Fatalf("expected 37, got %s", converted)
	}
}

func TestConvertIdentity(t *testing.T) {
	ctx := context.Background()
	rates := NewStaticRates()

	converted, rate, err := Convert(ctx, rates, decimal.NewFromInt(100), XCD, XCD)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected rate 1, got %s", rate)
	}
	if !converted.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100, got %s", converted)
	}
}

func TestConvertUnknownPair(t *testing.T) {
	ctx := context.Background()
	rates := NewStaticRates()

	if _, _, err := Convert(ctx, rates, decimal.NewFromInt(5), XCD, Currency("JPY")); !errors.Is(err, ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" usd "); got != USD {
		t.Fatalf("expected USD, got %q", got)
	}
}
