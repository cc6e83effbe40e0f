package bank

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
)

// ErrPayoutFailed occurs when the external bank rejects or fails a payout.
var ErrPayoutFailed = errors.New("external payout failed")

// Payout captures the details submitted to the bank for a disbursement.
type Payout struct {
	Amount   decimal.Decimal
	Currency money.Currency
	// Destination carries the bank-specific routing details, e.g.
	// account number and bank code, as opaque key-value pairs.
	Destination map[string]string
}

// Connector is the boundary to an external bank or payout rail. The ledger
// only needs a pass/fail signal and a reference string; the wire protocol is
// the connector's concern. Implementations must respect ctx cancellation.
type Connector interface {
	SubmitPayout(ctx context.Context, payout Payout) (string, error)
}

// StaticConnector approves every payout with a synthetic reference, keeping
// tests and dev mode deterministic.
type StaticConnector struct{}

// SubmitPayout approves the payout.
func (StaticConnector) SubmitPayout(_ context.Context, _ Payout) (string, error) {
	return uuid.NewString(), nil
}

// FailingConnector rejects every payout. Useful for exercising failure paths
// in tests.
type FailingConnector struct{}

// SubmitPayout rejects the payout.
func (FailingConnector) SubmitPayout(_ context.Context, _ Payout) (string, error) {
	return "", ErrPayoutFailed
}
