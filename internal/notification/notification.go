package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceChange is the event emitted once per wallet-affecting ledger
// mutation. It is ephemeral: the core publishes it and moves on without
// awaiting subscribers.
type BalanceChange struct {
	OwnerID         string          `json:"owner_id"`
	WalletType      string          `json:"wallet_type"`
	Currency        string          `json:"currency"`
	Delta           decimal.Decimal `json:"delta"`
	TransactionType string          `json:"transaction_type"`
	TransactionID   string          `json:"transaction_id"`
	At              time.Time       `json:"at"`
}

// Notifier delivers balance-change events to downstream systems
// (push notifications, audit logging, analytics).
type Notifier interface {
	Notify(ctx context.Context, change BalanceChange) error
}

// LoggerNotifier writes events to the structured logger. Used when no event
// bus is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Notify writes the event to the structured logger.
func (n *LoggerNotifier) Notify(_ context.Context, change BalanceChange) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("balance change",
		"owner_id", change.OwnerID,
		"wallet_type", change.WalletType,
		"currency", change.Currency,
		"delta", change.Delta.String(),
		"transaction_type", change.TransactionType,
		"transaction_id", change.TransactionID,
	)
	return nil
}
