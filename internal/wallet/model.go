package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies the kind of owner a wallet belongs to.
type Type string

const (
	TypeUser     Type = "user"
	TypeMerchant Type = "merchant"
	TypePlatform Type = "platform"
)

// PlatformOwnerID is the fixed owner of the singleton platform wallet that
// accumulates fee revenue.
const PlatformOwnerID = "platform"

// SettlementFrequency controls how often a merchant wallet is swept to the bank.
type SettlementFrequency string

const (
	SettleDaily    SettlementFrequency = "daily"
	SettleWeekly   SettlementFrequency = "weekly"
	SettleBiweekly SettlementFrequency = "biweekly"
	SettleMonthly  SettlementFrequency = "monthly"
)

// Wallet holds the ledger-facing settings for one (owner, type) pair.
// Balances themselves live in the ledger store; exactly one wallet exists per
// (owner, type) and wallets are never deleted.
type Wallet struct {
	ID      string
	OwnerID string
	Type    Type

	// ReservePercentage is the fraction of an incoming payment's net amount
	// withheld into the reserved balance. Snapshotted when each payment is
	// processed, so later changes never rewrite completed transactions.
	ReservePercentage decimal.Decimal

	SettlementFrequency SettlementFrequency
	AutoSettlement      bool
	NextSettlementAt    time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NextSettlement computes the settlement timestamp that follows from, per the
// wallet frequency. Monthly advances by one calendar month.
func NextSettlement(freq SettlementFrequency, from time.Time) time.Time {
	switch freq {
	case SettleDaily:
		return from.AddDate(0, 0, 1)
	case SettleWeekly:
		return from.AddDate(0, 0, 7)
	case SettleBiweekly:
		return from.AddDate(0, 0, 14)
	case SettleMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}
