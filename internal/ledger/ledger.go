package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

var (
	// ErrInvalidAmount occurs when an operation is invoked with a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds occurs when a debit would drive an available
	// balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientReserve occurs when a release exceeds the reserved
	// balance.
	ErrInsufficientReserve = errors.New("insufficient reserve")

	// ErrInvalidDestination occurs when an operation targets a party that
	// cannot hold a wallet.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrConflict indicates a concurrent write raced the operation. The
	// engine retries a bounded number of times before surfacing it.
	ErrConflict = errors.New("persistence conflict")

	// ErrTransactionNotFound occurs when no transaction exists for an id.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// PartyType classifies the entities money moves between.
type PartyType string

const (
	PartyUser     PartyType = "user"
	PartyMerchant PartyType = "merchant"
	PartyPlatform PartyType = "platform"
	PartyBank     PartyType = "bank"
	PartyExternal PartyType = "external"
)

// Party identifies one side of a transaction.
type Party struct {
	Type PartyType `json:"type"`
	ID   string    `json:"id"`
}

// PlatformParty is the system side of fee credits and reserve releases.
var PlatformParty = Party{Type: PartyPlatform, ID: wallet.PlatformOwnerID}

// WalletType maps a party onto the wallet type that holds its balances.
// The boolean is false for bank/external parties, which hold no wallet.
func (p Party) WalletType() (wallet.Type, bool) {
	switch p.Type {
	case PartyUser:
		return wallet.TypeUser, true
	case PartyMerchant:
		return wallet.TypeMerchant, true
	case PartyPlatform:
		return wallet.TypePlatform, true
	default:
		return "", false
	}
}

// Type categorizes ledger transactions.
type Type string

const (
	TypePayment        Type = "payment"
	TypeDeposit        Type = "deposit"
	TypeWithdrawal     Type = "withdrawal"
	TypeSettlement     Type = "settlement"
	TypeReserveRelease Type = "reserve_release"
)

// Status tracks a transaction's lifecycle. A completed transaction is an
// immutable audit record and never changes again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transaction is one append-only ledger record.
type Transaction struct {
	ID       string
	Type     Type
	Amount   decimal.Decimal
	Currency money.Currency

	Source      Party
	Destination Party

	// Computed for payments; zero for other types.
	Fee           decimal.Decimal
	PlatformFee   decimal.Decimal
	ReserveAmount decimal.Decimal
	NetAmount     decimal.Decimal

	Reference   string
	Description string
	Metadata    map[string]string

	Status Status

	// The wallet this transaction primarily debited or credited.
	WalletOwnerID string
	WalletType    wallet.Type

	CreatedAt   time.Time
	CompletedAt time.Time
}

// Posting is a signed balance delta against one wallet currency position.
type Posting struct {
	OwnerID    string
	WalletType wallet.Type
	Currency   money.Currency
	Available  decimal.Decimal
	Reserved   decimal.Decimal
}

// Store holds wallet balances and the transaction log.
//
// Apply is the atomic unit required of every backend: all postings and the
// transaction record commit together or not at all, and no interleaved write
// to the same wallet position may be visible between validation and commit.
// A posting that would drive available below zero fails with
// ErrInsufficientFunds, reserved below zero with ErrInsufficientReserve, and
// a lost-update race with ErrConflict.
type Store interface {
	Balances(ctx context.Context, ownerID string, typ wallet.Type) (map[money.Currency]money.Balance, error)
	Balance(ctx context.Context, ownerID string, typ wallet.Type, currency money.Currency) (money.Balance, error)
	Apply(ctx context.Context, tx Transaction, postings []Posting) (Transaction, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, typ wallet.Type, limit int) ([]Transaction, error)
}
