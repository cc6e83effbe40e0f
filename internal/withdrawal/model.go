package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// Status tracks the request workflow: pending -> approved -> processing ->
// completed, or pending -> rejected. Completed and rejected are terminal.
// Processing marks a request claimed by an in-flight payout; it moves back to
// approved when the bank rejects the payout.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusRejected   Status = "rejected"
	StatusCompleted  Status = "completed"
)

// Request is a payout awaiting approval. Funds only move when an approved
// request is processed; creating or approving a request never mutates
// balances.
type Request struct {
	ID         string
	OwnerID    string
	WalletType wallet.Type

	Amount   decimal.Decimal
	Currency money.Currency

	DestinationType    string
	DestinationDetails map[string]string

	Status          Status
	RejectionReason string

	// TransactionID links the ledger withdrawal created on completion.
	TransactionID string

	CreatedAt   time.Time
	ReviewedAt  *time.Time
	CompletedAt *time.Time
}
