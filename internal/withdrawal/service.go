package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/bank"
	"github.com/vizion-gateway/vizion_gateway/internal/ledger"
	"github.com/vizion-gateway/vizion_gateway/internal/logging"
	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

var (
	// ErrNotApproved occurs when funds movement is attempted for a request
	// that has not been approved.
	ErrNotApproved = errors.New("withdrawal request not approved")

	// ErrAlreadyReviewed occurs when a review targets a request that already
	// left the pending state.
	ErrAlreadyReviewed = errors.New("withdrawal request already reviewed")

	// ErrRejectionReasonRequired occurs when a rejection carries no reason.
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
)

// Service owns the withdrawal request workflow. It owns the request status
// field and delegates all balance movement to the ledger engine.
type Service struct {
	repo          Repository
	engine        *ledger.Engine
	connector     bank.Connector
	payoutTimeout time.Duration
	logger        *slog.Logger
	clock         func() time.Time
}

// NewService builds the withdrawal workflow service. A nil connector defaults
// to the static always-approving one; a nil logger discards output.
func NewService(repo Repository, engine *ledger.Engine, connector bank.Connector, payoutTimeout time.Duration, logger *slog.Logger) *Service {
	if connector == nil {
		connector = bank.StaticConnector{}
	}
	if payoutTimeout <= 0 {
		payoutTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:          repo,
		engine:        engine,
		connector:     connector,
		payoutTimeout: payoutTimeout,
		logger:        logger,
		clock:         time.Now,
	}
}

// CreateInput captures a payout request from a merchant or user.
type CreateInput struct {
	OwnerID            string
	Amount             decimal.Decimal
	Currency           money.Currency
	DestinationType    string
	DestinationDetails map[string]string
}

// Create records a pending request. No funds move; the wallet must exist with
// available balance covering the amount at request time.
func (s *Service) Create(ctx context.Context, input CreateInput) (Request, error) {
	if !input.Amount.IsPositive() {
		return Request{}, ledger.ErrInvalidAmount
	}

	walletType, err := s.resolveWalletType(ctx, input.OwnerID)
	if err != nil {
		return Request{}, err
	}

	bal, err := s.engine.Store().Balance(ctx, input.OwnerID, walletType, input.Currency)
	if err != nil {
		return Request{}, err
	}
	if bal.Available.LessThan(input.Amount) {
		return Request{}, ledger.ErrInsufficientFunds
	}

	destType := input.DestinationType
	if destType == "" {
		destType = "bank"
	}

	req := Request{
		ID:                 uuid.NewString(),
		OwnerID:            input.OwnerID,
		WalletType:         walletType,
		Amount:             input.Amount,
		Currency:           input.Currency,
		DestinationType:    destType,
		DestinationDetails: input.DestinationDetails,
		Status:             StatusPending,
		CreatedAt:          s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Review approves or rejects a pending request. Rejection requires a
// non-empty reason. Terminal states never transition again.
func (s *Service) Review(ctx context.Context, id string, approve bool, rejectionReason string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyReviewed
	}

	now := s.clock().UTC()
	req.ReviewedAt = &now
	if approve {
		req.Status = StatusApproved
	} else {
		if rejectionReason == "" {
			return Request{}, ErrRejectionReasonRequired
		}
		req.Status = StatusRejected
		req.RejectionReason = rejectionReason
	}

	if err := s.repo.Transition(ctx, req, StatusPending); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return Request{}, ErrAlreadyReviewed
		}
		return Request{}, err
	}
	return req, nil
}

// Process executes an approved request: claims it, submits the payout to the
// bank, then atomically debits the wallet and stamps the request completed
// with the resulting transaction id. The claim is a conditional transition to
// processing, so concurrent callers racing on the same request pay it out at
// most once. Available balance is re-checked at execution time; it may have
// dropped since the request was created.
func (s *Service) Process(ctx context.Context, id string) (Request, ledger.Transaction, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	if req.Status != StatusApproved {
		return Request{}, ledger.Transaction{}, ErrNotApproved
	}

	bal, err := s.engine.Store().Balance(ctx, req.OwnerID, req.WalletType, req.Currency)
	if err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	if bal.Available.LessThan(req.Amount) {
		return Request{}, ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	// Claim the request before contacting the bank. A concurrent Process on
	// the same request loses the transition and never submits a payout.
	req.Status = StatusProcessing
	if err := s.repo.Transition(ctx, req, StatusApproved); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return Request{}, ledger.Transaction{}, ErrNotApproved
		}
		return Request{}, ledger.Transaction{}, err
	}

	payoutCtx, cancel := context.WithTimeout(ctx, s.payoutTimeout)
	defer cancel()
	reference, err := s.connector.SubmitPayout(payoutCtx, bank.Payout{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Destination: req.DestinationDetails,
	})
	if err != nil {
		s.releaseClaim(ctx, req)
		return Request{}, ledger.Transaction{}, fmt.Errorf("%w: %w", bank.ErrPayoutFailed, err)
	}

	txn, err := s.engine.Withdraw(ctx, ledger.WithdrawInput{
		OwnerID:     req.OwnerID,
		WalletType:  req.WalletType,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Destination: ledger.Party{Type: ledger.PartyBank, ID: req.DestinationType},
		Reference:   reference,
		Description: "approved withdrawal",
		Metadata:    map[string]string{"withdrawal_request_id": req.ID},
	})
	if err != nil {
		// The payout already left the bank. Keep the processing claim so a
		// retry cannot pay out a second time; this needs reconciliation.
		s.logger.Error("wallet debit failed after successful payout",
			"request_id", req.ID,
			"payout_reference", reference,
			"amount", req.Amount.String(),
			"currency", string(req.Currency),
			"error", err,
		)
		return Request{}, ledger.Transaction{}, err
	}

	now := s.clock().UTC()
	req.Status = StatusCompleted
	req.TransactionID = txn.ID
	req.CompletedAt = &now
	if err := s.repo.Transition(ctx, req, StatusProcessing); err != nil {
		return Request{}, ledger.Transaction{}, err
	}
	return req, txn, nil
}

// releaseClaim moves a claimed request back to approved so it can be retried
// after a failed payout.
func (s *Service) releaseClaim(ctx context.Context, req Request) {
	req.Status = StatusApproved
	if err := s.repo.Transition(ctx, req, StatusProcessing); err != nil {
		s.logger.Error("release withdrawal claim", "request_id", req.ID, "error", err)
	}
}

// Get returns a request by id.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}

// ListPending returns requests awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]Request, error) {
	return s.repo.ListByStatus(ctx, StatusPending, limit)
}

// resolveWalletType finds the requester's wallet, preferring the merchant
// wallet when the owner holds both.
func (s *Service) resolveWalletType(ctx context.Context, ownerID string) (wallet.Type, error) {
	for _, typ := range []wallet.Type{wallet.TypeMerchant, wallet.TypeUser} {
		if _, err := s.engine.Wallets().Get(ctx, ownerID, typ); err == nil {
			return typ, nil
		} else if !errors.Is(err, wallet.ErrNotFound) {
			return "", err
		}
	}
	return "", wallet.ErrNotFound
}
