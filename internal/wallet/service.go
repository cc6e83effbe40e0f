package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Service exposes wallet provisioning and settings operations.
type Service struct {
	repo              Repository
	defaultReservePct decimal.Decimal
}

// NewService builds a wallet service instance. defaultReservePct applies to
// merchant wallets created without an explicit reserve percentage.
func NewService(repo Repository, defaultReservePct decimal.Decimal) *Service {
	return &Service{repo: repo, defaultReservePct: defaultReservePct}
}

// CreateInput captures data required to provision a wallet.
type CreateInput struct {
	OwnerID string
	Type    Type
	// ReservePercentage overrides the default for new merchant wallets.
	// Ignored when the wallet already exists.
	ReservePercentage *decimal.Decimal
}

// GetOrCreate returns the wallet for (OwnerID, Type), creating it lazily.
// Creation is idempotent: an existing wallet is returned unchanged.
func (s *Service) GetOrCreate(ctx context.Context, input CreateInput) (Wallet, error) {
	if input.OwnerID == "" {
		return Wallet{}, fmt.Errorf("owner id is required")
	}
	switch input.Type {
	case TypeUser, TypeMerchant, TypePlatform:
	default:
		return Wallet{}, fmt.Errorf("unknown wallet type %q", input.Type)
	}

	pct := decimal.Zero
	if input.Type == TypeMerchant {
		pct = s.defaultReservePct
	}
	if input.ReservePercentage != nil {
		pct = *input.ReservePercentage
	}
	if input.Type == TypePlatform {
		// The platform wallet never withholds reserve from itself.
		pct = decimal.Zero
	}

	w, _, err := s.repo.GetOrCreate(ctx, input.OwnerID, input.Type, pct)
	return w, err
}

// Get retrieves wallet settings.
func (s *Service) Get(ctx context.Context, ownerID string, typ Type) (Wallet, error) {
	return s.repo.Get(ctx, ownerID, typ)
}

// Platform returns the singleton platform wallet, creating it on first use.
func (s *Service) Platform(ctx context.Context) (Wallet, error) {
	w, _, err := s.repo.GetOrCreate(ctx, PlatformOwnerID, TypePlatform, decimal.Zero)
	return w, err
}

// SetReservePercentage updates the reserve fraction for future payments into
// the wallet. Completed transactions keep the percentage in force when they
// were processed.
func (s *Service) SetReservePercentage(ctx context.Context, ownerID string, typ Type, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("reserve percentage must be within [0, 1]")
	}
	return s.repo.SetReservePercentage(ctx, ownerID, typ, pct)
}

// SetAutoSettlement toggles scheduled settlement for a merchant wallet.
func (s *Service) SetAutoSettlement(ctx context.Context, ownerID string, enabled bool, freq SettlementFrequency) error {
	switch freq {
	case SettleDaily, SettleWeekly, SettleBiweekly, SettleMonthly:
	default:
		return fmt.Errorf("unknown settlement frequency %q", freq)
	}
	return s.repo.SetAutoSettlement(ctx, ownerID, TypeMerchant, enabled, freq)
}
