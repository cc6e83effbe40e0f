package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/notification"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// maxApplyAttempts bounds internal retries of conflicted applies before the
// conflict surfaces to the caller as a transient failure.
const maxApplyAttempts = 3

// FeeSchedule holds the fractions charged on each payment's gross amount.
type FeeSchedule struct {
	TransactionPct decimal.Decimal
	PlatformPct    decimal.Decimal
}

// DefaultFees is the platform's standard schedule: 2.5% transaction fee plus
// a 1% platform fee.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		TransactionPct: decimal.RequireFromString("0.025"),
		PlatformPct:    decimal.RequireFromString("0.01"),
	}
}

// Engine orchestrates all balance mutations. It exclusively owns wallet
// balance transitions and the transaction log; everything else (withdrawal
// workflow, settlement scheduler, HTTP layer) goes through it.
type Engine struct {
	wallets  wallet.Repository
	store    Store
	notifier notification.Notifier
	rates    money.RateProvider
	fees     FeeSchedule
	clock    func() time.Time

	// Serializes settlement per merchant so the scheduler sweep and manual
	// settlement can never double-drain the same wallet.
	settleMu    sync.Mutex
	settleLocks map[string]*sync.Mutex
}

// NewEngine constructs the ledger engine. notifier and rates may be nil, in
// which case events are dropped and currency conversion is unavailable.
func NewEngine(wallets wallet.Repository, store Store, notifier notification.Notifier, rates money.RateProvider, fees FeeSchedule) *Engine {
	return &Engine{
		wallets:     wallets,
		store:       store,
		notifier:    notifier,
		rates:       rates,
		fees:        fees,
		clock:       time.Now,
		settleLocks: make(map[string]*sync.Mutex),
	}
}

// Store exposes the engine's balance store for read-side callers.
func (e *Engine) Store() Store {
	return e.store
}

// Wallets exposes the wallet repository for collaborating workflows.
func (e *Engine) Wallets() wallet.Repository {
	return e.wallets
}

// PaymentInput captures a merchant payment moving funds between wallets.
type PaymentInput struct {
	Amount      decimal.Decimal
	Currency    money.Currency
	Source      Party
	Destination Party
	Reference   string
	Description string
	Metadata    map[string]string
}

// ProcessPayment debits the source, credits the destination net of fees and
// reserve, and credits fees to the platform wallet, all atomically.
//
// Fee math: fee = amount x transaction pct, platformFee = amount x platform
// pct, net = amount - fee - platformFee, reserve = net x destination reserve
// percentage (snapshotted from the destination wallet now). The destination
// receives net-reserve available and reserve held, the platform receives
// fee+platformFee.
func (e *Engine) ProcessPayment(ctx context.Context, input PaymentInput) (Transaction, error) {
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	destType, destHasWallet := input.Destination.WalletType()
	if !destHasWallet {
		return Transaction{}, ErrInvalidDestination
	}
	destWallet, err := e.wallets.Get(ctx, input.Destination.ID, destType)
	if err != nil {
		return Transaction{}, err
	}

	// Fee revenue lands in the platform wallet, created lazily on first use.
	if _, _, err := e.wallets.GetOrCreate(ctx, wallet.PlatformOwnerID, wallet.TypePlatform, decimal.Zero); err != nil {
		return Transaction{}, err
	}

	fee := input.Amount.Mul(e.fees.TransactionPct)
	platformFee := input.Amount.Mul(e.fees.PlatformPct)
	net := input.Amount.Sub(fee).Sub(platformFee)
	reserve := net.Mul(destWallet.ReservePercentage)

	txn := Transaction{
		ID:            uuid.NewString(),
		Type:          TypePayment,
		Amount:        input.Amount,
		Currency:      input.Currency,
		Source:        input.Source,
		Destination:   input.Destination,
		Fee:           fee,
		PlatformFee:   platformFee,
		ReserveAmount: reserve,
		NetAmount:     net,
		Reference:     input.Reference,
		Description:   input.Description,
		Metadata:      input.Metadata,
		Status:        StatusPending,
		WalletOwnerID: input.Destination.ID,
		WalletType:    destType,
		CreatedAt:     e.clock().UTC(),
	}

	postings := []Posting{
		{OwnerID: input.Destination.ID, WalletType: destType, Currency: input.Currency,
			Available: net.Sub(reserve), Reserved: reserve},
		{OwnerID: wallet.PlatformOwnerID, WalletType: wallet.TypePlatform, Currency: input.Currency,
			Available: fee.Add(platformFee)},
	}

	srcType, srcHasWallet := input.Source.WalletType()
	if srcHasWallet {
		postings = append(postings, Posting{
			OwnerID: input.Source.ID, WalletType: srcType, Currency: input.Currency,
			Available: input.Amount.Neg(),
		})
	}

	completed, err := e.applyWithRetry(ctx, txn, postings)
	if err != nil {
		return Transaction{}, err
	}

	// Symmetric notification: every wallet the payment touched gets an event.
	if srcHasWallet {
		e.notify(ctx, completed, input.Source.ID, srcType, input.Amount.Neg())
	}
	e.notify(ctx, completed, input.Destination.ID, destType, net)
	e.notify(ctx, completed, wallet.PlatformOwnerID, wallet.TypePlatform, fee.Add(platformFee))

	return completed, nil
}

// DepositInput captures an external top-up into a wallet.
type DepositInput struct {
	Amount      decimal.Decimal
	Currency    money.Currency
	Destination Party
	Source      Party
	Reference   string
	Description string
	Metadata    map[string]string
}

// ProcessDeposit credits the full amount to the destination's available
// balance. No fees or reserve apply. The destination wallet is created
// lazily on first deposit.
func (e *Engine) ProcessDeposit(ctx context.Context, input DepositInput) (Transaction, error) {
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if input.Destination.Type != PartyUser && input.Destination.Type != PartyMerchant {
		return Transaction{}, ErrInvalidDestination
	}
	destType, _ := input.Destination.WalletType()

	if _, _, err := e.wallets.GetOrCreate(ctx, input.Destination.ID, destType, decimal.Zero); err != nil {
		return Transaction{}, err
	}

	source := input.Source
	if source == (Party{}) {
		source = Party{Type: PartyExternal, ID: "external"}
	}

	txn := Transaction{
		ID:            uuid.NewString(),
		Type:          TypeDeposit,
		Amount:        input.Amount,
		Currency:      input.Currency,
		Source:        source,
		Destination:   input.Destination,
		Reference:     input.Reference,
		Description:   input.Description,
		Metadata:      input.Metadata,
		Status:        StatusPending,
		WalletOwnerID: input.Destination.ID,
		WalletType:    destType,
		CreatedAt:     e.clock().UTC(),
	}

	completed, err := e.applyWithRetry(ctx, txn, []Posting{
		{OwnerID: input.Destination.ID, WalletType: destType, Currency: input.Currency, Available: input.Amount},
	})
	if err != nil {
		return Transaction{}, err
	}

	e.notify(ctx, completed, input.Destination.ID, destType, input.Amount)
	return completed, nil
}

// WithdrawInput debits funds out of a wallet toward an external destination.
// The withdrawal request workflow is the only caller for user/merchant
// payouts; settlement uses its own entry point.
type WithdrawInput struct {
	OwnerID     string
	WalletType  wallet.Type
	Amount      decimal.Decimal
	Currency    money.Currency
	Destination Party
	Reference   string
	Description string
	Metadata    map[string]string
}

// Withdraw atomically debits the wallet's available balance and records a
// completed withdrawal transaction. Available balance is re-validated inside
// the store apply, so a concurrent spend can never drive it negative.
func (e *Engine) Withdraw(ctx context.Context, input WithdrawInput) (Transaction, error) {
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	w, err := e.wallets.Get(ctx, input.OwnerID, input.WalletType)
	if err != nil {
		return Transaction{}, err
	}

	destination := input.Destination
	if destination == (Party{}) {
		destination = Party{Type: PartyBank, ID: "bank"}
	}

	txn := Transaction{
		ID:            uuid.NewString(),
		Type:          TypeWithdrawal,
		Amount:        input.Amount,
		Currency:      input.Currency,
		Source:        partyForWallet(w),
		Destination:   destination,
		Reference:     input.Reference,
		Description:   input.Description,
		Metadata:      input.Metadata,
		Status:        StatusPending,
		WalletOwnerID: input.OwnerID,
		WalletType:    input.WalletType,
		CreatedAt:     e.clock().UTC(),
	}

	completed, err := e.applyWithRetry(ctx, txn, []Posting{
		{OwnerID: input.OwnerID, WalletType: input.WalletType, Currency: input.Currency, Available: input.Amount.Neg()},
	})
	if err != nil {
		return Transaction{}, err
	}

	e.notify(ctx, completed, input.OwnerID, input.WalletType, input.Amount.Neg())
	return completed, nil
}

// ProcessSettlement drains every positive available currency balance of the
// merchant's wallet to the bank, one settlement transaction per currency,
// then advances the next settlement date. Returns the first transaction
// created, or nil when nothing was due to drain. Settlement for one merchant
// is serialized so concurrent sweeps cannot double-drain.
func (e *Engine) ProcessSettlement(ctx context.Context, merchantID string) (*Transaction, error) {
	lock := e.settlementLock(merchantID)
	lock.Lock()
	defer lock.Unlock()

	w, err := e.wallets.Get(ctx, merchantID, wallet.TypeMerchant)
	if err != nil {
		return nil, err
	}

	balances, err := e.store.Balances(ctx, merchantID, wallet.TypeMerchant)
	if err != nil {
		return nil, err
	}

	var first *Transaction
	for _, currency := range sortedCurrencies(balances) {
		available := balances[currency].Available
		if !available.IsPositive() {
			continue
		}

		txn := Transaction{
			ID:            uuid.NewString(),
			Type:          TypeSettlement,
			Amount:        available,
			Currency:      currency,
			Source:        Party{Type: PartyMerchant, ID: merchantID},
			Destination:   Party{Type: PartyBank, ID: "bank"},
			Description:   "scheduled settlement",
			Status:        StatusPending,
			WalletOwnerID: merchantID,
			WalletType:    wallet.TypeMerchant,
			CreatedAt:     e.clock().UTC(),
		}

		completed, err := e.applyWithRetry(ctx, txn, []Posting{
			{OwnerID: merchantID, WalletType: wallet.TypeMerchant, Currency: currency, Available: available.Neg()},
		})
		if err != nil {
			return first, err
		}

		e.notify(ctx, completed, merchantID, wallet.TypeMerchant, available.Neg())
		if first == nil {
			c := completed
			first = &c
		}
	}

	if first != nil {
		next := wallet.NextSettlement(w.SettlementFrequency, e.clock().UTC())
		if err := e.wallets.UpdateSettlementSchedule(ctx, merchantID, wallet.TypeMerchant, next); err != nil {
			return first, err
		}
	}
	return first, nil
}

// ReleaseReserve moves amount from the merchant wallet's reserved balance
// back to available, recording a reserve release from the platform.
func (e *Engine) ReleaseReserve(ctx context.Context, merchantID string, amount decimal.Decimal, currency money.Currency, reference string) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if _, err := e.wallets.Get(ctx, merchantID, wallet.TypeMerchant); err != nil {
		return Transaction{}, err
	}

	txn := Transaction{
		ID:            uuid.NewString(),
		Type:          TypeReserveRelease,
		Amount:        amount,
		Currency:      currency,
		Source:        PlatformParty,
		Destination:   Party{Type: PartyMerchant, ID: merchantID},
		Reference:     reference,
		Description:   "reserve release",
		Status:        StatusPending,
		WalletOwnerID: merchantID,
		WalletType:    wallet.TypeMerchant,
		CreatedAt:     e.clock().UTC(),
	}

	completed, err := e.applyWithRetry(ctx, txn, []Posting{
		{OwnerID: merchantID, WalletType: wallet.TypeMerchant, Currency: currency,
			Available: amount, Reserved: amount.Neg()},
	})
	if err != nil {
		return Transaction{}, err
	}

	e.notify(ctx, completed, merchantID, wallet.TypeMerchant, amount)
	return completed, nil
}

// ConvertCurrency translates an amount between currencies using the
// configured rate provider. Identity when the currencies match.
func (e *Engine) ConvertCurrency(ctx context.Context, amount decimal.Decimal, from, to money.Currency) (decimal.Decimal, decimal.Decimal, error) {
	if from == to {
		return amount, decimal.NewFromInt(1), nil
	}
	if e.rates == nil {
		return decimal.Decimal{}, decimal.Decimal{}, money.ErrRateUnavailable
	}
	return money.Convert(ctx, e.rates, amount, from, to)
}

func (e *Engine) applyWithRetry(ctx context.Context, txn Transaction, postings []Posting) (Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		completed, err := e.store.Apply(ctx, txn, postings)
		if err == nil {
			return completed, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Transaction{}, err
		}
		lastErr = err
	}
	return Transaction{}, lastErr
}

func (e *Engine) notify(ctx context.Context, txn Transaction, ownerID string, typ wallet.Type, delta decimal.Decimal) {
	if e.notifier == nil {
		return
	}
	// Fire-and-forget: subscriber failures never fail the ledger operation.
	_ = e.notifier.Notify(ctx, notification.BalanceChange{
		OwnerID:         ownerID,
		WalletType:      string(typ),
		Currency:        string(txn.Currency),
		Delta:           delta,
		TransactionType: string(txn.Type),
		TransactionID:   txn.ID,
		At:              e.clock().UTC(),
	})
}

func (e *Engine) settlementLock(merchantID string) *sync.Mutex {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()
	lock, ok := e.settleLocks[merchantID]
	if !ok {
		lock = &sync.Mutex{}
		e.settleLocks[merchantID] = lock
	}
	return lock
}

func partyForWallet(w wallet.Wallet) Party {
	switch w.Type {
	case wallet.TypeMerchant:
		return Party{Type: PartyMerchant, ID: w.OwnerID}
	case wallet.TypePlatform:
		return Party{Type: PartyPlatform, ID: w.OwnerID}
	default:
		return Party{Type: PartyUser, ID: w.OwnerID}
	}
}

func sortedCurrencies(balances map[money.Currency]money.Balance) []money.Currency {
	out := make([]money.Currency, 0, len(balances))
	for currency := range balances {
		out = append(out, currency)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
