package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/notification"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.BalanceChange
}

func (r *recordingNotifier) Notify(_ context.Context, change notification.BalanceChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, change)
	return nil
}

func (r *recordingNotifier) byOwner(ownerID string) []notification.BalanceChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.BalanceChange
	for _, e := range r.events {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, wallet.Repository, Store, *recordingNotifier) {
	t.Helper()
	wallets := wallet.NewMemoryRepository()
	store := NewInMemory()
	notifier := &recordingNotifier{}
	engine := NewEngine(wallets, store, notifier, money.NewStaticRates(), DefaultFees())
	return engine, wallets, store, notifier
}

func mustCreateWallet(t *testing.T, wallets wallet.Repository, ownerID string, typ wallet.Type, reservePct string) {
	t.Helper()
	if _, _, err := wallets.GetOrCreate(context.Background(), ownerID, typ, dec(reservePct)); err != nil {
		t.Fatalf("create wallet %s/%s: %v", ownerID, typ, err)
	}
}

func TestProcessPaymentFeeAndReserveMath(t *testing.T) {
	engine, wallets, store, notifier := newTestEngine(t)
	ctx := context.Background()

	mustCreateWallet(t, wallets, "merchantA", wallet.TypeMerchant, "0")
	mustCreateWallet(t, wallets, "merchantB", wallet.TypeMerchant, "0.10")
	SeedBalance(store, "merchantA", wallet.TypeMerchant, money.USD, dec("1000"), decimal.Zero)

	txn, err := engine.ProcessPayment(ctx, PaymentInput{
		Amount:      dec("1000"),
		Currency:    money.USD,
		Source:      Party{Type: PartyMerchant, ID: "merchantA"},
		Destination: Party{Type: PartyMerchant, ID: "merchantB"},
		Reference:   "inv-1001",
	})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}

	if txn.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", txn.Status)
	}
	if !txn.Fee.Equal(dec("25")) {
		t.Fatalf("fee: expected 25, got %s", txn.Fee)
	}
	if !txn.PlatformFee.Equal(dec("10")) {
		t.Fatalf("platform fee: expected 10, got %s", txn.PlatformFee)
	}
	if !txn.NetAmount.Equal(dec("965")) {
		t.Fatalf("net: expected 965, got %s", txn.NetAmount)
	}
	if !txn.ReserveAmount.Equal(dec("96.5")) {
		t.Fatalf("reserve: expected 96.5, got %s", txn.ReserveAmount)
	}

	// Conservation: gross = fee + platformFee + reserve + (net - reserve).
	recombined := txn.Fee.Add(txn.PlatformFee).Add(txn.NetAmount)
	if !recombined.Equal(txn.Amount) {
		t.Fatalf("amount not conserved: %s != %s", recombined, txn.Amount)
	}

	src, _ := store.Balance(ctx, "merchantA", wallet.TypeMerchant, money.USD)
	dst, _ := store.Balance(ctx, "merchantB", wallet.TypeMerchant, money.USD)
	platform, _ := store.Balance(ctx, wallet.PlatformOwnerID, wallet.TypePlatform, money.USD)

	if !src.Available.IsZero() {
		t.Fatalf("source available: expected 0, got %s", src.Available)
	}
	if !dst.Available.Equal(dec("868.5")) {
		t.Fatalf("destination available: expected 868.5, got %s", dst.Available)
	}
	if !dst.Reserved.Equal(dec("96.5")) {
		t.Fatalf("destination reserved: expected 96.5, got %s", dst.Reserved)
	}
	if !platform.Available.Equal(dec("35")) {
		t.Fatalf("platform available: expected 35, got %s", platform.Available)
	}

	// Symmetric notification: source, destination and platform each get one.
	for _, owner := range []string{"merchantA", "merchantB", wallet.PlatformOwnerID} {
		if events := notifier.byOwner(owner); len(events) != 1 {
			t.Fatalf("expected 1 event for %s, got %d", owner, len(events))
		}
	}
}

func TestProcessPaymentValidation(t *testing.T) {
	engine, wallets, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateWallet(t, wallets, "merchantB", wallet.TypeMerchant, "0.10")

	if _, err := engine.ProcessPayment(ctx, PaymentInput{
		Amount:      dec("-5"),
		Currency:    money.USD,
		Source:      Party{Type: PartyUser, ID: "u1"},
		Destination: Party{Type: PartyMerchant, ID: "merchantB"},
	}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	if _, err := engine.ProcessPayment(ctx, PaymentInput{
		Amount:      dec("10"),
		Currency:    money.USD,
		Source:      Party{Type: PartyUser, ID: "u1"},
		Destination: Party{Type: PartyMerchant, ID: "ghost"},
	}); !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}

	if _, err := engine.ProcessPayment(ctx, PaymentInput{
		Amount:      dec("10"),
		Currency:    money.USD,
		Source:      Party{Type: PartyUser, ID: "u1"},
		Destination: Party{Type: PartyBank, ID: "bank"},
	}); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}

	// Source with no funds fails without touching any balance.
	mustCreateWallet(t, wallets, "u1", wallet.TypeUser, "0")
	if _, err := engine.ProcessPayment(ctx, PaymentInput{
		Amount:      dec("10"),
		Currency:    money.USD,
		Source:      Party{Type: PartyUser, ID: "u1"},
		Destination: Party{Type: PartyMerchant, ID: "merchantB"},
	}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	dst, _ := store.Balance(ctx, "merchantB", wallet.TypeMerchant, money.USD)
	if !dst.Available.IsZero() || !dst.Reserved.IsZero() {
		t.Fatalf("failed payment mutated destination: %+v", dst)
	}
}

func TestConcurrentPaymentsNeverOverdraw(t *testing.T) {
	engine, wallets, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateWallet(t, wallets, "merchantA", wallet.TypeMerchant, "0")
	mustCreateWallet(t, wallets, "merchantB", wallet.TypeMerchant, "0.10")
	SeedBalance(store, "merchantA", wallet.TypeMerchant, money.USD, dec("1000"), decimal.Zero)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ProcessPayment(ctx, PaymentInput{
				Amount:      dec("700"),
				Currency:    money.USD,
				Source:      Party{Type: PartyMerchant, ID: "merchantA"},
				Destination: Party{Type: PartyMerchant, ID: "merchantB"},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one rejection, got %d/%d", succeeded, insufficient)
	}

	src, _ := store.Balance(ctx, "merchantA", wallet.TypeMerchant, money.USD)
	if src.Available.IsNegative() {
		t.Fatalf("source overdrawn: %s", src.Available)
	}
}

func TestProcessDepositCreditsFullAmount(t *testing.T) {
	engine, _, store, notifier := newTestEngine(t)
	ctx := context.Background()

	txn, err := engine.ProcessDeposit(ctx, DepositInput{
		Amount:      dec("250.75"),
		Currency:    money.XCD,
		Destination: Party{Type: PartyUser, ID: "user-9"},
	})
	if err != nil {
		t.Fatalf("process deposit: %v", err)
	}
	if txn.Type != TypeDeposit || txn.Source.Type != PartyExternal {
		t.Fatalf("unexpected transaction: %+v", txn)
	}

	bal, _ := store.Balance(ctx, "user-9", wallet.TypeUser, money.XCD)
	if !bal.Available.Equal(dec("250.75")) {
		t.Fatalf("expected 250.75 available, got %s", bal.Available)
	}
	if events := notifier.byOwner("user-9"); len(events) != 1 || !events[0].Delta.Equal(dec("250.75")) {
		t.Fatalf("unexpected events: %+v", events)
	}

	if _, err := engine.ProcessDeposit(ctx, DepositInput{
		Amount:      dec("10"),
		Currency:    money.XCD,
		Destination: Party{Type: PartyPlatform, ID: "platform"},
	}); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}
}

func TestWithdrawDebitsAvailable(t *testing.T) {
	engine, wallets, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateWallet(t, wallets, "merchantA", wallet.TypeMerchant, "0")
	SeedBalance(store, "merchantA", wallet.TypeMerchant, money.USD, dec("600"), dec("40"))

	txn, err := engine.Withdraw(ctx, WithdrawInput{
		OwnerID:    "merchantA",
		WalletType: wallet.TypeMerchant,
		Amount:     dec("500"),
		Currency:   money.USD,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if txn.Destination.Type != PartyBank {
		t.Fatalf("expected bank destination, got %+v", txn.Destination)
	}

	bal, _ := store.Balance(ctx, "merchantA", wallet.TypeMerchant, money.USD)
	if !bal.Available.Equal(dec("100")) {
		t.Fatalf("expected available 100, got %s", bal.Available)
	}
	// Reserved funds are untouchable by withdrawals.
	if !bal.Reserved.Equal(dec("40")) {
		t.Fatalf("reserved changed: %s", bal.Reserved)
	}

	if _, err := engine.Withdraw(ctx, WithdrawInput{
		OwnerID:    "merchantA",
		WalletType: wallet.TypeMerchant,
		Amount:     dec("120"),
		Currency:   money.USD,
	}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestProcessSettlementDrainsEveryCurrencyOnce(t *testing.T) {
	engine, wallets, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateWallet(t, wallets, "merchantA", wallet.TypeMerchant, "0.10")
	SeedBalance(store, "merchantA", wallet.TypeMerchant, money.USD, dec("500"), dec("50"))
	SeedBalance(store, "merchantA", wallet.TypeMerchant, money.XCD, dec("300"), decimal.Zero)

	before, err := wallets.Get(ctx, "merchantA", wallet.TypeMerchant)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}

	first, err := engine.ProcessSettlement(ctx, "merchantA")
	if err != nil {
		t.Fatalf("process settlement: %v", err)
	}
	if first == nil || first.Type != TypeSettlement {
		t.Fatalf("expected settlement transaction, got %+v", first)
	}

	usd, _ := store.Balance(ctx, "merchantA", wallet.TypeMerchant, money.USD)
	xcd, _ := store.Balance(ctx, "merchantA", wallet.TypeMerchant, money.XCD)
	if !usd.Available.IsZero() || !xcd.Available.IsZero() {
		t.Fatalf("available not drained: USD=%s XCD=%s", usd.Available, xcd.Available)
	}
	// Reserve is never swept by settlement.
	if !usd.Reserved.Equal(dec("50")) {
		t.Fatalf("reserved swept: %s", usd.Reserved)
	}

	after, err := wallets.Get(ctx, "merchantA", wallet.TypeMerchant)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !after.NextSettlementAt.After(before.NextSettlementAt) {
		t.Fatalf("next settlement date not advanced: %s", after.NextSettlementAt)
	}

	// With no intervening deposits the second sweep finds nothing.
	second, err := engine.ProcessSettlement(ctx, "merchantA")
	if err != nil {
		t.Fatalf("second settlement: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no transaction on empty wallet, got %+v", second)
	}
}

func TestReleaseReserve(t *testing.T) {
	engine, wallets, store, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateWallet(t, wallets, "merchantB", wallet.TypeMerchant, "0.10")
	SeedBalance(store, "merchantB", wallet.TypeMerchant, money.USD, decimal.Zero, dec("96.5"))

	txn, err := engine.ReleaseReserve(ctx, "merchantB", dec("50"), money.USD, "")
	if err != nil {
		t.Fatalf("release reserve: %v", err)
	}
	if txn.Type != TypeReserveRelease || txn.Source != PlatformParty {
		t.Fatalf("unexpected transaction: %+v", txn)
	}

	bal, _ := store.Balance(ctx, "merchantB", wallet.TypeMerchant, money.USD)
	if !bal.Available.Equal(dec("50")) || !bal.Reserved.Equal(dec("46.5")) {
		t.Fatalf("unexpected balance after release: %+v", bal)
	}

	if _, err := engine.ReleaseReserve(ctx, "merchantB", dec("100"), money.USD, ""); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
}

func TestConvertCurrency(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	converted, rate, err := engine.ConvertCurrency(ctx, dec("100"), money.XCD, money.USD)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !converted.Equal(dec("37")) || !rate.Equal(dec("0.37")) {
		t.Fatalf("expected (37, 0.37), got (%s, %s)", converted, rate)
	}

	if _, _, err := engine.ConvertCurrency(ctx, dec("100"), money.XCD, money.Currency("JPY")); !errors.Is(err, money.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}
