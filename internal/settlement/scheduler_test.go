package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/ledger"
	"github.com/vizion-gateway/vizion_gateway/internal/logging"
	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/notification"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// flakyStore fails balance reads for one owner, leaving the rest intact.
type flakyStore struct {
	ledger.Store
	failOwner string
}

var errStoreDown = errors.New("store down")

func (s *flakyStore) Balances(ctx context.Context, ownerID string, typ wallet.Type) (map[money.Currency]money.Balance, error) {
	if ownerID == s.failOwner {
		return nil, errStoreDown
	}
	return s.Store.Balances(ctx, ownerID, typ)
}

func makeDue(t *testing.T, repo wallet.Repository, ownerID string) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := repo.GetOrCreate(ctx, ownerID, wallet.TypeMerchant, decimal.Zero); err != nil {
		t.Fatalf("create wallet %s: %v", ownerID, err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	if err := repo.UpdateSettlementSchedule(ctx, ownerID, wallet.TypeMerchant, past); err != nil {
		t.Fatalf("backdate schedule for %s: %v", ownerID, err)
	}
}

func TestSweepSettlesDueWallets(t *testing.T) {
	ctx := context.Background()
	wallets := wallet.NewMemoryRepository()
	store := ledger.NewInMemory()
	engine := ledger.NewEngine(wallets, store, notification.NewLoggerNotifier(nil), money.NewStaticRates(), ledger.DefaultFees())

	makeDue(t, wallets, "merchant-due")
	ledger.SeedBalance(store, "merchant-due", wallet.TypeMerchant, money.XCD, decimal.NewFromInt(400), decimal.Zero)

	// Not due: schedule stays in the future.
	if _, _, err := wallets.GetOrCreate(ctx, "merchant-later", wallet.TypeMerchant, decimal.Zero); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(store, "merchant-later", wallet.TypeMerchant, money.XCD, decimal.NewFromInt(150), decimal.Zero)

	NewScheduler(engine, wallets, logging.Discard(), 0).Sweep(ctx)

	due, err := store.Balance(ctx, "merchant-due", wallet.TypeMerchant, money.XCD)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !due.Available.IsZero() {
		t.Fatalf("due wallet not drained: %s", due.Available)
	}

	later, err := store.Balance(ctx, "merchant-later", wallet.TypeMerchant, money.XCD)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !later.Available.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("wallet not due was drained: %s", later.Available)
	}

	w, err := wallets.Get(ctx, "merchant-due", wallet.TypeMerchant)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !w.NextSettlementAt.After(time.Now().UTC().Add(-time.Second)) {
		t.Fatalf("schedule not advanced: %s", w.NextSettlementAt)
	}
}

func TestSweepContinuesPastFailedWallet(t *testing.T) {
	ctx := context.Background()
	wallets := wallet.NewMemoryRepository()
	backing := ledger.NewInMemory()
	store := &flakyStore{Store: backing, failOwner: "merchant-broken"}
	engine := ledger.NewEngine(wallets, store, notification.NewLoggerNotifier(nil), money.NewStaticRates(), ledger.DefaultFees())

	makeDue(t, wallets, "merchant-broken")
	makeDue(t, wallets, "merchant-ok")
	ledger.SeedBalance(backing, "merchant-ok", wallet.TypeMerchant, money.USD, decimal.NewFromInt(80), decimal.Zero)

	NewScheduler(engine, wallets, logging.Discard(), 0).Sweep(ctx)

	ok, err := backing.Balance(ctx, "merchant-ok", wallet.TypeMerchant, money.USD)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !ok.Available.IsZero() {
		t.Fatalf("healthy wallet not settled after sibling failure: %s", ok.Available)
	}
}

func TestStartStop(t *testing.T) {
	wallets := wallet.NewMemoryRepository()
	store := ledger.NewInMemory()
	engine := ledger.NewEngine(wallets, store, notification.NewLoggerNotifier(nil), money.NewStaticRates(), ledger.DefaultFees())

	s := NewScheduler(engine, wallets, logging.Discard(), 10*time.Millisecond)
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
