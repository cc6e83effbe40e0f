package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTxn(typ Type, currency money.Currency, ownerID string, walletType wallet.Type) Transaction {
	return Transaction{
		ID:            uuid.NewString(),
		Type:          typ,
		Currency:      currency,
		Status:        StatusPending,
		WalletOwnerID: ownerID,
		WalletType:    walletType,
	}
}

func TestApplyMovesBalancesAtomically(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	SeedBalance(st, "a", wallet.TypeMerchant, money.USD, dec("100"), decimal.Zero)

	completed, err := st.Apply(ctx, testTxn(TypePayment, money.USD, "b", wallet.TypeMerchant), []Posting{
		{OwnerID: "a", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("-40")},
		{OwnerID: "b", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("40")},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}
	if completed.CompletedAt.IsZero() {
		t.Fatal("completed timestamp not stamped")
	}

	balA, _ := st.Balance(ctx, "a", wallet.TypeMerchant, money.USD)
	balB, _ := st.Balance(ctx, "b", wallet.TypeMerchant, money.USD)
	if !balA.Available.Equal(dec("60")) || !balB.Available.Equal(dec("40")) {
		t.Fatalf("unexpected balances: a=%s b=%s", balA.Available, balB.Available)
	}
}

func TestApplyRejectsNegativeAvailable(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	SeedBalance(st, "a", wallet.TypeMerchant, money.USD, dec("30"), decimal.Zero)

	_, err := st.Apply(ctx, testTxn(TypePayment, money.USD, "b", wallet.TypeMerchant), []Posting{
		{OwnerID: "a", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("-40")},
		{OwnerID: "b", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("40")},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The failed apply must leave every balance untouched.
	balA, _ := st.Balance(ctx, "a", wallet.TypeMerchant, money.USD)
	balB, _ := st.Balance(ctx, "b", wallet.TypeMerchant, money.USD)
	if !balA.Available.Equal(dec("30")) || !balB.Available.IsZero() {
		t.Fatalf("failed apply mutated balances: a=%s b=%s", balA.Available, balB.Available)
	}
}

func TestApplyRejectsNegativeReserve(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	SeedBalance(st, "m", wallet.TypeMerchant, money.USD, decimal.Zero, dec("50"))

	_, err := st.Apply(ctx, testTxn(TypeReserveRelease, money.USD, "m", wallet.TypeMerchant), []Posting{
		{OwnerID: "m", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("80"), Reserved: dec("-80")},
	})
	if !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected ErrInsufficientReserve, got %v", err)
	}
}

func TestGetAndListTransactions(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	SeedBalance(st, "m", wallet.TypeMerchant, money.USD, dec("100"), decimal.Zero)

	var lastID string
	for i := 0; i < 3; i++ {
		txn := testTxn(TypeDeposit, money.USD, "m", wallet.TypeMerchant)
		txn.Description = fmt.Sprintf("deposit %d", i)
		completed, err := st.Apply(ctx, txn, []Posting{
			{OwnerID: "m", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("10")},
		})
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		lastID = completed.ID
	}

	got, err := st.GetTransaction(ctx, lastID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.Description != "deposit 2" {
		t.Fatalf("unexpected transaction: %+v", got)
	}

	list, err := st.ListTransactions(ctx, "m", wallet.TypeMerchant, 2)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(list) != 2 || list[0].ID != lastID {
		t.Fatalf("expected newest-first page of 2, got %d entries", len(list))
	}

	if _, err := st.GetTransaction(ctx, uuid.NewString()); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestConcurrentAppliesConserveMoney(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	SeedBalance(st, "a", wallet.TypeMerchant, money.USD, dec("100000"), decimal.Zero)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Apply(ctx, testTxn(TypePayment, money.USD, "b", wallet.TypeMerchant), []Posting{
				{OwnerID: "a", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("-500")},
				{OwnerID: "b", WalletType: wallet.TypeMerchant, Currency: money.USD, Available: dec("500")},
			})
			if err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	balA, _ := st.Balance(ctx, "a", wallet.TypeMerchant, money.USD)
	balB, _ := st.Balance(ctx, "b", wallet.TypeMerchant, money.USD)
	if total := balA.Available.Add(balB.Available); !total.Equal(dec("100000")) {
		t.Fatalf("money not conserved, total=%s", total)
	}
}
