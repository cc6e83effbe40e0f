package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

type balanceKey struct {
	ownerID  string
	typ      wallet.Type
	currency money.Currency
}

type inMemoryStore struct {
	mu           sync.RWMutex
	balances     map[balanceKey]money.Balance
	transactions map[string]Transaction
	order        []string
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and dev mode. The single mutex makes every Apply trivially atomic.
func NewInMemory() Store {
	return &inMemoryStore{
		balances:     make(map[balanceKey]money.Balance),
		transactions: make(map[string]Transaction),
	}
}

func (s *inMemoryStore) Balances(_ context.Context, ownerID string, typ wallet.Type) (map[money.Currency]money.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[money.Currency]money.Balance)
	for key, bal := range s.balances {
		if key.ownerID == ownerID && key.typ == typ {
			out[key.currency] = bal
		}
	}
	return out, nil
}

func (s *inMemoryStore) Balance(_ context.Context, ownerID string, typ wallet.Type, currency money.Currency) (money.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[balanceKey{ownerID: ownerID, typ: typ, currency: currency}], nil
}

func (s *inMemoryStore) Apply(_ context.Context, tx Transaction, postings []Posting) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every posting before mutating anything so a failure leaves
	// all balances untouched.
	next := make(map[balanceKey]money.Balance, len(postings))
	for _, p := range postings {
		key := balanceKey{ownerID: p.OwnerID, typ: p.WalletType, currency: p.Currency}
		bal, staged := next[key]
		if !staged {
			bal = s.balances[key]
			if bal.Available.IsZero() && bal.Reserved.IsZero() {
				bal = money.Zero()
			}
		}
		bal.Available = bal.Available.Add(p.Available)
		bal.Reserved = bal.Reserved.Add(p.Reserved)
		if bal.Available.IsNegative() {
			return Transaction{}, ErrInsufficientFunds
		}
		if bal.Reserved.IsNegative() {
			return Transaction{}, ErrInsufficientReserve
		}
		next[key] = bal
	}

	for key, bal := range next {
		s.balances[key] = bal
	}

	tx.Status = StatusCompleted
	tx.CompletedAt = time.Now().UTC()
	s.transactions[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	return tx, nil
}

func (s *inMemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *inMemoryStore) ListTransactions(_ context.Context, ownerID string, typ wallet.Type, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for i := len(s.order) - 1; i >= 0; i-- {
		tx := s.transactions[s.order[i]]
		if tx.WalletOwnerID != ownerID || tx.WalletType != typ {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
