package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[memoryKey]Wallet
}

type memoryKey struct {
	ownerID string
	typ     Type
}

// NewMemoryRepository constructs an in-memory repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[memoryKey]Wallet)}
}

func (r *memoryRepository) GetOrCreate(_ context.Context, ownerID string, typ Type, reservePct decimal.Decimal) (Wallet, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoryKey{ownerID: ownerID, typ: typ}
	if existing, ok := r.storage[key]; ok {
		return existing, false, nil
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:                  uuid.NewString(),
		OwnerID:             ownerID,
		Type:                typ,
		ReservePercentage:   reservePct,
		SettlementFrequency: SettleDaily,
		AutoSettlement:      typ == TypeMerchant,
		NextSettlementAt:    NextSettlement(SettleDaily, now),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	r.storage[key] = w
	return w, true, nil
}

func (r *memoryRepository) Get(_ context.Context, ownerID string, typ Type) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[memoryKey{ownerID: ownerID, typ: typ}]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) ListDueForSettlement(_ context.Context, now time.Time) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []Wallet
	for _, w := range r.storage {
		if w.Type == TypeMerchant && w.AutoSettlement && !w.NextSettlementAt.After(now) {
			due = append(due, w)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextSettlementAt.Before(due[j].NextSettlementAt) })
	return due, nil
}

func (r *memoryRepository) UpdateSettlementSchedule(_ context.Context, ownerID string, typ Type, next time.Time) error {
	return r.mutate(ownerID, typ, func(w *Wallet) {
		w.NextSettlementAt = next.UTC()
	})
}

func (r *memoryRepository) SetReservePercentage(_ context.Context, ownerID string, typ Type, pct decimal.Decimal) error {
	return r.mutate(ownerID, typ, func(w *Wallet) {
		w.ReservePercentage = pct
	})
}

func (r *memoryRepository) SetAutoSettlement(_ context.Context, ownerID string, typ Type, enabled bool, freq SettlementFrequency) error {
	return r.mutate(ownerID, typ, func(w *Wallet) {
		w.AutoSettlement = enabled
		w.SettlementFrequency = freq
	})
}

func (r *memoryRepository) mutate(ownerID string, typ Type, fn func(*Wallet)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey{ownerID: ownerID, typ: typ}
	w, ok := r.storage[key]
	if !ok {
		return ErrNotFound
	}
	fn(&w)
	w.UpdatedAt = time.Now().UTC()
	r.storage[key] = w
	return nil
}
