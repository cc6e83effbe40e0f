package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// SeedBalance is a test helper that sets a wallet position directly when
// using the in-memory store.
func SeedBalance(st Store, ownerID string, typ wallet.Type, currency money.Currency, available, reserved decimal.Decimal) {
	if mem, ok := st.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[balanceKey{ownerID: ownerID, typ: typ, currency: currency}] = money.Balance{
			Available: available,
			Reserved:  reserved,
		}
	}
}
