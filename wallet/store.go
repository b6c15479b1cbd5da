package wallet

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// STORE - Balance record persistence
// =============================================================================

// Store persists per-user, per-currency balances.
type Store interface {
	// GetBalance returns the stored record, ok=false if absent.
	GetBalance(ctx context.Context, user ledger.Account, currency string) (Balance, bool, error)

	// PutBalance inserts or updates a record.
	PutBalance(ctx context.Context, bal Balance) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type balanceKey struct {
	user     ledger.Account
	currency string
}

type MemoryStore struct {
	mu       sync.RWMutex
	balances map[balanceKey]Balance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[balanceKey]Balance)}
}

func (m *MemoryStore) GetBalance(_ context.Context, user ledger.Account, currency string) (Balance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bal, ok := m.balances[balanceKey{user, currency}]
	return bal, ok, nil
}

func (m *MemoryStore) PutBalance(_ context.Context, bal Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{bal.User, bal.Currency}] = bal
	return nil
}
