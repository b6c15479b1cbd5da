package limits

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// STORE - Spending limit persistence
// =============================================================================

// Store persists one limit record per user.
type Store interface {
	// GetLimit returns the stored record, ok=false if absent.
	GetLimit(ctx context.Context, user ledger.Account) (SpendingLimit, bool, error)

	// PutLimit inserts or updates a record.
	PutLimit(ctx context.Context, lim SpendingLimit) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type MemoryStore struct {
	mu     sync.RWMutex
	limits map[ledger.Account]SpendingLimit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{limits: make(map[ledger.Account]SpendingLimit)}
}

func (m *MemoryStore) GetLimit(_ context.Context, user ledger.Account) (SpendingLimit, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lim, ok := m.limits[user]
	return lim, ok, nil
}

func (m *MemoryStore) PutLimit(_ context.Context, lim SpendingLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[lim.User] = lim
	return nil
}
