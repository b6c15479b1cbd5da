package refunds

import (
	"context"
	"errors"
	"sync"

	"github.com/warp/ledger-engine/engine"
)

// =============================================================================
// STORE - Transaction registry and refunded-ID set
// =============================================================================

// ErrDuplicateID is returned when a transaction ID is registered twice.
// IDs are never reused.
var ErrDuplicateID = errors.New("refunds: transaction id already registered")

// Store persists the transaction registry, the refunded-ID membership
// set, and the running refunded total. Membership is permanent: there
// is no unmark.
type Store interface {
	// GetTransaction returns the registered transaction, ok=false if
	// absent.
	GetTransaction(ctx context.Context, id uint64) (Transaction, bool, error)

	// PutTransaction registers a transaction. Fails with ErrDuplicateID
	// if the ID exists.
	PutTransaction(ctx context.Context, tx Transaction) error

	// IsRefunded reports membership in the refunded set.
	IsRefunded(ctx context.Context, id uint64) (bool, error)

	// MarkRefunded adds the ID to the refunded set and the amount to
	// the running total. Idempotent on the set, but callers check
	// IsRefunded first so a double mark never happens in practice.
	MarkRefunded(ctx context.Context, id uint64, amount engine.Amount) error

	// TotalRefunded returns the lifetime refunded amount.
	TotalRefunded(ctx context.Context) (engine.Amount, error)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type MemoryStore struct {
	mu       sync.RWMutex
	txs      map[uint64]Transaction
	refunded map[uint64]struct{}
	total    engine.Amount
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:      make(map[uint64]Transaction),
		refunded: make(map[uint64]struct{}),
	}
}

func (m *MemoryStore) GetTransaction(_ context.Context, id uint64) (Transaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok, nil
}

func (m *MemoryStore) PutTransaction(_ context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.ID]; ok {
		return ErrDuplicateID
	}
	m.txs[tx.ID] = tx
	return nil
}

func (m *MemoryStore) IsRefunded(_ context.Context, id uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.refunded[id]
	return ok, nil
}

func (m *MemoryStore) MarkRefunded(_ context.Context, id uint64, amount engine.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refunded[id]; ok {
		return nil
	}
	m.refunded[id] = struct{}{}
	m.total = m.total.SaturatingAdd(amount)
	return nil
}

func (m *MemoryStore) TotalRefunded(_ context.Context) (engine.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, nil
}
