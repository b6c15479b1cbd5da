package ledger

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/engine"
)

// =============================================================================
// MEMORY LEDGER - In-process accounts (tests/dev)
// =============================================================================

// Memory is an in-process Ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[Account]engine.Amount
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[Account]engine.Amount)}
}

// Mint credits an account out of thin air. Test/dev setup only.
func (m *Memory) Mint(owner Account, amount engine.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] = m.balances[owner].SaturatingAdd(amount)
}

func (m *Memory) Balance(_ context.Context, owner Account) (engine.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[owner], nil
}

func (m *Memory) Transfer(_ context.Context, from, to Account, amount engine.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidTransfer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[from]
	if !ok {
		return ErrUnknownAccount
	}
	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	newFrom, _ := balance.CheckedSub(amount)
	m.balances[from] = newFrom
	m.balances[to] = m.balances[to].SaturatingAdd(amount)
	return nil
}
