package escrow

import (
	"context"
	"errors"
	"sync"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// STORE - Escrow record persistence
// =============================================================================

// ErrTerminalTransition is returned by stores when a write would move a
// record out of a terminal state. The state machine is one-directional and
// the store is the last line of defense.
var ErrTerminalTransition = errors.New("escrow: transition out of terminal state")

// Store persists escrow records. Records are never deleted; status only
// moves forward. Reads and writes are single-threaded per call (the
// service serializes access).
type Store interface {
	// Get returns the record, ok=false if absent.
	Get(ctx context.Context, id uint64) (Escrow, bool, error)

	// Put inserts or updates a record. Updates that leave a terminal
	// state fail with ErrTerminalTransition.
	Put(ctx context.Context, esc Escrow) error

	// NextID returns the next escrow ID. Monotonic, never reused.
	NextID(ctx context.Context) (uint64, error)

	// ByDepositor lists escrow IDs opened by a depositor, oldest first.
	ByDepositor(ctx context.Context, depositor ledger.Account) ([]uint64, error)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]Escrow
	byUser  map[ledger.Account][]uint64
	lastID  uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uint64]Escrow),
		byUser:  make(map[ledger.Account][]uint64),
	}
}

func (m *MemoryStore) Get(_ context.Context, id uint64) (Escrow, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	esc, ok := m.records[id]
	return esc, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, esc Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.records[esc.ID]; ok {
		if prev.Status.Terminal() && prev.Status != esc.Status {
			return ErrTerminalTransition
		}
	} else {
		m.byUser[esc.Depositor] = append(m.byUser[esc.Depositor], esc.ID)
	}
	m.records[esc.ID] = esc
	return nil
}

func (m *MemoryStore) NextID(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	return m.lastID, nil
}

func (m *MemoryStore) ByDepositor(_ context.Context, depositor ledger.Account) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, len(m.byUser[depositor]))
	copy(ids, m.byUser[depositor])
	return ids, nil
}
