// Package store provides in-memory implementations of the engine's
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/engine"
)

// =============================================================================
// MEMORY STATE - Counters and singleton service state
// =============================================================================

// Memory implements engine.CounterStore and engine.StateStore.
type Memory struct {
	mu       sync.RWMutex
	counters map[string]engine.Counters
	admins   map[string]engine.Caller
}

func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]engine.Counters),
		admins:   make(map[string]engine.Caller),
	}
}

func (m *Memory) LoadCounters(_ context.Context, service string) (engine.Counters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[service], nil
}

func (m *Memory) StoreCounters(_ context.Context, service string, c engine.Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[service] = c
	return nil
}

func (m *Memory) Admin(_ context.Context, service string) (engine.Caller, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	admin, ok := m.admins[service]
	return admin, ok, nil
}

func (m *Memory) SetAdmin(_ context.Context, service string, admin engine.Caller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[service] = admin
	return nil
}
