package engine

import "context"

// =============================================================================
// AGGREGATE COUNTERS - Lifetime totals per service
// =============================================================================

// Counters are monotonic lifetime totals for one service.
//
// INVARIANTS:
//   - Batches increments by exactly 1 per non-aborted call, even if every
//     item in that batch failed.
//   - Items and Volume include succeeded items only.
//   - Volume uses saturating addition: it caps at MaxAmount rather than
//     wrapping or aborting.
type Counters struct {
	Batches uint64
	Items   uint64
	Volume  Amount
}

// CounterStore persists aggregate counters keyed by service name.
// The runner reads once at call start and writes once at call end; there
// are no per-item counter writes.
type CounterStore interface {
	LoadCounters(ctx context.Context, service string) (Counters, error)
	StoreCounters(ctx context.Context, service string, c Counters) error
}

// StateStore persists the small fixed singleton key set each service owns.
// Currently that is just the admin identity.
type StateStore interface {
	// Admin returns the configured admin, or ok=false if uninitialized.
	Admin(ctx context.Context, service string) (Caller, bool, error)

	// SetAdmin writes the admin identity for a service.
	SetAdmin(ctx context.Context, service string, admin Caller) error
}

// Observer receives batch completions for monitoring mirrors (Prometheus).
// Purely advisory: the engine never depends on observer behavior.
type Observer interface {
	BatchProcessed(service string, succeeded, failed int, volume Amount)
}

// NopObserver discards observations.
type NopObserver struct{}

func (NopObserver) BatchProcessed(string, int, int, Amount) {}
