/*
Package escrow provides the escrow lifecycle service with batch reversal.

PURPOSE:
  Funds are locked from a depositor until released to the recipient or
  reversed back to the depositor. Reversal is the batch-engine's
  representative workload: it is where every hard invariant lives.

LIFECYCLE:
  Active (initial) -> Released | Reversed (terminal)

  No transition ever leaves a terminal state. Records are never deleted;
  terminal records persist for audit. IDs are assigned monotonically and
  never reused.

MONEY MOVEMENT:
  Open:    depositor -> vault
  Release: vault -> recipient   (admin or depositor, Active only)
  Reverse: vault -> depositor   (admin any time; depositor after deadline)

BATCH REVERSAL:
  Admin-only. Each item is validated then executed independently; a failed
  item never rolls back or blocks the others. A rejected Ledger transfer
  during execution becomes a per-item failure, never a call abort.

SEE ALSO:
  - validation.go: The ordered validation rules and wire codes
  - service.go: Operations
  - engine/runner.go: The shared orchestrator
*/
package escrow

import (
	"time"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// STATUS - One-directional lifecycle
// =============================================================================

type Status string

const (
	// StatusActive: funds locked, awaiting release or reversal.
	StatusActive Status = "active"
	// StatusReleased: funds paid out to the recipient. Terminal.
	StatusReleased Status = "released"
	// StatusReversed: funds returned to the depositor. Terminal.
	StatusReversed Status = "reversed"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool { return s == StatusReleased || s == StatusReversed }

// CanTransitionTo enforces the one-directional state machine.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next.Terminal()
}

// =============================================================================
// RECORD
// =============================================================================

// Escrow is the persisted record. Amount is non-negative at rest.
type Escrow struct {
	ID        uint64
	Depositor ledger.Account
	Recipient ledger.Account
	Token     string
	Amount    engine.Amount
	Status    Status
	CreatedAt time.Time
	Deadline  time.Time
}

// ReversalRequest targets one escrow for reversal within a batch.
type ReversalRequest struct {
	EscrowID uint64
}
