/*
errors.go - Hard aborts and per-item faults

PURPOSE:
  Two error classes exist in this system and the distinction is the single
  most important invariant of the engine:

  1. HARD ABORTS - precondition failures (unauthorized caller, empty or
     oversized batch, uninitialized service). The entire call aborts and
     NOTHING commits: no records, no counters, no batch ID consumed.
     Modeled as sentinel errors returned from the call.

  2. PER-ITEM FAULTS - a validation or execution failure for one item.
     The item commits nothing, but prior and later successful items in
     the same call DO commit. Modeled as Fault values inside ItemResult;
     the call itself still returns successfully.

  Validation faults and execution-time Ledger faults share the same
  Failure shape, so callers cannot distinguish "rejected before
  attempting" from "rejected while attempting". That ambiguity is
  accepted and documented, not a defect.

WIRE CODES:
  Each service defines a closed fault enum with a stable uint32 mapping.
  The integer appears only at the serialization boundary (API responses,
  events); in-process code switches on the typed value.

SEE ALSO:
  - runner.go: Where the two classes diverge
  - escrow/validation.go: A representative fault enum
*/
package engine

import "errors"

// =============================================================================
// SENTINEL ERRORS - Hard aborts, use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned when the caller fails authorization.
	// The whole call aborts; no per-item processing happens.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrEmptyBatch is returned for a batch with zero requests.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	// No item is touched; callers must chunk larger inputs.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrNotInitialized is returned when a service has no admin configured.
	ErrNotInitialized = errors.New("service not initialized")

	// ErrAlreadyInitialized is returned on double initialization.
	ErrAlreadyInitialized = errors.New("service already initialized")

	// ErrInsufficientFunds is returned when a distribution's treasury
	// cannot cover the batch total. Checked up front; hard abort.
	ErrInsufficientFunds = errors.New("insufficient funds for batch")

	// ErrInvalidAmount is returned for out-of-range amounts on single
	// (non-batch) operations such as opening an escrow.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound is returned by single-record getters and lifecycle
	// operations when the record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotActive is returned by single lifecycle operations targeting a
	// record already in a terminal state.
	ErrNotActive = errors.New("record not in active state")

	// ErrDeadlineNotReached is returned when a non-admin attempts a
	// deadline-gated single operation too early.
	ErrDeadlineNotReached = errors.New("deadline not reached")
)

// IsHardAbort reports whether err is a precondition failure that aborted a
// whole batch call without committing anything.
func IsHardAbort(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrInsufficientFunds)
}

// =============================================================================
// FAULT - Per-item soft failure
// =============================================================================

// Fault is a per-item failure with a stable numeric wire code. Faults are
// values, never thrown: they ride inside ItemResult while the overall call
// returns success.
type Fault interface {
	error

	// Code returns the stable uint32 mapping for off-chain consumers.
	// Codes must be preserved exactly across releases.
	Code() uint32
}
