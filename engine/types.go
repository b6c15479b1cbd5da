/*
Package engine provides the core batch-mutation engine.

PURPOSE:
  This package contains domain-agnostic types and the orchestration
  algorithm shared by every batch service in the system. Whether reversing
  escrows, distributing rewards, or updating wallet balances, the same
  engine handles validation, partial failure, aggregate counters, and
  audit events.

KEY CONCEPTS IN THIS FILE (types.go):
  - Caller: The authenticated identity submitting a batch
  - Outcome: What a processor reports for one executed item
  - ItemResult: Per-item success/failure, in input order
  - BatchResult: The structured return value of every batch call

DESIGN PRINCIPLES:
  1. Partial failure: One item's failure never rolls back or blocks
     any other item. This is the central contract.
  2. Hard aborts commit nothing: precondition failures (unauthorized,
     empty, oversized) abort the whole call before any mutation.
  3. Precision: Uses decimal.Decimal-backed Amount bounded to the
     128-bit signed range; no floats near money.
  4. Order preservation: Results match input order so callers can
     correlate by index.

SEE ALSO:
  - runner.go: The orchestration algorithm
  - amount.go: Bounded amount arithmetic
  - errors.go: Hard aborts and per-item faults
*/
package engine

// MaxBatchSize is the fixed ceiling on requests per batch call across all
// services. Larger inputs must be chunked by the caller.
const MaxBatchSize = 100

// Caller identifies the authenticated party submitting an operation.
type Caller string

// =============================================================================
// PER-ITEM RESULTS
// =============================================================================

// Outcome is what a processor reports after successfully executing one item.
type Outcome struct {
	Key    string
	Amount Amount
}

// ItemResult records the fate of a single request within a batch.
// Fault == nil means the item succeeded and its mutation committed.
type ItemResult struct {
	Key    string
	Amount Amount
	Fault  Fault
}

// Succeeded reports whether the item committed.
func (r ItemResult) Succeeded() bool { return r.Fault == nil }

// Code returns the stable wire code for a failed item, or 0 for successes.
// Callers must check Succeeded first; 0 is a valid failure code.
func (r ItemResult) Code() uint32 {
	if r.Fault == nil {
		return 0
	}
	return r.Fault.Code()
}

// =============================================================================
// BATCH RESULT
// =============================================================================

// BatchResult is the per-call output of every batch operation.
//
// INVARIANTS:
//   - Successful + Failed == TotalRequests == len(Results)
//   - Results order matches input order (index-based correlation)
//   - TotalMoved == sum of amounts of succeeded items
//   - BatchID is assigned once at call start and never reused, even if
//     every item in the batch failed
type BatchResult struct {
	BatchID       uint64
	TotalRequests int
	Successful    int
	Failed        int
	TotalMoved    Amount
	Results       []ItemResult
}
