/*
runner.go - The two-phase batch orchestrator

PURPOSE:
  Implements the batch-mutation pattern shared by every service: check hard
  preconditions, then for each request in input order run validation and -
  if valid - execution, recording success/failure per item, then commit
  aggregate counters once and emit the audit trail.

WHY A SINGLE INTERLEAVED PASS:
  The pattern is often described as "validate pass, then execute pass".
  Implemented literally (two fully separated passes over a snapshot), a key
  appearing twice within one batch would validate twice against the same
  pre-batch state and pay out twice. This runner validates each item
  immediately before executing it, against the LIVE store, so the second
  occurrence of a duplicate key observes the first occurrence's mutation
  and fails. This is a deliberate, tested design choice.

COUNTER DISCIPLINE:
  Counters are read once at call start and written once at call end, never
  per item. The batch ID is lifetime-batches + 1, assigned once at call
  start; it is consumed even if every item fails, and never reused.

FAILURE SEMANTICS:
  - Hard aborts (empty, oversized) return an error before any item is
    touched and before the batch ID is consumed.
  - A Fault from Validate or Execute records a Failure for that item and
    processing continues. Execution faults (e.g. a Ledger transfer
    rejection) are converted, never propagated.

CONCURRENCY:
  The runner itself holds no locks. Services serialize their batch entry
  points with a mutex, standing in for the host call serialization the
  original environment provided. Within a call, execution is synchronous
  and run-to-completion.

SEE ALSO:
  - errors.go: Hard abort vs per-item fault
  - counters.go: Counter invariants
*/
package engine

import "context"

// =============================================================================
// PROCESSOR - Per-service item semantics
// =============================================================================

// Processor defines one service's per-item semantics. The runner is generic
// over the request type; services supply validation and execution.
type Processor[R any] interface {
	// Validate checks req against static rules and current record state.
	// Pure: reads only, no mutation. Returns nil when the item may execute.
	// Rule order within Validate is significant: only the first failing
	// rule's fault is reported.
	Validate(ctx context.Context, caller Caller, req R) Fault

	// Execute applies the mutation for a request that passed validation.
	// A returned Fault (e.g. a rejected Ledger transfer) is recorded as a
	// per-item failure exactly like a validation fault.
	Execute(ctx context.Context, caller Caller, req R) (Outcome, Fault)

	// Describe returns the key and amount used to shape a Failure result
	// when the item never executes.
	Describe(req R) (key string, amount Amount)
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner orchestrates batches for one service.
type Runner[R any] struct {
	Service  string // counters namespace and event stream name
	Proc     Processor[R]
	Counters CounterStore
	Events   Emitter
	Observer Observer
	Clock    Clock
}

// Run processes a batch. Preconditions (empty, oversized) hard-abort with
// no per-item processing and no state change. Caller authorization is the
// service's responsibility and happens before Run.
func (r *Runner[R]) Run(ctx context.Context, caller Caller, reqs []R) (BatchResult, error) {
	if len(reqs) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	if len(reqs) > MaxBatchSize {
		return BatchResult{}, ErrBatchTooLarge
	}

	counters, err := r.Counters.LoadCounters(ctx, r.Service)
	if err != nil {
		return BatchResult{}, err
	}
	batchID := counters.Batches + 1

	r.emit(ctx, Event{
		Service:   r.Service,
		Type:      EventBatchStarted,
		BatchID:   batchID,
		ItemCount: len(reqs),
	})

	result := BatchResult{
		BatchID:       batchID,
		TotalRequests: len(reqs),
		Results:       make([]ItemResult, 0, len(reqs)),
	}

	// Single interleaved pass: validate item i, execute item i, move on.
	// Executing before validating i+1 is what makes in-batch duplicate
	// keys fail correctly.
	for _, req := range reqs {
		if fault := r.Proc.Validate(ctx, caller, req); fault != nil {
			r.fail(ctx, &result, req, fault)
			continue
		}

		outcome, fault := r.Proc.Execute(ctx, caller, req)
		if fault != nil {
			r.fail(ctx, &result, req, fault)
			continue
		}

		result.Successful++
		result.TotalMoved = result.TotalMoved.SaturatingAdd(outcome.Amount)
		result.Results = append(result.Results, ItemResult{Key: outcome.Key, Amount: outcome.Amount})
		r.emit(ctx, Event{
			Service: r.Service,
			Type:    EventItemSucceeded,
			BatchID: batchID,
			Key:     outcome.Key,
			Amount:  outcome.Amount,
		})
	}

	// Commit counters once. Batches advances even for an all-failure batch;
	// items and volume cover succeeded items only.
	counters.Batches = batchID
	counters.Items += uint64(result.Successful)
	counters.Volume = counters.Volume.SaturatingAdd(result.TotalMoved)
	if err := r.Counters.StoreCounters(ctx, r.Service, counters); err != nil {
		return BatchResult{}, err
	}

	r.emit(ctx, Event{
		Service:    r.Service,
		Type:       EventBatchCompleted,
		BatchID:    batchID,
		Successful: result.Successful,
		Failed:     result.Failed,
		Volume:     result.TotalMoved,
	})
	if r.Observer != nil {
		r.Observer.BatchProcessed(r.Service, result.Successful, result.Failed, result.TotalMoved)
	}

	return result, nil
}

func (r *Runner[R]) fail(ctx context.Context, result *BatchResult, req R, fault Fault) {
	key, amount := r.Proc.Describe(req)
	result.Failed++
	result.Results = append(result.Results, ItemResult{Key: key, Amount: amount, Fault: fault})
	r.emit(ctx, Event{
		Service: r.Service,
		Type:    EventItemFailed,
		BatchID: result.BatchID,
		Key:     key,
		Amount:  amount,
		Code:    fault.Code(),
	})
}

func (r *Runner[R]) emit(ctx context.Context, e Event) {
	if r.Events == nil {
		return
	}
	e.ID = NewEventID()
	if r.Clock != nil {
		e.At = r.Clock.Now()
	}
	r.Events.Emit(ctx, e)
}
