package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/engine/store"
)

// =============================================================================
// TEST PROCESSOR
// =============================================================================

// payReq is a minimal request for exercising the runner.
type payReq struct {
	Key    string
	Amount engine.Amount
}

type testFault uint32

func (f testFault) Code() uint32  { return uint32(f) }
func (f testFault) Error() string { return "test fault" }

// payProcessor pays each key once: a repeated key in the same batch fails
// on its second occurrence, exactly like a real dedup guard.
type payProcessor struct {
	paid     map[string]bool
	failExec map[string]bool
}

func newPayProcessor() *payProcessor {
	return &payProcessor{paid: make(map[string]bool), failExec: make(map[string]bool)}
}

func (p *payProcessor) Validate(_ context.Context, _ engine.Caller, req payReq) engine.Fault {
	if !req.Amount.IsPositive() {
		return testFault(1)
	}
	if p.paid[req.Key] {
		return testFault(2)
	}
	return nil
}

func (p *payProcessor) Execute(_ context.Context, _ engine.Caller, req payReq) (engine.Outcome, engine.Fault) {
	if p.failExec[req.Key] {
		return engine.Outcome{}, testFault(3)
	}
	p.paid[req.Key] = true
	return engine.Outcome{Key: req.Key, Amount: req.Amount}, nil
}

func (p *payProcessor) Describe(req payReq) (string, engine.Amount) {
	return req.Key, req.Amount
}

func newRunner(proc engine.Processor[payReq], counters engine.CounterStore, events engine.Emitter) engine.Runner[payReq] {
	return engine.Runner[payReq]{
		Service:  "test",
		Proc:     proc,
		Counters: counters,
		Events:   events,
		Clock:    engine.FixedClock{At: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func amt(v int64) engine.Amount { return engine.NewAmount(v) }

// =============================================================================
// HARD ABORTS
// =============================================================================

func TestRunner_EmptyBatch_Aborts(t *testing.T) {
	// GIVEN: An empty batch
	// WHEN:  Running it
	// THEN:  ErrEmptyBatch, counters untouched, no batch ID consumed

	counters := store.NewMemory()
	r := newRunner(newPayProcessor(), counters, nil)

	_, err := r.Run(context.Background(), "admin", nil)
	if err != engine.ErrEmptyBatch {
		t.Fatalf("want ErrEmptyBatch, got %v", err)
	}

	c, _ := counters.LoadCounters(context.Background(), "test")
	if c.Batches != 0 {
		t.Fatalf("counters should be untouched, batches=%d", c.Batches)
	}
}

func TestRunner_OversizedBatch_Aborts(t *testing.T) {
	// GIVEN: 101 requests
	// WHEN:  Running the batch
	// THEN:  ErrBatchTooLarge before any item is touched

	counters := store.NewMemory()
	proc := newPayProcessor()
	r := newRunner(proc, counters, nil)

	reqs := make([]payReq, engine.MaxBatchSize+1)
	for i := range reqs {
		reqs[i] = payReq{Key: "k", Amount: amt(1)}
	}

	_, err := r.Run(context.Background(), "admin", reqs)
	if err != engine.ErrBatchTooLarge {
		t.Fatalf("want ErrBatchTooLarge, got %v", err)
	}
	if len(proc.paid) != 0 {
		t.Fatal("no item should have executed")
	}
	c, _ := counters.LoadCounters(context.Background(), "test")
	if c.Batches != 0 || c.Items != 0 {
		t.Fatalf("counters should be untouched: %+v", c)
	}
}

func TestRunner_MaxSizeBatch_Accepted(t *testing.T) {
	counters := store.NewMemory()
	r := newRunner(newPayProcessor(), counters, nil)

	reqs := make([]payReq, engine.MaxBatchSize)
	for i := range reqs {
		reqs[i] = payReq{Key: string(rune('a' + i%26)) + string(rune('0' + i/26)), Amount: amt(1)}
	}

	res, err := r.Run(context.Background(), "admin", reqs)
	if err != nil {
		t.Fatalf("exactly MaxBatchSize should be accepted: %v", err)
	}
	if res.TotalRequests != engine.MaxBatchSize {
		t.Fatalf("total=%d", res.TotalRequests)
	}
}

// =============================================================================
// PARTIAL FAILURE
// =============================================================================

func TestRunner_PartialFailure_IsolatesItems(t *testing.T) {
	// GIVEN: A batch of [valid, invalid, valid]
	// WHEN:  Running it
	// THEN:  Two successes commit, one failure recorded, order preserved

	counters := store.NewMemory()
	proc := newPayProcessor()
	r := newRunner(proc, counters, nil)

	res, err := r.Run(context.Background(), "admin", []payReq{
		{Key: "a", Amount: amt(100)},
		{Key: "b", Amount: amt(-5)},
		{Key: "c", Amount: amt(50)},
	})
	if err != nil {
		t.Fatalf("per-item failures must not abort the call: %v", err)
	}

	if res.Successful != 2 || res.Failed != 1 || res.TotalRequests != 3 {
		t.Fatalf("got %+v", res)
	}
	if !res.TotalMoved.Equal(amt(150)) {
		t.Fatalf("total moved = %s", res.TotalMoved)
	}
	if len(res.Results) != 3 {
		t.Fatalf("results = %d", len(res.Results))
	}
	if res.Results[0].Key != "a" || res.Results[1].Key != "b" || res.Results[2].Key != "c" {
		t.Fatal("results must preserve input order")
	}
	if res.Results[1].Succeeded() {
		t.Fatal("item b should have failed")
	}
	if res.Results[1].Code() != 1 {
		t.Fatalf("item b code = %d", res.Results[1].Code())
	}
}

func TestRunner_ExecutionFault_RecordedLikeValidationFault(t *testing.T) {
	proc := newPayProcessor()
	proc.failExec["b"] = true
	r := newRunner(proc, store.NewMemory(), nil)

	res, err := r.Run(context.Background(), "admin", []payReq{
		{Key: "a", Amount: amt(1)},
		{Key: "b", Amount: amt(1)},
	})
	if err != nil {
		t.Fatalf("execution faults must not abort: %v", err)
	}
	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("got %+v", res)
	}
	if res.Results[1].Code() != 3 {
		t.Fatalf("item b code = %d", res.Results[1].Code())
	}
}

func TestRunner_InBatchDuplicate_FailsSecondOccurrence(t *testing.T) {
	// GIVEN: The same key listed twice in one batch
	// WHEN:  Running it
	// THEN:  The first occurrence pays, the second observes the first's
	//        mutation and fails - validation runs against live state

	proc := newPayProcessor()
	r := newRunner(proc, store.NewMemory(), nil)

	res, err := r.Run(context.Background(), "admin", []payReq{
		{Key: "dup", Amount: amt(10)},
		{Key: "dup", Amount: amt(10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("duplicate should pay exactly once: %+v", res)
	}
	if !res.Results[0].Succeeded() || res.Results[1].Succeeded() {
		t.Fatal("first occurrence wins, second fails")
	}
	if !res.TotalMoved.Equal(amt(10)) {
		t.Fatalf("total moved = %s", res.TotalMoved)
	}
}

// =============================================================================
// COUNTERS AND BATCH IDS
// =============================================================================

func TestRunner_Counters_CommitOncePerCall(t *testing.T) {
	counters := store.NewMemory()
	proc := newPayProcessor()
	r := newRunner(proc, counters, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, "admin", []payReq{
		{Key: "a", Amount: amt(100)},
		{Key: "bad", Amount: amt(-1)},
	})
	if err != nil {
		t.Fatal(err)
	}

	c, _ := counters.LoadCounters(ctx, "test")
	if c.Batches != 1 {
		t.Fatalf("batches = %d", c.Batches)
	}
	if c.Items != 1 {
		t.Fatalf("items must count succeeded only, got %d", c.Items)
	}
	if !c.Volume.Equal(amt(100)) {
		t.Fatalf("volume = %s", c.Volume)
	}
}

func TestRunner_AllFailureBatch_StillConsumesBatchID(t *testing.T) {
	// GIVEN: A batch where every item fails
	// THEN:  The batch counter still advances; the ID is never reused

	counters := store.NewMemory()
	r := newRunner(newPayProcessor(), counters, nil)
	ctx := context.Background()

	res, err := r.Run(ctx, "admin", []payReq{{Key: "x", Amount: amt(-1)}})
	if err != nil {
		t.Fatal(err)
	}
	if res.BatchID != 1 || res.Successful != 0 {
		t.Fatalf("got %+v", res)
	}

	res2, err := r.Run(ctx, "admin", []payReq{{Key: "y", Amount: amt(-1)}})
	if err != nil {
		t.Fatal(err)
	}
	if res2.BatchID != 2 {
		t.Fatalf("batch IDs must be sequential, got %d", res2.BatchID)
	}

	c, _ := counters.LoadCounters(ctx, "test")
	if c.Batches != 2 || c.Items != 0 || !c.Volume.IsZero() {
		t.Fatalf("counters: %+v", c)
	}
}

func TestRunner_VolumeCounter_Saturates(t *testing.T) {
	// The lifetime volume counter caps at MaxAmount instead of wrapping.

	counters := store.NewMemory()
	ctx := context.Background()
	nearMax, _ := engine.MaxAmount.CheckedSub(amt(5))
	counters.StoreCounters(ctx, "test", engine.Counters{Batches: 7, Volume: nearMax})

	r := newRunner(newPayProcessor(), counters, nil)
	_, err := r.Run(ctx, "admin", []payReq{{Key: "big", Amount: amt(1000)}})
	if err != nil {
		t.Fatal(err)
	}

	c, _ := counters.LoadCounters(ctx, "test")
	if !c.Volume.Equal(engine.MaxAmount) {
		t.Fatalf("volume should saturate at MaxAmount, got %s", c.Volume)
	}
	if c.Batches != 8 {
		t.Fatalf("batches = %d", c.Batches)
	}
}

// =============================================================================
// AUDIT EVENTS
// =============================================================================

func TestRunner_EmitsAuditTrail(t *testing.T) {
	// One start event, one event per item, one completion event,
	// in processing order.

	emitter := engine.NewMemoryEmitter(0)
	r := newRunner(newPayProcessor(), store.NewMemory(), emitter)

	_, err := r.Run(context.Background(), "admin", []payReq{
		{Key: "a", Amount: amt(10)},
		{Key: "b", Amount: amt(-1)},
	})
	if err != nil {
		t.Fatal(err)
	}

	events := emitter.Events()
	if len(events) != 4 {
		t.Fatalf("want 4 events, got %d", len(events))
	}
	wantTypes := []engine.EventType{
		engine.EventBatchStarted,
		engine.EventItemSucceeded,
		engine.EventItemFailed,
		engine.EventBatchCompleted,
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Fatalf("event %d type = %s, want %s", i, events[i].Type, want)
		}
		if events[i].ID == "" {
			t.Fatalf("event %d has no ID", i)
		}
		if events[i].BatchID != 1 {
			t.Fatalf("event %d batch ID = %d", i, events[i].BatchID)
		}
	}
	if events[2].Code != 1 {
		t.Fatalf("failure event code = %d", events[2].Code)
	}
	if events[3].Successful != 1 || events[3].Failed != 1 {
		t.Fatalf("completion event: %+v", events[3])
	}
}
