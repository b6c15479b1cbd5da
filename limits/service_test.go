package limits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/engine/store"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/limits"
)

const admin = engine.Caller("admin")

func newService(t *testing.T, events engine.Emitter) (*limits.Service, *limits.MemoryStore) {
	t.Helper()
	mem := store.NewMemory()
	st := limits.NewMemoryStore()
	svc := limits.New(limits.Config{
		Store:    st,
		State:    mem,
		Counters: mem,
		Auth:     access.AllowAll{},
		Events:   events,
		Clock:    engine.FixedClock{At: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err := svc.Initialize(context.Background(), admin); err != nil {
		t.Fatal(err)
	}
	return svc, st
}

func limit(user ledger.Account, amount string, category string) limits.Request {
	return limits.Request{User: user, MonthlyLimit: engine.MustParseAmount(amount), Category: category}
}

func TestBatchUpdate_StoresRecord(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	res, err := svc.BatchUpdate(ctx, admin, []limits.Request{
		limit("alice", "5000000", "food"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Successful != 1 {
		t.Fatalf("got %+v", res)
	}

	lim, ok, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("record should exist")
	}
	if !lim.MonthlyLimit.Equal(engine.MustParseAmount("5000000")) || lim.Category != "food" {
		t.Fatalf("got %+v", lim)
	}
	if !lim.Active {
		t.Fatal("new limits are active")
	}
}

func TestBatchUpdate_ResetsSpendingAndReactivates(t *testing.T) {
	// GIVEN: A record with accumulated spending, deactivated
	// WHEN:  Updating the user's limit
	// THEN:  Spending resets to zero and the record reactivates

	svc, st := newService(t, nil)
	ctx := context.Background()

	if err := st.PutLimit(ctx, limits.SpendingLimit{
		User:            "alice",
		MonthlyLimit:    engine.MustParseAmount("5000000"),
		CurrentSpending: engine.MustParseAmount("4999999"),
		Active:          false,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.BatchUpdate(ctx, admin, []limits.Request{
		limit("alice", "6000000", ""),
	}); err != nil {
		t.Fatal(err)
	}

	lim, _, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !lim.CurrentSpending.IsZero() {
		t.Fatalf("spending = %s", lim.CurrentSpending)
	}
	if !lim.Active {
		t.Fatal("update must reactivate the limit")
	}
	if !lim.MonthlyLimit.Equal(engine.MustParseAmount("6000000")) {
		t.Fatalf("limit = %s", lim.MonthlyLimit)
	}
}

func TestBatchUpdate_Bounds(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	res, err := svc.BatchUpdate(ctx, admin, []limits.Request{
		limit("a", "999999", ""),             // one below MinLimit
		limit("b", "1000000", ""),            // exactly MinLimit
		limit("c", "100000000000000000", ""), // exactly MaxLimit
		limit("d", "100000000000000001", ""), // one above MaxLimit
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Successful != 2 || res.Failed != 2 {
		t.Fatalf("got %+v", res)
	}
	if res.Results[0].Code() != uint32(limits.FaultInvalidLimit) {
		t.Fatalf("below-min code = %d", res.Results[0].Code())
	}
	if res.Results[3].Code() != uint32(limits.FaultInvalidLimit) {
		t.Fatalf("above-max code = %d", res.Results[3].Code())
	}
}

func TestBatchUpdate_ValidationFaults(t *testing.T) {
	svc, _ := newService(t, nil)

	res, err := svc.BatchUpdate(context.Background(), admin, []limits.Request{
		{User: "", MonthlyLimit: engine.MustParseAmount("5000000")},
		limit("alice", "5000000", "an-implausibly-long-category-name-here"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Results[0].Code() != uint32(limits.FaultInvalidUser) {
		t.Fatalf("empty-user code = %d", res.Results[0].Code())
	}
	if res.Results[1].Code() != uint32(limits.FaultInvalidCategory) {
		t.Fatalf("category code = %d", res.Results[1].Code())
	}
}

func TestBatchUpdate_HighValueEvent(t *testing.T) {
	// Limits at or above the threshold emit an extra high-value audit
	// event; ordinary limits do not.

	events := engine.NewMemoryEmitter(0)
	svc, _ := newService(t, events)

	if _, err := svc.BatchUpdate(context.Background(), admin, []limits.Request{
		limit("small", "5000000", ""),
		limit("whale", "10000000000000000", ""), // exactly at threshold
	}); err != nil {
		t.Fatal(err)
	}

	var highValue []engine.Event
	for _, e := range events.Events() {
		if e.Type == engine.EventHighValue {
			highValue = append(highValue, e)
		}
	}
	if len(highValue) != 1 {
		t.Fatalf("want 1 high-value event, got %d", len(highValue))
	}
	if highValue[0].Key != "whale" {
		t.Fatalf("event key = %s", highValue[0].Key)
	}
}

func TestBatchUpdate_NonAdminRejected(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.BatchUpdate(context.Background(), "alice", []limits.Request{
		limit("alice", "5000000", ""),
	})
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestGet_Unknown(t *testing.T) {
	svc, _ := newService(t, nil)

	_, ok, err := svc.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("unknown user should have no record")
	}
}
