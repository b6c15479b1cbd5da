package rewards_test

import (
	"context"
	"errors"
	"testing"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/engine/store"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/rewards"
)

const admin = engine.Caller("treasury")

func newService(t *testing.T) (*rewards.Service, *ledger.Memory) {
	t.Helper()
	mem := store.NewMemory()
	lgr := ledger.NewMemory()
	svc := rewards.New(rewards.Config{
		State:    mem,
		Counters: mem,
		Ledger:   lgr,
		Auth:     access.AllowAll{},
	})
	if err := svc.Initialize(context.Background(), admin); err != nil {
		t.Fatal(err)
	}
	return svc, lgr
}

func amt(v int64) engine.Amount { return engine.NewAmount(v) }

func balance(t *testing.T, lgr *ledger.Memory, acct ledger.Account) engine.Amount {
	t.Helper()
	b, err := lgr.Balance(context.Background(), acct)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDistribute_MixedBatch(t *testing.T) {
	// GIVEN: A funded treasury and payouts [A:100, B:-5, C:50]
	// WHEN:  Distributing
	// THEN:  A and C are paid, B fails with InvalidAmount, call succeeds

	svc, lgr := newService(t)
	lgr.Mint(ledger.Account(admin), amt(1000))

	res, err := svc.Distribute(context.Background(), admin, []rewards.Request{
		{Recipient: "A", Amount: amt(100)},
		{Recipient: "B", Amount: amt(-5)},
		{Recipient: "C", Amount: amt(50)},
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("got %+v", res)
	}
	if res.Results[1].Code() != uint32(rewards.FaultInvalidAmount) {
		t.Fatalf("B's code = %d", res.Results[1].Code())
	}
	if !balance(t, lgr, "A").Equal(amt(100)) || !balance(t, lgr, "C").Equal(amt(50)) {
		t.Fatal("successful payouts must commit")
	}
	if !balance(t, lgr, "B").IsZero() {
		t.Fatal("failed payout must not move funds")
	}
	if !balance(t, lgr, ledger.Account(admin)).Equal(amt(850)) {
		t.Fatalf("treasury = %s", balance(t, lgr, ledger.Account(admin)))
	}
	if !res.TotalMoved.Equal(amt(150)) {
		t.Fatalf("total moved = %s", res.TotalMoved)
	}
}

func TestDistribute_TreasuryPrecheckHardAborts(t *testing.T) {
	// GIVEN: A treasury holding 100 and a batch totaling 150
	// WHEN:  Distributing
	// THEN:  ErrInsufficientFunds, no payout happens, no batch ID consumed

	svc, lgr := newService(t)
	lgr.Mint(ledger.Account(admin), amt(100))
	ctx := context.Background()

	_, err := svc.Distribute(ctx, admin, []rewards.Request{
		{Recipient: "A", Amount: amt(100)},
		{Recipient: "B", Amount: amt(50)},
	})
	if !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if !engine.IsHardAbort(err) {
		t.Fatal("treasury precheck failure must be a hard abort")
	}

	if !balance(t, lgr, "A").IsZero() {
		t.Fatal("nothing may be paid on a hard abort")
	}
	counters, err := svc.AggregateCounters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counters.Batches != 0 {
		t.Fatalf("counters should be untouched, batches=%d", counters.Batches)
	}
}

func TestDistribute_NegativeItemDoesNotShrinkPrecheck(t *testing.T) {
	// The requirement sums positive amounts only: an invalid negative item
	// cannot make an otherwise unaffordable batch pass the precheck.

	svc, lgr := newService(t)
	lgr.Mint(ledger.Account(admin), amt(100))

	_, err := svc.Distribute(context.Background(), admin, []rewards.Request{
		{Recipient: "A", Amount: amt(150)},
		{Recipient: "B", Amount: amt(-100)},
	})
	if !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
}

func TestDistribute_EmptyRecipient(t *testing.T) {
	svc, lgr := newService(t)
	lgr.Mint(ledger.Account(admin), amt(100))

	res, err := svc.Distribute(context.Background(), admin, []rewards.Request{
		{Recipient: "", Amount: amt(10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Results[0].Code() != uint32(rewards.FaultInvalidRecipient) {
		t.Fatalf("got %+v", res)
	}
}

func TestDistribute_NonAdminRejected(t *testing.T) {
	svc, lgr := newService(t)
	lgr.Mint("someone", amt(1000))

	_, err := svc.Distribute(context.Background(), "someone", []rewards.Request{
		{Recipient: "A", Amount: amt(10)},
	})
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestDistribute_BeforeInitialize(t *testing.T) {
	mem := store.NewMemory()
	svc := rewards.New(rewards.Config{
		State:    mem,
		Counters: mem,
		Ledger:   ledger.NewMemory(),
		Auth:     access.AllowAll{},
	})

	_, err := svc.Distribute(context.Background(), admin, []rewards.Request{
		{Recipient: "A", Amount: amt(10)},
	})
	if !errors.Is(err, engine.ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
}

func TestDistribute_EmptyBatch(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Distribute(context.Background(), admin, nil)
	if !errors.Is(err, engine.ErrEmptyBatch) {
		t.Fatalf("want ErrEmptyBatch, got %v", err)
	}
}

func TestDistribute_CountersAccumulateAcrossBatches(t *testing.T) {
	svc, lgr := newService(t)
	lgr.Mint(ledger.Account(admin), amt(1000))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Distribute(ctx, admin, []rewards.Request{
			{Recipient: "A", Amount: amt(10)},
		}); err != nil {
			t.Fatal(err)
		}
	}

	counters, err := svc.AggregateCounters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counters.Batches != 2 || counters.Items != 2 || !counters.Volume.Equal(amt(20)) {
		t.Fatalf("counters: %+v", counters)
	}
}
