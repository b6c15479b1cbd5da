package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/escrow"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/limits"
	"github.com/warp/ledger-engine/refunds"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/wallet"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func amt(v int64) engine.Amount { return engine.NewAmount(v) }

// =============================================================================
// COUNTERS AND STATE
// =============================================================================

func TestCounters_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unknown service reads as zero.
	c, err := store.LoadCounters(ctx, "escrow")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Batches)

	want := engine.Counters{Batches: 3, Items: 42, Volume: amt(12345)}
	require.NoError(t, store.StoreCounters(ctx, "escrow", want))

	got, err := store.LoadCounters(ctx, "escrow")
	require.NoError(t, err)
	assert.Equal(t, want.Batches, got.Batches)
	assert.Equal(t, want.Items, got.Items)
	assert.True(t, got.Volume.Equal(want.Volume))
}

func TestCounters_ServicesAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreCounters(ctx, "escrow", engine.Counters{Batches: 1}))
	require.NoError(t, store.StoreCounters(ctx, "rewards", engine.Counters{Batches: 9}))

	c, err := store.LoadCounters(ctx, "escrow")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Batches)
}

func TestCounters_VolumeSurvivesHugeValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreCounters(ctx, "escrow", engine.Counters{Volume: engine.MaxAmount}))

	c, err := store.LoadCounters(ctx, "escrow")
	require.NoError(t, err)
	assert.True(t, c.Volume.Equal(engine.MaxAmount), "128-bit volume must round-trip exactly")
}

func TestAdmin_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Admin(ctx, "escrow")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetAdmin(ctx, "escrow", "alice"))

	admin, ok, err := store.Admin(ctx, "escrow")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, engine.Caller("alice"), admin)

	// Rotation overwrites.
	require.NoError(t, store.SetAdmin(ctx, "escrow", "bob"))
	admin, _, err = store.Admin(ctx, "escrow")
	require.NoError(t, err)
	assert.Equal(t, engine.Caller("bob"), admin)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_MintAndTransfer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Mint(ctx, "alice", amt(1000)))
	require.NoError(t, store.Transfer(ctx, "alice", "bob", amt(300)))

	a, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.Equal(amt(700)))

	b, err := store.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, b.Equal(amt(300)))
}

func TestLedger_TransferErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Mint(ctx, "alice", amt(100)))

	err := store.Transfer(ctx, "alice", "bob", amt(0))
	assert.ErrorIs(t, err, ledger.ErrInvalidTransfer)

	err = store.Transfer(ctx, "ghost", "bob", amt(10))
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	err = store.Transfer(ctx, "alice", "bob", amt(101))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Failed transfers leave balances untouched.
	a, err := store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.Equal(amt(100)))
}

func TestLedger_UnknownAccountReadsZero(t *testing.T) {
	store := newTestStore(t)

	b, err := store.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

// =============================================================================
// ESCROWS
// =============================================================================

func testEscrow(id uint64) escrow.Escrow {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	return escrow.Escrow{
		ID:        id,
		Depositor: "alice",
		Recipient: "bob",
		Token:     "WARP",
		Amount:    amt(500),
		Status:    escrow.StatusActive,
		CreatedAt: now,
		Deadline:  now.Add(24 * time.Hour),
	}
}

func TestEscrow_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := testEscrow(1)

	require.NoError(t, store.Put(ctx, want))

	got, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Depositor, got.Depositor)
	assert.Equal(t, want.Recipient, got.Recipient)
	assert.Equal(t, want.Token, got.Token)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, got.Amount.Equal(want.Amount))
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
	assert.True(t, got.Deadline.Equal(want.Deadline))
}

func TestEscrow_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEscrow_StatusMovesForwardOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	esc := testEscrow(1)
	require.NoError(t, store.Put(ctx, esc))

	esc.Status = escrow.StatusReleased
	require.NoError(t, store.Put(ctx, esc))

	// Out of a terminal state: refused.
	esc.Status = escrow.StatusActive
	err := store.Put(ctx, esc)
	assert.ErrorIs(t, err, escrow.ErrTerminalTransition)

	got, _, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, got.Status)
}

func TestEscrow_NextIDMonotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	second, err := store.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)
}

func TestEscrow_ByDepositorOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []uint64{1, 2, 3} {
		esc := testEscrow(id)
		if id == 2 {
			esc.Depositor = "carol"
		}
		require.NoError(t, store.Put(ctx, esc))
	}

	ids, err := store.ByDepositor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids)
}

// =============================================================================
// WALLET BALANCES
// =============================================================================

func TestWallet_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := wallet.Balance{
		User:      "alice",
		Currency:  "USDC",
		Balance:   amt(250),
		UpdatedAt: time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.PutBalance(ctx, want))

	got, ok, err := store.GetBalance(ctx, "alice", "USDC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Balance.Equal(amt(250)))
	assert.True(t, got.UpdatedAt.Equal(want.UpdatedAt))

	// Upsert overwrites.
	want.Balance = amt(99)
	require.NoError(t, store.PutBalance(ctx, want))
	got, _, err = store.GetBalance(ctx, "alice", "USDC")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(amt(99)))
}

func TestWallet_CurrencyIsPartOfTheKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutBalance(ctx, wallet.Balance{User: "alice", Currency: "USDC", Balance: amt(1), UpdatedAt: time.Now()}))
	require.NoError(t, store.PutBalance(ctx, wallet.Balance{User: "alice", Currency: "EURC", Balance: amt(2), UpdatedAt: time.Now()}))

	usdc, ok, err := store.GetBalance(ctx, "alice", "USDC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, usdc.Balance.Equal(amt(1)))

	_, ok, err = store.GetBalance(ctx, "alice", "GBPC")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// SPENDING LIMITS
// =============================================================================

func TestLimits_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := limits.SpendingLimit{
		User:            "alice",
		MonthlyLimit:    engine.MustParseAmount("5000000"),
		CurrentSpending: engine.MustParseAmount("123"),
		Category:        "food",
		UpdatedAt:       time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC),
		Active:          true,
	}
	require.NoError(t, store.PutLimit(ctx, want))

	got, ok, err := store.GetLimit(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.MonthlyLimit.Equal(want.MonthlyLimit))
	assert.True(t, got.CurrentSpending.Equal(want.CurrentSpending))
	assert.Equal(t, "food", got.Category)
	assert.True(t, got.Active)

	_, ok, err = store.GetLimit(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestRefunds_RegistryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := refunds.Transaction{
		ID:         42,
		Payer:      "alice",
		Amount:     amt(500),
		Category:   "subscriptions",
		Refundable: true,
		RecordedAt: time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.PutTransaction(ctx, tx))

	got, ok, err := store.GetTransaction(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.Payer, got.Payer)
	assert.True(t, got.Amount.Equal(tx.Amount))
	assert.True(t, got.Refundable)

	err = store.PutTransaction(ctx, tx)
	assert.ErrorIs(t, err, refunds.ErrDuplicateID)
}

func TestRefunds_DedupSetIsPermanent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	refunded, err := store.IsRefunded(ctx, 7)
	require.NoError(t, err)
	assert.False(t, refunded)

	require.NoError(t, store.MarkRefunded(ctx, 7, amt(100)))

	refunded, err = store.IsRefunded(ctx, 7)
	require.NoError(t, err)
	assert.True(t, refunded)

	// A double mark neither fails nor double-counts.
	require.NoError(t, store.MarkRefunded(ctx, 7, amt(100)))
	total, err := store.TotalRefunded(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(amt(100)))
}

func TestRefunds_TotalSumsExactly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkRefunded(ctx, 1, engine.MustParseAmount("9999999999999999999999")))
	require.NoError(t, store.MarkRefunded(ctx, 2, engine.MustParseAmount("1")))

	total, err := store.TotalRefunded(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(engine.MustParseAmount("10000000000000000000000")),
		"decimal totals must not go through floats")
}
