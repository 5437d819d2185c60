package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/adamdasovich/goldventure-sub001/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_SweepReleasesStaleAttempts(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewMemoryLedger()
	require.NoError(t, ledger.SetStock(ctx, coin, 5))

	clock := fixed
	store := NewMemoryStore(orders.NewMemoryRepo())
	store.Now = func() time.Time { return clock }

	gw := &recordingGateway{Simulated: payment.NewSimulated()}
	receipt, err := gw.Capture(ctx, payment.Charge{IdempotencyKey: "res-old", Amount: dec("40")})
	require.NoError(t, err)

	// a crashed checkout: reserved and paid, never completed
	_, err = store.Begin(ctx, Attempt{Key: "old", CartID: "c1", ReservationID: "res-old"})
	require.NoError(t, err)
	require.NoError(t, ledger.TryReserve(ctx, "res-old", coin, 2))
	require.NoError(t, store.RecordPayment(ctx, "old", "res-old", receipt.Ref, dec("40")))

	clock = fixed.Add(5 * time.Minute)
	_, err = store.Begin(ctx, Attempt{Key: "fresh", CartID: "c2", ReservationID: "res-fresh"})
	require.NoError(t, err)
	require.NoError(t, ledger.TryReserve(ctx, "res-fresh", coin, 1))

	r := &Reaper{
		Attempts: store,
		Ledger:   ledger,
		Payments: gw,
		Timeout:  2 * time.Minute,
		Now:      func() time.Time { return fixed.Add(6 * time.Minute) },
	}
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, _ := store.Get(ctx, "old")
	assert.Equal(t, AttemptFailed, old.Status)
	assert.Equal(t, "EXPIRED", old.FailureCode)
	fresh, _ := store.Get(ctx, "fresh")
	assert.Equal(t, AttemptPending, fresh.Status)

	rec, _ := ledger.Record(ctx, coin)
	assert.Equal(t, inventory.Record{Key: coin, Available: 4, Reserved: 1}, rec)
	assert.Equal(t, []string{receipt.Ref}, gw.refunds)

	// a second sweep finds nothing new
	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReaper_PurgeDropsSettledAttempts(t *testing.T) {
	ctx := context.Background()
	clock := fixed
	store := NewMemoryStore(orders.NewMemoryRepo())
	store.Now = func() time.Time { return clock }

	_, err := store.Begin(ctx, Attempt{Key: "done", ReservationID: "r1"})
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "done", "r1", "INSUFFICIENT_INVENTORY"))
	_, err = store.Begin(ctx, Attempt{Key: "running", ReservationID: "r2"})
	require.NoError(t, err)

	r := &Reaper{Attempts: store, Retention: time.Hour, Now: func() time.Time { return fixed.Add(2 * time.Hour) }}
	n, err := r.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "done")
	assert.Error(t, err)
	_, err = store.Get(ctx, "running")
	assert.NoError(t, err)
}

func TestReaper_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reaper{
		Attempts: NewMemoryStore(orders.NewMemoryRepo()),
		Ledger:   inventory.NewMemoryLedger(),
		Interval: 5 * time.Millisecond,
		Timeout:  time.Minute,
	}
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
