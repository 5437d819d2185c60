package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	coin   = inventory.Key{ProductID: "coin-1849"}
	nugget = inventory.Key{ProductID: "nugget", VariantID: "10g"}
	fixed  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []StatusChanged
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev StatusChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		out = append(out, ev.EventType)
	}
	return out
}

type stubRefunder struct {
	calls  []string
	err    error
	during func()
}

func (r *stubRefunder) Refund(_ context.Context, paymentRef string, _ decimal.Decimal) error {
	r.calls = append(r.calls, paymentRef)
	if r.during != nil {
		r.during()
	}
	return r.err
}

// hookedRepo runs afterGet once, right after the next Get returns.
type hookedRepo struct {
	Repository
	afterGet func()
}

func (r *hookedRepo) Get(ctx context.Context, id string) (*Order, error) {
	o, err := r.Repository.Get(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return o, err
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepo
	ledger   *inventory.MemoryLedger
	notifier *recordingNotifier
	refunder *stubRefunder
	cache    *MemoryStatusCache
}

// newFixture stores a paid order holding 2 coins and 1 nugget, reserved
// under holder "res-1" out of a stock of 5 each.
func newFixture(t *testing.T) (*fixture, *Order) {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		repo:     NewMemoryRepo(),
		ledger:   inventory.NewMemoryLedger(),
		notifier: &recordingNotifier{},
		refunder: &stubRefunder{},
		cache:    NewMemoryStatusCache(),
	}
	f.svc = &Service{
		Repo:     f.repo,
		Ledger:   f.ledger,
		Payments: f.refunder,
		Notifier: f.notifier,
		Cache:    f.cache,
		Now:      func() time.Time { return fixed },
	}

	for _, k := range []inventory.Key{coin, nugget} {
		require.NoError(t, f.ledger.SetStock(ctx, k, 5))
	}
	require.NoError(t, f.ledger.TryReserve(ctx, "res-1", coin, 2))
	require.NoError(t, f.ledger.TryReserve(ctx, "res-1", nugget, 1))

	o := &Order{
		ID:            "ord-1",
		CartID:        "cart-1",
		ReservationID: "res-1",
		PaymentRef:    "pay-1",
		Items: []LineItem{
			{ProductID: coin.ProductID, Name: "Coin", UnitPrice: decimal.NewFromInt(20), Quantity: 2, LineTotal: decimal.NewFromInt(40)},
			{ProductID: nugget.ProductID, VariantID: nugget.VariantID, Name: "Nugget (10g)", UnitPrice: decimal.NewFromInt(5), Quantity: 1, LineTotal: decimal.NewFromInt(5)},
		},
		Subtotal:  decimal.NewFromInt(45),
		Total:     decimal.NewFromInt(45),
		Status:    StatusPaid,
		Version:   1,
		CreatedAt: fixed,
		UpdatedAt: fixed,
	}
	require.NoError(t, f.repo.Create(ctx, o))
	return f, o
}

func (f *fixture) record(t *testing.T, k inventory.Key) inventory.Record {
	t.Helper()
	r, err := f.ledger.Record(context.Background(), k)
	require.NoError(t, err)
	return r
}

func TestService_Transition_HappyPath(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)

	o, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, int64(2), o.Version)

	o, err = f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusShipped, ExpectedVersion: 2, TrackingNumber: " 1Z999 "})
	require.NoError(t, err)
	assert.Equal(t, "1Z999", o.TrackingNumber)

	o, err = f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusDelivered, ExpectedVersion: 3})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, stored.Status)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, []string{"processing", "shipped", "delivered"}, f.notifier.types())
	assert.Equal(t, "1Z999", f.notifier.events[1].TrackingNumber)
	assert.Equal(t, StatusProcessing, f.notifier.events[1].From)

	// delivery turns the reservation into sales
	assert.Equal(t, inventory.Record{Key: coin, Available: 3, Sold: 2}, f.record(t, coin))
	assert.Equal(t, inventory.Record{Key: nugget, Available: 4, Sold: 1}, f.record(t, nugget))
}

func TestService_Transition_PaidToDeliveredIsIllegal(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)

	_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusDelivered, ExpectedVersion: 1})

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusPaid, te.From)
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)

	stored, _ := f.repo.Get(ctx, o.ID)
	assert.Equal(t, StatusPaid, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, f.notifier.types())
}

func TestService_Transition_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  TransitionCommand
		want error
	}{
		{"same status", TransitionCommand{OrderID: "ord-1", To: StatusPaid, ExpectedVersion: 1}, apperr.ErrIllegalTransition},
		{"unknown status", TransitionCommand{OrderID: "ord-1", To: "lost", ExpectedVersion: 1}, apperr.ErrInvalidInput},
		{"tracking outside shipped", TransitionCommand{OrderID: "ord-1", To: StatusProcessing, ExpectedVersion: 1, TrackingNumber: "1Z"}, apperr.ErrInvalidInput},
		{"stale version", TransitionCommand{OrderID: "ord-1", To: StatusProcessing, ExpectedVersion: 7}, apperr.ErrVersionConflict},
		{"missing order", TransitionCommand{OrderID: "nope", To: StatusProcessing, ExpectedVersion: 1}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFixture(t)
			_, err := f.svc.Transition(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_Transition_VersionConflictCarriesCurrent(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)

	_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusCancelled, ExpectedVersion: 1})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(2), ce.Current)

	// the stale cancel must not have released anything
	assert.Equal(t, 2, f.record(t, coin).Reserved)
}

func TestService_Transition_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)

	targets := []Status{StatusProcessing, StatusCancelled, StatusRefunded, StatusProcessing}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, to := range targets {
		wg.Add(1)
		go func(to Status) {
			defer wg.Done()
			_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: to, ExpectedVersion: 1})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrVersionConflict)
		}(to)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	stored, _ := f.repo.Get(ctx, o.ID)
	assert.Equal(t, int64(2), stored.Version)
}

func TestService_Transition_CancelReleasesInventory(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)

	_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusCancelled, ExpectedVersion: 1})
	require.NoError(t, err)

	assert.Equal(t, inventory.Record{Key: coin, Available: 5}, f.record(t, coin))
	assert.Equal(t, inventory.Record{Key: nugget, Available: 5}, f.record(t, nugget))
	h, _ := f.ledger.Holdings(ctx, "res-1")
	assert.Empty(t, h)
	assert.Empty(t, f.refunder.calls)
	assert.Equal(t, []string{"cancelled"}, f.notifier.types())
}

func TestService_Transition_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds then releases", func(t *testing.T) {
		f, o := newFixture(t)

		_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusRefunded, ExpectedVersion: 1})
		require.NoError(t, err)

		assert.Equal(t, []string{"pay-1"}, f.refunder.calls)
		assert.Equal(t, 5, f.record(t, coin).Available)
	})

	t.Run("gateway failure restores the order", func(t *testing.T) {
		f, o := newFixture(t)
		f.refunder.err = errors.New("gateway down")

		_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusRefunded, ExpectedVersion: 1})
		require.Error(t, err)

		stored, _ := f.repo.Get(ctx, o.ID)
		assert.Equal(t, StatusPaid, stored.Status)
		assert.Equal(t, int64(3), stored.Version)
		assert.Equal(t, 2, f.record(t, coin).Reserved)
		assert.Empty(t, f.notifier.types())

		v, err := f.svc.Status(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusView{OrderID: o.ID, Status: StatusPaid, Version: 3}, v)

		_, err = f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 3})
		assert.NoError(t, err)
	})
}

func TestService_Transition_RefundRacingAnotherWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("writer landing mid refund is rejected", func(t *testing.T) {
		f, o := newFixture(t)
		var raceErr error
		f.refunder.during = func() {
			_, raceErr = f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
		}

		next, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusRefunded, ExpectedVersion: 1})
		require.NoError(t, err)
		assert.Equal(t, StatusRefunded, next.Status)
		assert.ErrorIs(t, raceErr, apperr.ErrVersionConflict)

		stored, _ := f.repo.Get(ctx, o.ID)
		assert.Equal(t, StatusRefunded, stored.Status)
		assert.Equal(t, []string{"pay-1"}, f.refunder.calls)
		assert.Equal(t, 5, f.record(t, coin).Available)
		assert.Equal(t, []string{"refunded"}, f.notifier.types())
	})

	t.Run("cancel landing first means no money moves", func(t *testing.T) {
		f, o := newFixture(t)
		repo := &hookedRepo{Repository: f.repo}
		f.svc.Repo = repo
		repo.afterGet = func() {
			_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusCancelled, ExpectedVersion: 1})
			require.NoError(t, err)
		}

		_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusRefunded, ExpectedVersion: 1})
		assert.ErrorIs(t, err, apperr.ErrVersionConflict)

		stored, _ := f.repo.Get(ctx, o.ID)
		assert.Equal(t, StatusCancelled, stored.Status)
		assert.Empty(t, f.refunder.calls)
		assert.Equal(t, inventory.Record{Key: coin, Available: 5}, f.record(t, coin))
		assert.Equal(t, []string{"cancelled"}, f.notifier.types())
	})
}

func TestService_Transition_NotifyFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)
	f.notifier.err = errors.New("broker down")

	next, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, next.Status)

	stored, _ := f.repo.Get(ctx, o.ID)
	assert.Equal(t, StatusProcessing, stored.Status)
}

func TestService_SetTracking(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected while paid", func(t *testing.T) {
		f, o := newFixture(t)
		_, err := f.svc.SetTracking(ctx, o.ID, "1Z")

		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StatusPaid, te.From)
		assert.NotEmpty(t, te.Reason)
	})

	t.Run("empty tracking is invalid", func(t *testing.T) {
		f, o := newFixture(t)
		_, err := f.svc.SetTracking(ctx, o.ID, "  ")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("sets tracking while processing", func(t *testing.T) {
		f, o := newFixture(t)
		_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
		require.NoError(t, err)

		next, err := f.svc.SetTracking(ctx, o.ID, "1Z42")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, next.Status)
		assert.Equal(t, "1Z42", next.TrackingNumber)
		assert.Equal(t, int64(3), next.Version)
	})
}

func TestService_StatusReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)

	v, err := f.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusView{OrderID: o.ID, Status: StatusPaid, Version: 1}, v)

	cached, ok, _ := f.cache.Get(ctx, o.ID)
	require.True(t, ok)
	assert.Equal(t, v, cached)

	_, err = f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
	require.NoError(t, err)
	cached, ok, _ = f.cache.Get(ctx, o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusView{OrderID: o.ID, Status: StatusProcessing, Version: 2}, cached)

	v, err = f.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, v.Status)
}

func TestService_StatusReadRacingTransitionKeepsNewerView(t *testing.T) {
	ctx := context.Background()
	f, o := newFixture(t)
	repo := &hookedRepo{Repository: f.repo}
	f.svc.Repo = repo

	// the read sees v1, then a transition to processing lands before the
	// read writes its view back
	repo.afterGet = func() {
		_, err := f.svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusProcessing, ExpectedVersion: 1})
		require.NoError(t, err)
	}
	v, err := f.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, v.Status)

	cached, ok, _ := f.cache.Get(ctx, o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusView{OrderID: o.ID, Status: StatusProcessing, Version: 2}, cached)

	v, err = f.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, v.Status)
}

func TestMemoryStatusCache_KeepsNewestVersion(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStatusCache()

	require.NoError(t, c.Set(ctx, StatusView{OrderID: "o1", Status: StatusShipped, Version: 4}))
	require.NoError(t, c.Set(ctx, StatusView{OrderID: "o1", Status: StatusPaid, Version: 1}))
	v, _, _ := c.Get(ctx, "o1")
	assert.Equal(t, StatusShipped, v.Status)

	require.NoError(t, c.Set(ctx, StatusView{OrderID: "o1", Status: StatusDelivered, Version: 5}))
	v, _, _ = c.Get(ctx, "o1")
	assert.Equal(t, StatusDelivered, v.Status)

	require.NoError(t, c.Invalidate(ctx, "o1"))
	_, ok, _ := c.Get(ctx, "o1")
	assert.False(t, ok)
}
