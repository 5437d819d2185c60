package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"go.uber.org/zap"
)

const defaultReapBatch = 100

// Reaper fails checkout attempts stuck in pending and gives their
// reservations back. It also drops settled attempts past retention.
type Reaper struct {
	Attempts AttemptStore
	Ledger   inventory.Ledger
	Payments orders.Refunder
	// Timeout is how long an attempt may stay pending.
	Timeout   time.Duration
	Retention time.Duration
	Interval  time.Duration
	Batch     int
	Log       *zap.Logger
	Now       func() time.Time
}

func (r *Reaper) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reaper) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.log().Info("checkout reaper started",
		zap.Duration("interval", r.Interval),
		zap.Duration("timeout", r.Timeout),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log().Error("reaper sweep failed", zap.Error(err))
			}
			if r.Retention > 0 {
				if _, err := r.Purge(ctx); err != nil {
					r.log().Error("attempt purge failed", zap.Error(err))
				}
			}
		}
	}
}

// Sweep fails one batch of stale attempts and reports how many it settled.
// An attempt that completes concurrently is left alone.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = defaultReapBatch
	}
	stale, err := r.Attempts.FindStale(ctx, r.now().Add(-r.Timeout), batch)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, a := range stale {
		log := r.log().With(zap.String("idempotency_key", a.Key), zap.String("reservation_id", a.ReservationID))

		err := r.Attempts.Fail(ctx, a.Key, a.ReservationID, "EXPIRED")
		if errors.Is(err, ErrNotPending) {
			continue
		}
		if err != nil {
			log.Error("fail stale attempt", zap.Error(err))
			continue
		}
		reaped++

		units := releaseHoldings(ctx, log, r.Ledger, a.ReservationID)
		if a.PaymentRef != "" && r.Payments != nil {
			if err := r.Payments.Refund(ctx, a.PaymentRef, a.Amount); err != nil {
				log.Error("refund stale attempt", zap.String("payment_ref", a.PaymentRef), zap.Error(err))
			}
		}
		log.Warn("reaped stale checkout attempt", zap.Int("released_units", units), zap.Time("last_update", a.UpdatedAt))
	}
	return reaped, nil
}

func (r *Reaper) Purge(ctx context.Context) (int, error) {
	n, err := r.Attempts.Purge(ctx, r.now().Add(-r.Retention))
	if err == nil && n > 0 {
		r.log().Info("purged checkout attempts", zap.Int("count", n))
	}
	return n, err
}
