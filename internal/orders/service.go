package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxTrackingAttempts = 3

// Notifier hands order events to whatever informs the customer.
type Notifier interface {
	Notify(ctx context.Context, ev StatusChanged) error
}

type Refunder interface {
	// Refund must be idempotent per payment reference.
	Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) error
}

type TransitionCommand struct {
	OrderID         string
	To              Status
	ExpectedVersion int64
	TrackingNumber  string
}

// Service is the order state machine.
type Service struct {
	Repo     Repository
	Ledger   inventory.Ledger
	Payments Refunder
	Notifier Notifier
	Cache    StatusCache
	Log      *zap.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.Repo.Get(ctx, id)
}

// Status reads through the status cache. Cache failures fall back to the
// repository. The write-back loses to any newer view a transition stored
// meanwhile.
func (s *Service) Status(ctx context.Context, id string) (StatusView, error) {
	if s.Cache != nil {
		v, ok, err := s.Cache.Get(ctx, id)
		if err != nil {
			s.log().Warn("status cache read failed", zap.String("order_id", id), zap.Error(err))
		} else if ok {
			return v, nil
		}
	}
	o, err := s.Repo.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	v := viewOf(o)
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, v); err != nil {
			s.log().Warn("status cache write failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return v, nil
}

// Transition moves an order to cmd.To if the table allows it and nobody
// changed the order since cmd.ExpectedVersion. On error the order keeps its
// status; a refund the gateway rejects still costs a version.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	if !cmd.To.IsValid() {
		return nil, apperr.Invalid(fmt.Sprintf("unknown status %q", cmd.To))
	}
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	if tracking != "" && cmd.To != StatusShipped {
		return nil, apperr.Invalid("tracking number can only accompany a transition to shipped")
	}

	o, err := s.Repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Version != cmd.ExpectedVersion {
		return nil, &ConflictError{OrderID: o.ID, Expected: cmd.ExpectedVersion, Current: o.Version}
	}
	if !CanTransition(o.Status, cmd.To) {
		return nil, &TransitionError{OrderID: o.ID, From: o.Status, To: cmd.To}
	}

	log := s.log().With(zap.String("order_id", o.ID), zap.String("from", string(o.Status)), zap.String("to", string(cmd.To)))

	next := o.Clone()
	next.Status = cmd.To
	if tracking != "" {
		next.TrackingNumber = tracking
	}
	next.Version = o.Version + 1
	next.UpdatedAt = s.now()

	if cmd.To == StatusShipped && next.TrackingNumber == "" {
		log.Warn("order shipped without tracking number")
	}

	if err := s.Repo.Update(ctx, next, cmd.ExpectedVersion); err != nil {
		return nil, err
	}

	// The refund goes out only once refunded is persisted. Refunded is
	// terminal, so no other writer can move the order until it is restored.
	if cmd.To == StatusRefunded {
		if err := s.Payments.Refund(ctx, o.PaymentRef, o.Total); err != nil {
			s.restore(ctx, log, o, next)
			return nil, fmt.Errorf("refund order %s: %w", o.ID, err)
		}
	}

	s.settleInventory(ctx, log, next)
	s.publishView(ctx, next)
	s.notify(ctx, log, EventFor(next, o.Status))

	log.Info("order transitioned", zap.Int64("version", next.Version))
	return next, nil
}

// SetTracking records a tracking number without changing status. It retries
// when the order moves concurrently but still accepts tracking.
func (s *Service) SetTracking(ctx context.Context, orderID, tracking string) (*Order, error) {
	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return nil, apperr.Invalid("tracking number is required")
	}

	var lastErr error
	for range maxTrackingAttempts {
		o, err := s.Repo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !o.Status.AcceptsTracking() {
			return nil, &TransitionError{
				OrderID: o.ID,
				From:    o.Status,
				To:      o.Status,
				Reason:  "tracking number can only be set while processing or shipped",
			}
		}

		next := o.Clone()
		next.TrackingNumber = tracking
		next.Version = o.Version + 1
		next.UpdatedAt = s.now()

		err = s.Repo.Update(ctx, next, o.Version)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publishView(ctx, next)
		return next, nil
	}
	return nil, lastErr
}

// settleInventory releases or commits whatever the order's reservation still
// holds. Failures leave units reserved, which can never oversell; they are
// logged for the operator.
func (s *Service) settleInventory(ctx context.Context, log *zap.Logger, o *Order) {
	var (
		op   func(context.Context, string, inventory.Key, int) error
		verb string
	)
	switch {
	case o.Status.releasesInventory():
		op, verb = s.Ledger.Release, "release"
	case o.Status == StatusDelivered:
		op, verb = s.Ledger.Commit, "commit"
	default:
		return
	}

	holdings, err := s.Ledger.Holdings(ctx, o.ReservationID)
	if err != nil {
		log.Error("inventory holdings lookup failed", zap.String("op", verb), zap.Error(err))
		return
	}
	for _, h := range holdings {
		if err := op(ctx, o.ReservationID, h.Key, h.Quantity); err != nil {
			log.Error("inventory settle failed",
				zap.String("op", verb),
				zap.String("key", h.Key.String()),
				zap.Int("qty", h.Quantity),
				zap.Error(err),
			)
		}
	}
}

// restore puts prev back after a refund that persisted but never went out.
// The version keeps moving forward.
func (s *Service) restore(ctx context.Context, log *zap.Logger, prev, failed *Order) {
	ctx = context.WithoutCancel(ctx)
	back := prev.Clone()
	back.Version = failed.Version + 1
	back.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, back, failed.Version); err != nil {
		log.Error("order left refunded without a refund", zap.Error(err))
		s.publishView(ctx, failed)
		return
	}
	s.publishView(ctx, back)
}

// publishView writes the new status to the cache. A read racing the
// transition cannot overwrite it with an older version; if the write fails
// the entry is dropped instead.
func (s *Service) publishView(ctx context.Context, o *Order) {
	if s.Cache == nil {
		return
	}
	err := s.Cache.Set(ctx, viewOf(o))
	if err == nil {
		return
	}
	s.log().Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	if err := s.Cache.Invalidate(ctx, o.ID); err != nil {
		s.log().Error("status cache invalidate failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, log *zap.Logger, ev StatusChanged) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, ev); err != nil {
		log.Warn("notify failed", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}
