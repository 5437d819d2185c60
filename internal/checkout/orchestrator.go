package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/cart"
	"github.com/adamdasovich/goldventure-sub001/internal/catalog"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/adamdasovich/goldventure-sub001/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Request struct {
	CartID         string
	IdempotencyKey string
	PaymentMethod  string
}

type Orchestrator struct {
	Carts    cart.Store
	Catalog  catalog.Catalog
	Ledger   inventory.Ledger
	Attempts AttemptStore
	Orders   orders.Repository
	Payments payment.Gateway
	Quoter   Quoter
	Notifier orders.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// Checkout converts the cart into a paid order. Calls with the same
// idempotency key yield at most one order; a replay returns it unchanged.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*orders.Order, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return nil, apperr.Invalid("idempotency key is required")
	}
	if req.CartID == "" {
		return nil, apperr.Invalid("cart id is required")
	}

	c, err := o.Carts.Load(ctx, req.CartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	mine := Attempt{
		Key:           req.IdempotencyKey,
		CartID:        req.CartID,
		ReservationID: uuid.NewString(),
		Snapshot:      c.Items,
	}
	a, err := o.Attempts.Begin(ctx, mine)
	if err != nil {
		return nil, fmt.Errorf("begin checkout: %w", err)
	}
	switch {
	case a.Status == AttemptSucceeded:
		return o.Orders.Get(ctx, a.OrderID)
	case a.ReservationID != mine.ReservationID:
		return nil, apperr.ErrCheckoutInProgress
	}

	log := o.log().With(
		zap.String("idempotency_key", a.Key),
		zap.String("cart_id", a.CartID),
		zap.String("reservation_id", a.ReservationID),
	)

	order, err := o.run(ctx, log, req, a)
	if err != nil {
		o.abort(ctx, log, a, err)
		return nil, err
	}
	return order, nil
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, req Request, a Attempt) (*orders.Order, error) {
	if len(a.Snapshot) == 0 {
		return nil, apperr.Invalid("cart is empty")
	}

	lines, subtotal, err := o.freeze(ctx, a.Snapshot)
	if err != nil {
		return nil, err
	}
	if err := o.reserve(ctx, a.ReservationID, lines); err != nil {
		return nil, err
	}

	q, err := o.Quoter.Quote(ctx, lines, subtotal)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	total := subtotal.Add(q.Shipping).Add(q.Tax)

	receipt, err := o.Payments.Capture(ctx, payment.Charge{
		IdempotencyKey: a.ReservationID,
		Amount:         total,
		Method:         req.PaymentMethod,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrPaymentDeclined) {
			err = fmt.Errorf("capture payment: %w", err)
		}
		return nil, err
	}
	if err := o.Attempts.RecordPayment(ctx, a.Key, a.ReservationID, receipt.Ref, total); err != nil {
		log.Warn("record payment on attempt failed", zap.String("payment_ref", receipt.Ref), zap.Error(err))
	}

	now := o.now()
	order := &orders.Order{
		ID:             uuid.NewString(),
		CartID:         a.CartID,
		IdempotencyKey: a.Key,
		ReservationID:  a.ReservationID,
		PaymentRef:     receipt.Ref,
		Items:          lines,
		Subtotal:       subtotal,
		Shipping:       q.Shipping,
		Tax:            q.Tax,
		Total:          total,
		Status:         orders.StatusPaid,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := o.Attempts.Complete(ctx, a.Key, a.ReservationID, order); err != nil {
		if rerr := o.Payments.Refund(ctx, receipt.Ref, total); rerr != nil {
			log.Error("refund after failed completion failed", zap.String("payment_ref", receipt.Ref), zap.Error(rerr))
		}
		if errors.Is(err, ErrNotPending) {
			return nil, apperr.ErrCheckoutExpired
		}
		return nil, fmt.Errorf("complete checkout: %w", err)
	}

	if err := o.Carts.Delete(ctx, a.CartID); err != nil {
		log.Warn("clear cart after checkout failed", zap.Error(err))
	}
	if o.Notifier != nil {
		if err := o.Notifier.Notify(ctx, orders.EventFor(order, "")); err != nil {
			log.Warn("notify paid failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	log.Info("checkout succeeded", zap.String("order_id", order.ID), zap.String("total", total.StringFixed(2)))
	return order, nil
}

// freeze prices every cart line from the catalog as of now.
func (o *Orchestrator) freeze(ctx context.Context, items []cart.Item) ([]orders.LineItem, decimal.Decimal, error) {
	lines := make([]orders.LineItem, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, decimal.Zero, apperr.Invalid(fmt.Sprintf("cart line %s has quantity %d", it.ID, it.Quantity))
		}
		p, price, err := catalog.Price(ctx, o.Catalog, it.ProductID, it.VariantID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		total := price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		lines = append(lines, orders.LineItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      p.DisplayName(it.VariantID),
			UnitPrice: price,
			Quantity:  it.Quantity,
			LineTotal: total,
		})
		subtotal = subtotal.Add(total)
	}
	return lines, subtotal, nil
}

// reserve takes every needed unit in key order or nothing. On a shortage the
// remaining keys are still checked so the error names every short line.
func (o *Orchestrator) reserve(ctx context.Context, holder string, lines []orders.LineItem) error {
	need := map[inventory.Key]int{}
	for _, li := range lines {
		need[li.Key()] += li.Quantity
	}
	keys := make([]inventory.Key, 0, len(need))
	for k := range need {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var short *inventory.InsufficientError
	for _, k := range keys {
		if short != nil {
			avail, err := o.Ledger.Available(ctx, k)
			if err != nil {
				return err
			}
			if avail < need[k] {
				short.Shortages = append(short.Shortages, inventory.NewInsufficientError(k, need[k], avail).Shortages...)
			}
			continue
		}
		err := o.Ledger.TryReserve(ctx, holder, k, need[k])
		if errors.As(err, &short) {
			continue
		}
		if err != nil {
			return err
		}
	}
	if short != nil {
		return short
	}
	return nil
}

// abort settles a failed run: the attempt is marked failed and whatever the
// reservation still holds goes back to available.
func (o *Orchestrator) abort(ctx context.Context, log *zap.Logger, a Attempt, cause error) {
	// the caller's context may be gone; cleanup must still happen
	ctx = context.WithoutCancel(ctx)

	code := apperr.Code(cause)
	if code == "" {
		code = "INTERNAL"
	}
	if err := o.Attempts.Fail(ctx, a.Key, a.ReservationID, code); err != nil && !errors.Is(err, ErrNotPending) {
		log.Error("mark attempt failed", zap.Error(err))
	}
	releaseHoldings(ctx, log, o.Ledger, a.ReservationID)
	log.Info("checkout failed", zap.String("code", code), zap.Error(cause))
}

func releaseHoldings(ctx context.Context, log *zap.Logger, ledger inventory.Ledger, holder string) int {
	holdings, err := ledger.Holdings(ctx, holder)
	if err != nil {
		log.Error("list holdings", zap.Error(err))
		return 0
	}
	released := 0
	for _, h := range holdings {
		if err := ledger.Release(ctx, holder, h.Key, h.Quantity); err != nil {
			log.Error("release reservation",
				zap.String("key", h.Key.String()),
				zap.Int("qty", h.Quantity),
				zap.Error(err),
			)
			continue
		}
		released += h.Quantity
	}
	return released
}
