package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeclineMethod is the payment method token the simulated gateway always
// refuses.
const DeclineMethod = "tok_declined"

type capture struct {
	receipt  Receipt
	declined string
}

// Simulated is an in-process gateway. Results are remembered per
// idempotency key the way a real provider would.
type Simulated struct {
	// Latency is added to every call.
	Latency time.Duration
	// Decline, when set, decides which charges are refused. The default
	// refuses DeclineMethod.
	Decline func(Charge) (reason string, declined bool)

	mu       sync.RWMutex
	captures map[string]capture
	byRef    map[string]decimal.Decimal
	refunded map[string]bool
}

func NewSimulated() *Simulated {
	return &Simulated{
		captures: make(map[string]capture),
		byRef:    make(map[string]decimal.Decimal),
		refunded: make(map[string]bool),
	}
}

func (g *Simulated) wait(ctx context.Context) error {
	if g.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Simulated) decline(c Charge) (string, bool) {
	if g.Decline != nil {
		return g.Decline(c)
	}
	if c.Method == DeclineMethod {
		return "card declined", true
	}
	return "", false
}

func (g *Simulated) Capture(ctx context.Context, c Charge) (Receipt, error) {
	if !c.Amount.IsPositive() {
		return Receipt{}, apperr.Invalid("capture amount must be positive")
	}

	g.mu.RLock()
	prev, seen := g.captures[c.IdempotencyKey]
	g.mu.RUnlock()
	if seen {
		return prev.result()
	}

	if err := g.wait(ctx); err != nil {
		return Receipt{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, seen := g.captures[c.IdempotencyKey]; seen {
		return prev.result()
	}
	var res capture
	if reason, declined := g.decline(c); declined {
		res.declined = reason
	} else {
		res.receipt = Receipt{Ref: "pay_" + uuid.NewString(), Amount: c.Amount}
		g.byRef[res.receipt.Ref] = c.Amount
	}
	g.captures[c.IdempotencyKey] = res
	return res.result()
}

func (c capture) result() (Receipt, error) {
	if c.declined != "" {
		return Receipt{}, Declined(c.declined)
	}
	return c.receipt, nil
}

func (g *Simulated) Refund(ctx context.Context, ref string, amount decimal.Decimal) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	captured, ok := g.byRef[ref]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("payment %s not found", ref))
	}
	if amount.GreaterThan(captured) {
		return apperr.Invalid(fmt.Sprintf("refund %s exceeds captured %s", amount, captured))
	}
	g.refunded[ref] = true
	return nil
}

// Refunded reports whether ref has been refunded.
func (g *Simulated) Refunded(ref string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refunded[ref]
}

var _ Gateway = (*Simulated)(nil)
