// Package checkout turns a cart into an order. It reserves inventory for
// every line or none, captures payment and guarantees at most one order per
// idempotency key.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/cart"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt is one logical checkout. ReservationID changes every time the
// attempt is (re)armed and is the ledger holder of its reservations.
type Attempt struct {
	Key           string          `json:"idempotency_key"`
	CartID        string          `json:"cart_id"`
	ReservationID string          `json:"reservation_id"`
	Status        AttemptStatus   `json:"status"`
	Snapshot      []cart.Item     `json:"cart_snapshot"`
	OrderID       string          `json:"order_id,omitempty"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	FailureCode   string          `json:"failure_code,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ErrNotPending is returned when a compare-and-set on a pending attempt
// finds it already settled, usually by the reaper.
var ErrNotPending = errors.New("checkout attempt is no longer pending")

type AttemptStore interface {
	// Begin stores a as pending unless an attempt with the same key exists.
	// A failed attempt is re-armed with a's fields. The stored attempt is
	// returned; callers compare its ReservationID with their own to learn
	// whether they own it.
	Begin(ctx context.Context, a Attempt) (Attempt, error)
	// RecordPayment notes a captured payment on a pending attempt.
	RecordPayment(ctx context.Context, key, reservationID, paymentRef string, amount decimal.Decimal) error
	// Complete marks the attempt succeeded and persists o atomically.
	Complete(ctx context.Context, key, reservationID string, o *orders.Order) error
	// Fail marks a pending attempt failed, or returns ErrNotPending.
	Fail(ctx context.Context, key, reservationID, code string) error
	Get(ctx context.Context, key string) (Attempt, error)
	// FindStale lists attempts still pending that were last touched before
	// cutoff.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]Attempt, error)
	// Purge deletes settled attempts last touched before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}
