package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/cart"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps attempts in process and writes orders to Orders under
// the same lock that settles the attempt.
type MemoryStore struct {
	Orders orders.Repository
	Now    func() time.Time

	mu       sync.Mutex
	attempts map[string]*Attempt
}

func NewMemoryStore(repo orders.Repository) *MemoryStore {
	return &MemoryStore{Orders: repo, attempts: make(map[string]*Attempt)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func clone(a *Attempt) Attempt {
	c := *a
	c.Snapshot = append([]cart.Item(nil), a.Snapshot...)
	return c
}

func (s *MemoryStore) Begin(_ context.Context, a Attempt) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.attempts[a.Key]
	if ok && cur.Status != AttemptFailed {
		return clone(cur), nil
	}
	now := s.now()
	next := clone(&a)
	next.Status = AttemptPending
	next.OrderID, next.PaymentRef, next.FailureCode = "", "", ""
	next.Amount = decimal.Zero
	next.CreatedAt, next.UpdatedAt = now, now
	if ok {
		next.CreatedAt = cur.CreatedAt
	}
	s.attempts[a.Key] = &next
	return clone(&next), nil
}

// pending returns the attempt if it is pending under reservationID.
func (s *MemoryStore) pending(key, reservationID string) (*Attempt, error) {
	a, ok := s.attempts[key]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("checkout attempt %s not found", key))
	}
	if a.Status != AttemptPending || a.ReservationID != reservationID {
		return nil, ErrNotPending
	}
	return a, nil
}

func (s *MemoryStore) RecordPayment(_ context.Context, key, reservationID, paymentRef string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.pending(key, reservationID)
	if err != nil {
		return err
	}
	a.PaymentRef, a.Amount, a.UpdatedAt = paymentRef, amount, s.now()
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, key, reservationID string, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.pending(key, reservationID)
	if err != nil {
		return err
	}
	if err := s.Orders.Create(ctx, o); err != nil {
		return err
	}
	a.Status, a.OrderID, a.PaymentRef, a.Amount = AttemptSucceeded, o.ID, o.PaymentRef, o.Total
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, key, reservationID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.pending(key, reservationID)
	if err != nil {
		return err
	}
	a.Status, a.FailureCode, a.UpdatedAt = AttemptFailed, code, s.now()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[key]
	if !ok {
		return Attempt{}, apperr.NotFound(fmt.Sprintf("checkout attempt %s not found", key))
	}
	return clone(a), nil
}

func (s *MemoryStore) FindStale(_ context.Context, cutoff time.Time, limit int) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attempt
	for _, a := range s.attempts {
		if a.Status == AttemptPending && a.UpdatedAt.Before(cutoff) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, a := range s.attempts {
		if a.Status != AttemptPending && a.UpdatedAt.Before(cutoff) {
			delete(s.attempts, k)
			n++
		}
	}
	return n, nil
}

var _ AttemptStore = (*MemoryStore)(nil)
