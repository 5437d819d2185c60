package orders

import (
	"context"
	"sync"
)

type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	Create(ctx context.Context, o *Order) error
	// Update stores o's status and tracking number if the stored version is
	// still expected. o.Version must already hold the new version.
	Update(ctx context.Context, o *Order, expected int64) error
}

type MemoryRepo struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[string]*Order)}
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, notFound(id)
	}
	return o.Clone(), nil
}

func (r *MemoryRepo) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, o *Order, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return notFound(o.ID)
	}
	if cur.Version != expected {
		return &ConflictError{OrderID: o.ID, Expected: expected, Current: cur.Version}
	}
	next := cur.Clone()
	next.Status = o.Status
	next.TrackingNumber = o.TrackingNumber
	next.Version = o.Version
	next.UpdatedAt = o.UpdatedAt
	r.orders[o.ID] = next
	return nil
}

var _ Repository = (*MemoryRepo)(nil)
