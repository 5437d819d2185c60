package cart

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned by Store.Save when the stored cart moved past the
// version the caller loaded.
var ErrStale = errors.New("cart was modified concurrently")

type Store interface {
	// Load returns the cart, or an empty cart at version 0 if none exists.
	Load(ctx context.Context, id string) (*Cart, error)
	// Save writes c if the stored version still equals c.Version and then
	// advances c.Version.
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]Cart)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return &Cart{ID: id}, nil
	}
	c.Items = append([]Item(nil), c.Items...)
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, c *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts[c.ID].Version != c.Version {
		return ErrStale
	}
	next := *c
	next.Version++
	next.Items = append([]Item(nil), c.Items...)
	s.carts[c.ID] = next
	c.Version = next.Version
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
