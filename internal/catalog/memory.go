package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
)

// Memory is an in-process catalog used by tests and the demo seed.
type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[string]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put inserts or replaces a product, which is how price changes show up.
func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) Product(_ context.Context, productID string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return Product{}, apperr.NotFound(fmt.Sprintf("product %s not found", productID))
	}
	return p, nil
}

func (m *Memory) List(_ context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

var _ Catalog = (*Memory)(nil)
