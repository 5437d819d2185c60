package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryLedger keeps counters in process. Each key has its own mutex; the
// map lock is only taken to find or create an entry, so reservations on
// different keys never wait on each other.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[Key]*entry
}

type entry struct {
	mu        sync.Mutex
	available int
	reserved  int
	sold      int
	holders   map[string]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[Key]*entry)}
}

func (l *MemoryLedger) lookup(key Key) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[key]
}

func (l *MemoryLedger) getOrCreate(key Key) *entry {
	if e := l.lookup(key); e != nil {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e
	}
	e := &entry{holders: make(map[string]int)}
	l.entries[key] = e
	return e
}

func (l *MemoryLedger) TryReserve(_ context.Context, holder string, key Key, qty int) error {
	if err := validQty(qty); err != nil {
		return err
	}
	e := l.lookup(key)
	if e == nil {
		return NewInsufficientError(key, qty, 0)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available < qty {
		return NewInsufficientError(key, qty, e.available)
	}
	e.available -= qty
	e.reserved += qty
	e.holders[holder] += qty
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, holder string, key Key, qty int) error {
	return l.settle(holder, key, qty, func(e *entry) { e.available += qty })
}

func (l *MemoryLedger) Commit(_ context.Context, holder string, key Key, qty int) error {
	return l.settle(holder, key, qty, func(e *entry) { e.sold += qty })
}

// settle removes qty from holder's reservation on key and hands the units
// to apply.
func (l *MemoryLedger) settle(holder string, key Key, qty int, apply func(*entry)) error {
	if err := validQty(qty); err != nil {
		return err
	}
	e := l.lookup(key)
	if e == nil {
		return fmt.Errorf("%s on %s: %w", holder, key, ErrReservationNotHeld)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holders[holder] < qty {
		return fmt.Errorf("%s on %s: %w", holder, key, ErrReservationNotHeld)
	}
	e.holders[holder] -= qty
	if e.holders[holder] == 0 {
		delete(e.holders, holder)
	}
	e.reserved -= qty
	apply(e)
	return nil
}

func (l *MemoryLedger) Holdings(_ context.Context, holder string) ([]Holding, error) {
	l.mu.RLock()
	keys := make([]Key, 0, len(l.entries))
	entries := make([]*entry, 0, len(l.entries))
	for k, e := range l.entries {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var out []Holding
	for i, e := range entries {
		e.mu.Lock()
		if q := e.holders[holder]; q > 0 {
			out = append(out, Holding{Key: keys[i], Quantity: q})
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

func (l *MemoryLedger) Available(ctx context.Context, key Key) (int, error) {
	r, err := l.Record(ctx, key)
	return r.Available, err
}

func (l *MemoryLedger) Record(_ context.Context, key Key) (Record, error) {
	e := l.lookup(key)
	if e == nil {
		return Record{Key: key}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Record{Key: key, Available: e.available, Reserved: e.reserved, Sold: e.sold}, nil
}

func (l *MemoryLedger) SetStock(_ context.Context, key Key, stock int) error {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	available := stock - e.reserved - e.sold
	if available < 0 {
		return fmt.Errorf("set stock %s to %d: %d units already reserved or sold", key, stock, e.reserved+e.sold)
	}
	e.available = available
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)
