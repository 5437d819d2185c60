// Package inventory is the ledger of sellable units per (product, variant).
// It is the only package allowed to move units between available, reserved
// and sold.
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
)

// Key identifies an inventory record. VariantID is empty for products
// without variants.
type Key struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

func (k Key) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

// Less orders keys by product then variant. Every multi-key reservation
// acquires keys in this order.
func (k Key) Less(o Key) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	return k.VariantID < o.VariantID
}

// Record is a point-in-time view of one key.
// Available+Reserved+Sold is the stock ceiling last set through SetStock.
type Record struct {
	Key       Key `json:"key"`
	Available int `json:"available_count"`
	Reserved  int `json:"reserved_count"`
	Sold      int `json:"sold_count"`
}

func (r Record) Stock() int { return r.Available + r.Reserved + r.Sold }

// Holding is the outstanding reservation of one holder on one key.
type Holding struct {
	Key      Key `json:"key"`
	Quantity int `json:"quantity"`
}

type Ledger interface {
	// TryReserve moves qty units of key from available to reserved on behalf
	// of holder, or fails with *InsufficientError and changes nothing.
	TryReserve(ctx context.Context, holder string, key Key, qty int) error
	// Release returns qty reserved units of holder back to available.
	Release(ctx context.Context, holder string, key Key, qty int) error
	// Commit turns qty reserved units of holder into sold units.
	Commit(ctx context.Context, holder string, key Key, qty int) error
	// Holdings lists the outstanding reservations of holder.
	Holdings(ctx context.Context, holder string) ([]Holding, error)
	Available(ctx context.Context, key Key) (int, error)
	Record(ctx context.Context, key Key) (Record, error)
	// SetStock sets the stock ceiling of key. Outstanding reservations and
	// sales are kept; the call fails if the new ceiling is below them.
	SetStock(ctx context.Context, key Key, stock int) error
}

var ErrReservationNotHeld = apperr.New("RESERVATION_NOT_HELD", "holder does not hold that many reserved units")

// Shortage describes one line that could not be reserved.
type Shortage struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientError reports every line that lacks stock. It unwraps to
// apperr.ErrInsufficientInventory.
type InsufficientError struct {
	Shortages []Shortage
}

func NewInsufficientError(key Key, requested, available int) *InsufficientError {
	return &InsufficientError{Shortages: []Shortage{{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Requested: requested,
		Available: available,
	}}}
}

func (e *InsufficientError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		k := Key{ProductID: s.ProductID, VariantID: s.VariantID}
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", k, s.Requested, s.Available))
	}
	return "insufficient inventory: " + strings.Join(parts, ", ")
}

func (e *InsufficientError) Unwrap() error { return apperr.ErrInsufficientInventory }

func validQty(qty int) error {
	if qty <= 0 {
		return apperr.Invalid(fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	return nil
}
