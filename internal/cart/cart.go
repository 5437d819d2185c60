// Package cart holds purchase intent. Quantities are advisory: nothing here
// reserves inventory.
package cart

import (
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/shopspring/decimal"
)

// Cart is keyed by its owner (session or user id). Version guards
// concurrent writers of the same cart.
type Cart struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Item struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

func (i Item) Key() inventory.Key {
	return inventory.Key{ProductID: i.ProductID, VariantID: i.VariantID}
}

func (c *Cart) indexOf(itemID string) int {
	for i, it := range c.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) indexOfKey(k inventory.Key) int {
	for i, it := range c.Items {
		if it.Key() == k {
			return i
		}
	}
	return -1
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// PricedItem is a cart line priced at read time.
type PricedItem struct {
	Item
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// View is what callers see: lines priced from the current catalog.
type View struct {
	ID       string          `json:"id"`
	Items    []PricedItem    `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Version  int64           `json:"version"`
}
