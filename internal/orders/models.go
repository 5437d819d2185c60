package orders

import (
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/shopspring/decimal"
)

// LineItem is frozen at checkout; later catalog changes never touch it.
type LineItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func (li LineItem) Key() inventory.Key {
	return inventory.Key{ProductID: li.ProductID, VariantID: li.VariantID}
}

// Order is immutable after creation except for Status and TrackingNumber;
// Version and UpdatedAt move with them.
type Order struct {
	ID             string          `json:"id"`
	CartID         string          `json:"cart_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	ReservationID  string          `json:"-"`
	PaymentRef     string          `json:"payment_ref,omitempty"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	Status         Status          `json:"status"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a copy that shares no slices with o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	return &c
}
