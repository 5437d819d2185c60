package checkout

import (
	"context"

	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/shopspring/decimal"
)

type Quote struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// Quoter prices shipping and tax for a set of frozen order lines.
type Quoter interface {
	Quote(ctx context.Context, items []orders.LineItem, subtotal decimal.Decimal) (Quote, error)
}

// FlatQuoter charges a fixed shipping fee and a flat tax rate on the
// subtotal, rounded to cents. The zero value quotes nothing.
type FlatQuoter struct {
	Shipping decimal.Decimal
	TaxRate  decimal.Decimal
}

func (q FlatQuoter) Quote(_ context.Context, _ []orders.LineItem, subtotal decimal.Decimal) (Quote, error) {
	return Quote{
		Shipping: q.Shipping,
		Tax:      subtotal.Mul(q.TaxRate).Round(2),
	}, nil
}
