// Package catalog is the read side of the product catalog the storefront
// prices carts and orders from. The catalog itself is owned elsewhere.
package catalog

import (
	"context"
	"fmt"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Variants []Variant       `json:"variants,omitempty"`
}

// Variant optionally overrides the product price.
type Variant struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

type Catalog interface {
	Product(ctx context.Context, productID string) (Product, error)
	List(ctx context.Context) ([]Product, error)
}

func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// UnitPrice resolves the effective price of the product or one of its
// variants. An empty variantID means the base product.
func (p Product) UnitPrice(variantID string) (decimal.Decimal, error) {
	if variantID == "" {
		return p.Price, nil
	}
	v, ok := p.Variant(variantID)
	if !ok {
		return decimal.Zero, apperr.NotFound(fmt.Sprintf("variant %s of product %s not found", variantID, p.ID))
	}
	if v.Price != nil {
		return *v.Price, nil
	}
	return p.Price, nil
}

// DisplayName joins product and variant names for order lines.
func (p Product) DisplayName(variantID string) string {
	if v, ok := p.Variant(variantID); ok && v.Name != "" {
		return p.Name + " - " + v.Name
	}
	return p.Name
}

// Price resolves a single (product, variant) price through c.
func Price(ctx context.Context, c Catalog, productID, variantID string) (Product, decimal.Decimal, error) {
	p, err := c.Product(ctx, productID)
	if err != nil {
		return Product{}, decimal.Zero, err
	}
	price, err := p.UnitPrice(variantID)
	if err != nil {
		return Product{}, decimal.Zero, err
	}
	return p, price, nil
}
