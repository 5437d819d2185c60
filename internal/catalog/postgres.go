package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres reads the catalog tables. Prices are selected as text so the
// NUMERIC value reaches decimal.Decimal without float rounding.
type Postgres struct{ DB *pgxpool.Pool }

func (r *Postgres) Product(ctx context.Context, productID string) (Product, error) {
	var (
		p     Product
		price string
	)
	err := r.DB.QueryRow(ctx, `SELECT id, sku, name, price::text FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.SKU, &p.Name, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.NotFound(fmt.Sprintf("product %s not found", productID))
	}
	if err != nil {
		return Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("product %s price: %w", productID, err)
	}

	byID, err := r.variants(ctx, `WHERE product_id=$1`, productID)
	if err != nil {
		return Product{}, err
	}
	p.Variants = byID[p.ID]
	return p, nil
}

func (r *Postgres) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, sku, name, price::text FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p     Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &price); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s price: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID, err := r.variants(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Variants = byID[out[i].ID]
	}
	return out, nil
}

func (r *Postgres) variants(ctx context.Context, where string, args ...any) (map[string][]Variant, error) {
	rows, err := r.DB.Query(ctx, `SELECT product_id, id, name, price_override::text
		FROM product_variants `+where+` ORDER BY product_id, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Variant{}
	for rows.Next() {
		var (
			productID string
			v         Variant
			override  *string
		)
		if err := rows.Scan(&productID, &v.ID, &v.Name, &override); err != nil {
			return nil, err
		}
		if override != nil {
			d, err := decimal.NewFromString(*override)
			if err != nil {
				return nil, fmt.Errorf("variant %s price: %w", v.ID, err)
			}
			v.Price = &d
		}
		out[productID] = append(out[productID], v)
	}
	return out, rows.Err()
}

var _ Catalog = (*Postgres)(nil)
