package postgres

import (
	"context"

	"github.com/adamdasovich/goldventure-sub001/internal/catalog"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedCatalog upserts products and their variants.
func SeedCatalog(ctx context.Context, db *pgxpool.Pool, products []catalog.Product) error {
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		for _, p := range products {
			if _, err := tx.Exec(ctx, `
				INSERT INTO products(id, sku, name, price) VALUES ($1,$2,$3,$4::numeric)
				ON CONFLICT (id) DO UPDATE SET sku=EXCLUDED.sku, name=EXCLUDED.name, price=EXCLUDED.price`,
				p.ID, p.SKU, p.Name, p.Price.String()); err != nil {
				return err
			}
			for _, v := range p.Variants {
				var override *string
				if v.Price != nil {
					s := v.Price.String()
					override = &s
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO product_variants(product_id, id, name, price_override) VALUES ($1,$2,$3,$4::numeric)
					ON CONFLICT (product_id, id) DO UPDATE SET name=EXCLUDED.name, price_override=EXCLUDED.price_override`,
					p.ID, v.ID, v.Name, override); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SeedStock sets the stock ceiling of every key through the ledger.
func SeedStock(ctx context.Context, ledger inventory.Ledger, stock map[inventory.Key]int) error {
	for k, n := range stock {
		if err := ledger.SetStock(ctx, k, n); err != nil {
			return err
		}
	}
	return nil
}
