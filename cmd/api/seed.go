package main

import (
	"context"

	"github.com/adamdasovich/goldventure-sub001/internal/catalog"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/adamdasovich/goldventure-sub001/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var demoCatalog = []catalog.Product{
	{ID: "coin-1849", SKU: "GV-C1849", Name: "1849 Liberty Head Gold Dollar", Price: *price("1895.00")},
	{ID: "nugget", SKU: "GV-NUG", Name: "Klondike Gold Nugget", Price: *price("95.00"), Variants: []catalog.Variant{
		{ID: "1g", Name: "1 g"},
		{ID: "5g", Name: "5 g", Price: price("450.00")},
		{ID: "10g", Name: "10 g", Price: price("880.00")},
	}},
	{ID: "bar", SKU: "GV-BAR", Name: "Cast Gold Bar", Price: *price("2650.00"), Variants: []catalog.Variant{
		{ID: "1oz", Name: "1 troy oz"},
	}},
	{ID: "pan", SKU: "GV-PAN", Name: "Prospector's Steel Pan", Price: *price("34.50")},
}

var demoStock = map[inventory.Key]int{
	{ProductID: "coin-1849"}:                5,
	{ProductID: "nugget", VariantID: "1g"}:  40,
	{ProductID: "nugget", VariantID: "5g"}:  12,
	{ProductID: "nugget", VariantID: "10g"}: 6,
	{ProductID: "bar", VariantID: "1oz"}:    10,
	{ProductID: "pan"}:                      200,
}

func seedDemo(ctx context.Context, db *pgxpool.Pool, ledger inventory.Ledger) error {
	if err := postgres.SeedCatalog(ctx, db, demoCatalog); err != nil {
		return err
	}
	return postgres.SeedStock(ctx, ledger, demoStock)
}
