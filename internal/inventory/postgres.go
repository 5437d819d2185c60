package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger keeps counters in the inventory table. Every mutation runs
// in its own transaction and takes the row lock (FOR UPDATE) of the key it
// touches, so contention is per (product, variant) row.
type PostgresLedger struct{ DB *pgxpool.Pool }

func (r *PostgresLedger) TryReserve(ctx context.Context, holder string, key Key, qty int) error {
	if err := validQty(qty); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var available int
	err = tx.QueryRow(ctx, `SELECT available_count FROM inventory
		WHERE product_id=$1 AND variant_id=$2 FOR UPDATE`, key.ProductID, key.VariantID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return NewInsufficientError(key, qty, 0)
	}
	if err != nil {
		return err
	}
	if available < qty {
		return NewInsufficientError(key, qty, available)
	}

	ct, err := tx.Exec(ctx, `UPDATE inventory
		SET available_count = available_count - $3, reserved_count = reserved_count + $3, updated_at = now()
		WHERE product_id=$1 AND variant_id=$2`, key.ProductID, key.VariantID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return NewInsufficientError(key, qty, available)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(holder, product_id, variant_id, qty)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (holder, product_id, variant_id)
		DO UPDATE SET qty = reservations.qty + EXCLUDED.qty, updated_at = now()
	`, holder, key.ProductID, key.VariantID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresLedger) Release(ctx context.Context, holder string, key Key, qty int) error {
	return r.settle(ctx, holder, key, qty, `UPDATE inventory
		SET available_count = available_count + $3, reserved_count = reserved_count - $3, updated_at = now()
		WHERE product_id=$1 AND variant_id=$2`)
}

func (r *PostgresLedger) Commit(ctx context.Context, holder string, key Key, qty int) error {
	return r.settle(ctx, holder, key, qty, `UPDATE inventory
		SET sold_count = sold_count + $3, reserved_count = reserved_count - $3, updated_at = now()
		WHERE product_id=$1 AND variant_id=$2`)
}

// settle locks the inventory row before the reservation row, the same order
// TryReserve uses.
func (r *PostgresLedger) settle(ctx context.Context, holder string, key Key, qty int, counterSQL string) error {
	if err := validQty(qty); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM inventory WHERE product_id=$1 AND variant_id=$2 FOR UPDATE`,
		key.ProductID, key.VariantID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s on %s: %w", holder, key, ErrReservationNotHeld)
	}
	if err != nil {
		return err
	}

	var held int
	err = tx.QueryRow(ctx, `SELECT qty FROM reservations
		WHERE holder=$1 AND product_id=$2 AND variant_id=$3 FOR UPDATE`, holder, key.ProductID, key.VariantID).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && held < qty) {
		return fmt.Errorf("%s on %s: %w", holder, key, ErrReservationNotHeld)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE reservations SET qty = qty - $4, updated_at = now()
		WHERE holder=$1 AND product_id=$2 AND variant_id=$3`, holder, key.ProductID, key.VariantID, qty); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, counterSQL, key.ProductID, key.VariantID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresLedger) Holdings(ctx context.Context, holder string) ([]Holding, error) {
	rows, err := r.DB.Query(ctx, `SELECT product_id, variant_id, qty FROM reservations
		WHERE holder=$1 AND qty > 0 ORDER BY product_id, variant_id`, holder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.Key.ProductID, &h.Key.VariantID, &h.Quantity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PostgresLedger) Available(ctx context.Context, key Key) (int, error) {
	rec, err := r.Record(ctx, key)
	return rec.Available, err
}

func (r *PostgresLedger) Record(ctx context.Context, key Key) (Record, error) {
	rec := Record{Key: key}
	err := r.DB.QueryRow(ctx, `SELECT available_count, reserved_count, sold_count FROM inventory
		WHERE product_id=$1 AND variant_id=$2`, key.ProductID, key.VariantID).Scan(&rec.Available, &rec.Reserved, &rec.Sold)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, nil
	}
	return rec, err
}

func (r *PostgresLedger) SetStock(ctx context.Context, key Key, stock int) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO inventory(product_id, variant_id, available_count)
		VALUES ($1,$2,0) ON CONFLICT (product_id, variant_id) DO NOTHING`, key.ProductID, key.VariantID); err != nil {
		return err
	}
	var committed int
	if err := tx.QueryRow(ctx, `SELECT reserved_count + sold_count FROM inventory
		WHERE product_id=$1 AND variant_id=$2 FOR UPDATE`, key.ProductID, key.VariantID).Scan(&committed); err != nil {
		return err
	}
	if stock < committed {
		return fmt.Errorf("set stock %s to %d: %d units already reserved or sold", key, stock, committed)
	}
	if _, err := tx.Exec(ctx, `UPDATE inventory SET available_count = $3, updated_at = now()
		WHERE product_id=$1 AND variant_id=$2`, key.ProductID, key.VariantID, stock-committed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var _ Ledger = (*PostgresLedger)(nil)
