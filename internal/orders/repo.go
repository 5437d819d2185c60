package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the PostgreSQL order repository. Money columns are NUMERIC and
// travel as text.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := InsertTx(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertTx writes o and its line items inside tx, so checkout can create the
// order in the same transaction that completes its attempt.
func InsertTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders(id, cart_id, idempotency_key, reservation_id, payment_ref, status, tracking_number,
		                   subtotal, shipping, tax, total, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12,$13,$14)
	`, o.ID, o.CartID, o.IdempotencyKey, o.ReservationID, o.PaymentRef, string(o.Status), o.TrackingNumber,
		o.Subtotal.String(), o.Shipping.String(), o.Tax.String(), o.Total.String(), o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i, li := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, variant_id, name, unit_price, qty, line_total)
			VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8::numeric)`,
			o.ID, i, li.ProductID, li.VariantID, li.Name, li.UnitPrice.String(), li.Quantity, li.LineTotal.String(),
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var (
		o                              Order
		status                         string
		subtotal, shipping, tax, total string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, cart_id, idempotency_key, reservation_id, payment_ref, status, tracking_number,
		       subtotal::text, shipping::text, tax::text, total::text, version, created_at, updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.CartID, &o.IdempotencyKey, &o.ReservationID, &o.PaymentRef, &status, &o.TrackingNumber,
		&subtotal, &shipping, &tax, &total, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if err := parseMoney(
		[]string{subtotal, shipping, tax, total},
		[]*decimal.Decimal{&o.Subtotal, &o.Shipping, &o.Tax, &o.Total},
	); err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, variant_id, name, unit_price::text, qty, line_total::text
		FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			li              LineItem
			unit, lineTotal string
		)
		if err := rows.Scan(&li.ProductID, &li.VariantID, &li.Name, &unit, &li.Quantity, &lineTotal); err != nil {
			return nil, err
		}
		if li.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if li.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, li)
	}
	return &o, rows.Err()
}

func (r *Repo) Update(ctx context.Context, o *Order, expected int64) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, tracking_number=$3, version=$4, updated_at=$5
		WHERE id=$1 AND version=$6`,
		o.ID, string(o.Status), o.TrackingNumber, o.Version, o.UpdatedAt, expected)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var current int64
	err = r.DB.QueryRow(ctx, `SELECT version FROM orders WHERE id=$1`, o.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(o.ID)
	}
	if err != nil {
		return err
	}
	return &ConflictError{OrderID: o.ID, Expected: expected, Current: current}
}

func parseMoney(src []string, dst []*decimal.Decimal) error {
	for i, s := range src {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*dst[i] = d
	}
	return nil
}

var _ Repository = (*Repo)(nil)
