package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps attempts in checkout_attempts. Complete settles the
// attempt and inserts the order in one transaction.
type PostgresStore struct{ DB *pgxpool.Pool }

const attemptColumns = `idempotency_key, cart_id, reservation_id, status, cart_snapshot, order_id,
	payment_ref, amount::text, failure_code, created_at, updated_at`

func scanAttempt(row pgx.Row) (Attempt, error) {
	var (
		a        Attempt
		status   string
		snapshot []byte
		amount   string
	)
	if err := row.Scan(&a.Key, &a.CartID, &a.ReservationID, &status, &snapshot, &a.OrderID,
		&a.PaymentRef, &amount, &a.FailureCode, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	if err := json.Unmarshal(snapshot, &a.Snapshot); err != nil {
		return Attempt{}, fmt.Errorf("decode snapshot of %s: %w", a.Key, err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Attempt{}, err
	}
	a.Amount = d
	return a, nil
}

func (s *PostgresStore) Begin(ctx context.Context, a Attempt) (Attempt, error) {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return Attempt{}, err
	}
	now := time.Now().UTC()

	got, err := scanAttempt(s.DB.QueryRow(ctx, `
		INSERT INTO checkout_attempts(idempotency_key, cart_id, reservation_id, status, cart_snapshot, created_at, updated_at)
		VALUES ($1,$2,$3,'pending',$4::jsonb,$5,$5)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			cart_id=EXCLUDED.cart_id, reservation_id=EXCLUDED.reservation_id, status='pending',
			cart_snapshot=EXCLUDED.cart_snapshot, order_id='', payment_ref='', amount=0,
			failure_code='', updated_at=EXCLUDED.updated_at
		WHERE checkout_attempts.status='failed'
		RETURNING `+attemptColumns,
		a.Key, a.CartID, a.ReservationID, string(snapshot), now))
	if errors.Is(err, pgx.ErrNoRows) {
		// someone else owns the key
		return s.Get(ctx, a.Key)
	}
	return got, err
}

func (s *PostgresStore) RecordPayment(ctx context.Context, key, reservationID, paymentRef string, amount decimal.Decimal) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE checkout_attempts SET payment_ref=$3, amount=$4::numeric, updated_at=now()
		WHERE idempotency_key=$1 AND reservation_id=$2 AND status='pending'`,
		key, reservationID, paymentRef, amount.String())
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotPending
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, key, reservationID string, o *orders.Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE checkout_attempts SET status='succeeded', order_id=$3, payment_ref=$4, amount=$5::numeric, updated_at=now()
		WHERE idempotency_key=$1 AND reservation_id=$2 AND status='pending'`,
		key, reservationID, o.ID, o.PaymentRef, o.Total.String())
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotPending
	}
	if err := orders.InsertTx(ctx, tx, o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Fail(ctx context.Context, key, reservationID, code string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE checkout_attempts SET status='failed', failure_code=$3, updated_at=now()
		WHERE idempotency_key=$1 AND reservation_id=$2 AND status='pending'`,
		key, reservationID, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotPending
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Attempt, error) {
	a, err := scanAttempt(s.DB.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE idempotency_key=$1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, apperr.NotFound(fmt.Sprintf("checkout attempt %s not found", key))
	}
	return a, err
}

func (s *PostgresStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]Attempt, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+attemptColumns+` FROM checkout_attempts
		WHERE status='pending' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM checkout_attempts WHERE status <> 'pending' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

var _ AttemptStore = (*PostgresStore)(nil)
