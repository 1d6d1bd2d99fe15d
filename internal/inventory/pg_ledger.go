package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// conflictRetries bounds internal retries of optimistic updates before
// ErrConcurrencyConflict surfaces to the caller.
const conflictRetries = 3

type PgLedger struct{ DB *pgxpool.Pool }

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	// 40001 serialization_failure, 40P01 deadlock_detected
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func (l *PgLedger) Reserve(ctx context.Context, productID string, qty int, reservationID, orderID string, ttl time.Duration) (Reservation, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback(ctx)

	// Conditional update: the row lock it takes serializes concurrent
	// reserves per product, and the predicate enforces available >= qty.
	ct, err := tx.Exec(ctx, `
		UPDATE inventory SET reserved = reserved + $2
		WHERE product_id = $1 AND total_stock - reserved - committed >= $2`,
		productID, qty)
	if err != nil {
		return Reservation{}, err
	}
	if ct.RowsAffected() == 0 {
		var rec Record
		err := tx.QueryRow(ctx, `
			SELECT product_id, total_stock, reserved, committed
			FROM inventory WHERE product_id=$1`, productID).
			Scan(&rec.ProductID, &rec.TotalStock, &rec.Reserved, &rec.Committed)
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrProductNotFound
		}
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{}, &InsufficientError{ProductID: productID, Requested: qty, Available: rec.Available()}
	}

	now := time.Now()
	res := Reservation{
		ID:        reservationID,
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		Status:    ReservationActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(id, order_id, product_id, qty, status, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.ID, res.OrderID, res.ProductID, res.Qty, res.Status, res.ExpiresAt, res.CreatedAt); err != nil {
		return Reservation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// terminate moves an ACTIVE reservation to a terminal status and applies the
// counter movement. The FOR UPDATE on the reservation row guarantees the
// ACTIVE->terminal edge fires exactly once even when commit races the sweep.
func (l *PgLedger) terminate(ctx context.Context, reservationID string, to ReservationStatus) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		productID string
		qty       int
		status    ReservationStatus
	)
	err = tx.QueryRow(ctx, `
		SELECT product_id, qty, status FROM reservations WHERE id=$1 FOR UPDATE`,
		reservationID).Scan(&productID, &qty, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrReservationNotFound
	}
	if err != nil {
		return err
	}

	if status != ReservationActive {
		if status == to {
			return nil // idempotent
		}
		if to == ReservationReleased {
			return nil // releasing a committed hold is a no-op
		}
		return ErrInvalidState // commit after release
	}

	if to == ReservationCommitted {
		_, err = tx.Exec(ctx, `
			UPDATE inventory SET reserved = reserved - $2, committed = committed + $2
			WHERE product_id=$1`, productID, qty)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE inventory SET reserved = reserved - $2
			WHERE product_id=$1`, productID, qty)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET status=$2 WHERE id=$1`, reservationID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PgLedger) Release(ctx context.Context, reservationID string) error {
	return l.terminate(ctx, reservationID, ReservationReleased)
}

func (l *PgLedger) Commit(ctx context.Context, reservationID string) error {
	return l.terminate(ctx, reservationID, ReservationCommitted)
}

func (l *PgLedger) Restock(ctx context.Context, productID string, delta int) error {
	for attempt := 0; ; attempt++ {
		err := l.restockOnce(ctx, productID, delta)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= conflictRetries {
			return err
		}
	}
}

func (l *PgLedger) restockOnce(ctx context.Context, productID string, delta int) error {
	var rec Record
	err := l.DB.QueryRow(ctx, `
		SELECT product_id, total_stock, reserved, committed
		FROM inventory WHERE product_id=$1`, productID).
		Scan(&rec.ProductID, &rec.TotalStock, &rec.Reserved, &rec.Committed)
	if errors.Is(err, pgx.ErrNoRows) {
		if delta < 0 {
			return ErrProductNotFound
		}
		ct, err := l.DB.Exec(ctx, `
			INSERT INTO inventory(product_id, total_stock, reserved, committed)
			VALUES ($1,$2,0,0) ON CONFLICT (product_id) DO NOTHING`, productID, delta)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrConcurrencyConflict // row appeared meanwhile
		}
		return nil
	}
	if err != nil {
		return err
	}

	if delta < 0 && rec.Available()+delta < 0 {
		return &InsufficientError{ProductID: productID, Requested: -delta, Available: rec.Available()}
	}

	// Optimistic compare-and-swap on the counters read above.
	ct, err := l.DB.Exec(ctx, `
		UPDATE inventory SET total_stock = total_stock + $2
		WHERE product_id=$1 AND total_stock=$3 AND reserved=$4 AND committed=$5`,
		productID, delta, rec.TotalStock, rec.Reserved, rec.Committed)
	if err != nil {
		if isSerializationFailure(err) {
			return ErrConcurrencyConflict
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

func (l *PgLedger) SetStock(ctx context.Context, productID string, total int) error {
	ct, err := l.DB.Exec(ctx, `
		INSERT INTO inventory(product_id, total_stock, reserved, committed)
		VALUES ($1,$2,0,0)
		ON CONFLICT (product_id) DO UPDATE SET total_stock = EXCLUDED.total_stock
		WHERE inventory.reserved + inventory.committed <= EXCLUDED.total_stock`,
		productID, total)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &InsufficientError{ProductID: productID, Requested: total}
	}
	return nil
}

func (l *PgLedger) Stock(ctx context.Context, productID string) (Record, error) {
	var rec Record
	err := l.DB.QueryRow(ctx, `
		SELECT product_id, total_stock, reserved, committed
		FROM inventory WHERE product_id=$1`, productID).
		Scan(&rec.ProductID, &rec.TotalStock, &rec.Reserved, &rec.Committed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrProductNotFound
	}
	return rec, err
}

func (l *PgLedger) Reservation(ctx context.Context, reservationID string) (Reservation, error) {
	var res Reservation
	err := l.DB.QueryRow(ctx, `
		SELECT id, order_id, product_id, qty, status, expires_at, created_at
		FROM reservations WHERE id=$1`, reservationID).
		Scan(&res.ID, &res.OrderID, &res.ProductID, &res.Qty, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationNotFound
	}
	return res, err
}

func (l *PgLedger) ReleaseExpired(ctx context.Context, now time.Time) ([]Reservation, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id, order_id, product_id, qty, status, expires_at, created_at
		FROM reservations WHERE status=$1 AND expires_at < $2`,
		ReservationActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.Qty, &res.Status, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		due = append(due, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var released []Reservation
	for _, res := range due {
		// terminate re-checks status under the row lock, so a commit
		// that won the race is left alone.
		if err := l.Release(ctx, res.ID); err != nil {
			return released, err
		}
		cur, err := l.Reservation(ctx, res.ID)
		if err == nil && cur.Status == ReservationReleased {
			released = append(released, cur)
		}
	}
	return released, nil
}
