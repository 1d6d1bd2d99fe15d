package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepo struct{ DB *pgxpool.Pool }

func (r *PgRepo) Create(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ship, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	bill, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(
			id, identity, status, customer_name, customer_email, customer_phone,
			shipping_address, billing_address, shipping_method,
			subtotal_cents, tax_cents, shipping_cents, total_cents,
			reservation_ids, payment_session_ref, restocked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,false,$16,$16)`,
		o.ID, o.Identity, o.Status, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		ship, bill, o.ShippingMethod,
		o.SubtotalCents, o.TaxCents, o.ShippingCents, o.TotalCents,
		o.ReservationIDs, o.PaymentSessionRef, o.CreatedAt)
	if err != nil {
		return err
	}

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, product_id, variant_id, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, l.ProductID, l.VariantID, l.Qty, l.PriceCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	id, identity, status, customer_name, customer_email, customer_phone,
	shipping_address, billing_address, shipping_method,
	subtotal_cents, tax_cents, shipping_cents, total_cents,
	reservation_ids, payment_session_ref, tracking_number, restocked,
	created_at, updated_at, paid_at, cancelled_at, shipped_at, delivered_at, refunded_at`

func (r *PgRepo) scanOrder(ctx context.Context, row pgx.Row) (Order, error) {
	var (
		o          Order
		ship, bill []byte
		tracking   *string
		ref        *string
	)
	err := row.Scan(
		&o.ID, &o.Identity, &o.Status, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&ship, &bill, &o.ShippingMethod,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.TotalCents,
		&o.ReservationIDs, &ref, &tracking, &o.Restocked,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.CancelledAt, &o.ShippedAt, &o.DeliveredAt, &o.RefundedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(ship, &o.ShippingAddress); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(bill, &o.BillingAddress); err != nil {
		return Order{}, err
	}
	if ref != nil {
		o.PaymentSessionRef = *ref
	}
	if tracking != nil {
		o.TrackingNumber = *tracking
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, variant_id, qty, price_cents FROM order_lines
		WHERE order_id=$1 ORDER BY product_id, variant_id`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.Qty, &l.PriceCents); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (r *PgRepo) Get(ctx context.Context, id string) (Order, error) {
	return r.scanOrder(ctx, r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *PgRepo) GetByPaymentRef(ctx context.Context, sessionRef string) (Order, error) {
	return r.scanOrder(ctx, r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_session_ref=$1`, sessionRef))
}

func (r *PgRepo) SetPaymentRef(ctx context.Context, id, sessionRef string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_session_ref=$2, updated_at=now() WHERE id=$1`, id, sessionRef)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// statusStamp maps a target status to its timestamp column.
func statusStamp(to Status) string {
	switch to {
	case StatusProcessing:
		return "paid_at"
	case StatusCancelled:
		return "cancelled_at"
	case StatusShipped:
		return "shipped_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusRefunded:
		return "refunded_at"
	}
	return ""
}

func (r *PgRepo) UpdateStatus(ctx context.Context, id string, from, to Status, tracking string) error {
	set := `status=$3, updated_at=now(), tracking_number=COALESCE(NULLIF($4,''), tracking_number)`
	if col := statusStamp(to); col != "" {
		set += fmt.Sprintf(", %s=now()", col)
	}
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET `+set+` WHERE id=$1 AND status=$2`,
		id, from, to, tracking)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r *PgRepo) MarkRestocked(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET restocked=true, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders WHERE status=$1 AND created_at < $2 ORDER BY created_at`,
		StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
