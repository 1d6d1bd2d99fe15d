package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	DB    *pgxpool.Pool
	Avail Availability
}

func scanLines(rows pgx.Rows) ([]Line, time.Time, error) {
	defer rows.Close()
	var (
		lines   []Line
		updated time.Time
	)
	for rows.Next() {
		var l Line
		var u time.Time
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.Qty, &u); err != nil {
			return nil, updated, err
		}
		if u.After(updated) {
			updated = u
		}
		lines = append(lines, l)
	}
	return lines, updated, rows.Err()
}

func (s *PgStore) Get(ctx context.Context, identity string) (Cart, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id, variant_id, qty, updated_at FROM cart_items
		WHERE identity=$1 ORDER BY product_id, variant_id`, identity)
	if err != nil {
		return Cart{}, err
	}
	lines, updated, err := scanLines(rows)
	if err != nil {
		return Cart{}, err
	}
	return Cart{Identity: identity, Lines: lines, UpdatedAt: updated}, nil
}

func (s *PgStore) AddItem(ctx context.Context, identity, productID, variantID string, qty int) (Cart, error) {
	if productID == "" || qty < 1 {
		return Cart{}, fmt.Errorf("%w: add requires product and qty >= 1", ErrValidation)
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO cart_items(identity, product_id, variant_id, qty, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (identity, product_id, variant_id)
		DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty, updated_at = now()`,
		identity, productID, variantID, qty)
	if err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, identity)
}

func (s *PgStore) UpdateItem(ctx context.Context, identity, productID, variantID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, fmt.Errorf("%w: qty must be >= 1, remove the line instead", ErrValidation)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE cart_items SET qty=$4, updated_at=now()
		WHERE identity=$1 AND product_id=$2 AND variant_id=$3`,
		identity, productID, variantID, qty)
	if err != nil {
		return Cart{}, err
	}
	if ct.RowsAffected() == 0 {
		return Cart{}, fmt.Errorf("%w: line %s/%s", ErrNotFound, productID, variantID)
	}
	return s.Get(ctx, identity)
}

func (s *PgStore) RemoveItem(ctx context.Context, identity, productID, variantID string) (Cart, error) {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM cart_items
		WHERE identity=$1 AND product_id=$2 AND variant_id=$3`,
		identity, productID, variantID)
	if err != nil {
		return Cart{}, err
	}
	if ct.RowsAffected() == 0 {
		return Cart{}, fmt.Errorf("%w: line %s/%s", ErrNotFound, productID, variantID)
	}
	return s.Get(ctx, identity)
}

func (s *PgStore) Clear(ctx context.Context, identity string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE identity=$1`, identity)
	return err
}

func (s *PgStore) MergeGuestCart(ctx context.Context, guestToken, userIdentity string) (Cart, error) {
	if guestToken == "" || userIdentity == "" || guestToken == userIdentity {
		return Cart{}, fmt.Errorf("%w: merge needs distinct guest and user identities", ErrValidation)
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Cart{}, err
	}
	defer tx.Rollback(ctx)

	// Fold guest lines into the user's cart, summing per (product, variant).
	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items(identity, product_id, variant_id, qty, updated_at)
		SELECT $2, product_id, variant_id, qty, now() FROM cart_items WHERE identity=$1
		ON CONFLICT (identity, product_id, variant_id)
		DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty, updated_at = now()`,
		guestToken, userIdentity); err != nil {
		return Cart{}, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE identity=$1`, guestToken); err != nil {
		return Cart{}, err
	}

	rows, err := tx.Query(ctx, `
		SELECT product_id, variant_id, qty, updated_at FROM cart_items
		WHERE identity=$1 ORDER BY product_id, variant_id`, userIdentity)
	if err != nil {
		return Cart{}, err
	}
	lines, _, err := scanLines(rows)
	if err != nil {
		return Cart{}, err
	}

	// Clamp to availability inside the same transaction so the merge is
	// atomic per identity pair.
	for _, l := range lines {
		avail, err := s.Avail(ctx, l.ProductID)
		if err != nil {
			return Cart{}, fmt.Errorf("availability for %s: %w", l.ProductID, err)
		}
		switch {
		case avail < 1:
			if _, err := tx.Exec(ctx, `
				DELETE FROM cart_items WHERE identity=$1 AND product_id=$2 AND variant_id=$3`,
				userIdentity, l.ProductID, l.VariantID); err != nil {
				return Cart{}, err
			}
		case l.Qty > avail:
			if _, err := tx.Exec(ctx, `
				UPDATE cart_items SET qty=$4 WHERE identity=$1 AND product_id=$2 AND variant_id=$3`,
				userIdentity, l.ProductID, l.VariantID, avail); err != nil {
				return Cart{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userIdentity)
}
