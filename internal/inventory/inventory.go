package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrProductNotFound     = errors.New("product not found in inventory")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidState        = errors.New("reservation already terminal")
	ErrConcurrencyConflict = errors.New("concurrent stock update, retry")
)

// InsufficientError names the product that could not be reserved so checkout
// can surface it structurally.
type InsufficientError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientError) Unwrap() error { return ErrInsufficientStock }

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is a time-bounded hold on a single product's stock. It leaves
// ACTIVE exactly once, to COMMITTED on payment success or RELEASED on
// failure, expiry or cancellation.
type Reservation struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	ProductID string            `json:"product_id"`
	Qty       int               `json:"qty"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
}

func (r Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}

// Record is a product's stock counters. available = total - reserved -
// committed and never goes negative.
type Record struct {
	ProductID  string `json:"product_id"`
	TotalStock int    `json:"total_stock"`
	Reserved   int    `json:"reserved"`
	Committed  int    `json:"committed"`
}

func (r Record) Available() int { return r.TotalStock - r.Reserved - r.Committed }

// Ledger is the sole authority over stock counters and reservation state.
// Mutations for one product are serialized against each other; different
// products never share a lock.
type Ledger interface {
	// Reserve atomically checks available >= qty and places a hold. On
	// failure nothing changes and the error unwraps to
	// ErrInsufficientStock.
	Reserve(ctx context.Context, productID string, qty int, reservationID, orderID string, ttl time.Duration) (Reservation, error)

	// Release returns an ACTIVE hold to the available pool. Terminal
	// reservations are a no-op, so release is safe to call twice.
	Release(ctx context.Context, reservationID string) error

	// Commit converts an ACTIVE hold into committed (sold) stock.
	// Committing twice is a no-op; committing a RELEASED reservation
	// fails with ErrInvalidState.
	Commit(ctx context.Context, reservationID string) error

	// Restock adjusts total stock by delta (negative for admin SUBTRACT).
	// A negative delta may not push available below zero.
	Restock(ctx context.Context, productID string, delta int) error

	// SetStock pins total stock to an absolute value, never below what is
	// currently reserved plus committed.
	SetStock(ctx context.Context, productID string, total int) error

	Stock(ctx context.Context, productID string) (Record, error)
	Reservation(ctx context.Context, reservationID string) (Reservation, error)

	// ReleaseExpired releases every ACTIVE reservation whose TTL has
	// passed and reports what it released.
	ReleaseExpired(ctx context.Context, now time.Time) ([]Reservation, error)
}

// LedgerAvailability adapts the ledger to the read-only availability lookup
// cart merging clamps against. Unknown products read as zero available.
func LedgerAvailability(l Ledger) func(ctx context.Context, productID string) (int, error) {
	return func(ctx context.Context, productID string) (int, error) {
		rec, err := l.Stock(ctx, productID)
		if errors.Is(err, ErrProductNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return rec.Available(), nil
	}
}
