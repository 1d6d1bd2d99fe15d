package order

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrConflict means another writer changed the order's status between
	// read and update. Retryable.
	ErrConflict = errors.New("order status changed concurrently")
)

type Address struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Line carries the price snapshot taken at checkout. It is never recomputed
// from the catalog afterwards.
type Line struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type Order struct {
	ID       string       `json:"id"`
	Identity string       `json:"identity"`
	Status   Status       `json:"status"`
	Customer CustomerInfo `json:"customer"`

	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`
	ShippingMethod  string  `json:"shipping_method"`

	Lines          []Line   `json:"lines"`
	SubtotalCents  int      `json:"subtotal_cents"`
	TaxCents       int      `json:"tax_cents"`
	ShippingCents  int      `json:"shipping_cents"`
	TotalCents     int      `json:"total_cents"`
	ReservationIDs []string `json:"reservation_ids"`

	PaymentSessionRef string `json:"payment_session_ref,omitempty"`
	TrackingNumber    string `json:"tracking_number,omitempty"`

	// Restocked marks that the cancel/refund compensation has already put
	// the committed quantity back, so a later refund will not restock twice.
	Restocked bool `json:"restocked"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

type Repo interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	GetByPaymentRef(ctx context.Context, sessionRef string) (Order, error)
	SetPaymentRef(ctx context.Context, id, sessionRef string) error

	// UpdateStatus moves the order from 'from' to 'to' atomically, stamping
	// the matching timestamp. A mismatch on 'from' returns ErrConflict.
	UpdateStatus(ctx context.Context, id string, from, to Status, tracking string) error

	// MarkRestocked records that cancel/refund compensation has run.
	MarkRestocked(ctx context.Context, id string) error

	// ListPendingBefore returns PENDING orders created before the cutoff,
	// candidates for grace-period cancellation.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error)
}
