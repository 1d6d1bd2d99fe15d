package checkout

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/cart"
	"github.com/adisurya/go-storefront/internal/catalog"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/adisurya/go-storefront/internal/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// reserveRetries bounds internal retries when the ledger reports a
// concurrent-update conflict before it surfaces as a final failure.
const reserveRetries = 3

type Request struct {
	Identity        string
	Customer        order.CustomerInfo
	ShippingAddress order.Address
	BillingAddress  order.Address
	ShippingMethod  string
}

type Result struct {
	OrderID           string `json:"order_id"`
	PaymentSessionRef string `json:"payment_session_ref"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	SubtotalCents     int    `json:"subtotal_cents"`
	TaxCents          int    `json:"tax_cents"`
	ShippingCents     int    `json:"shipping_cents"`
	TotalCents        int    `json:"total_cents"`
}

// Orchestrator turns a cart into a PENDING order: validate, reserve stock
// all-or-nothing, price, persist, open a payment session. Reservations taken
// in an attempt are released before any failure returns.
type Orchestrator struct {
	Carts       cart.Store
	Catalog     catalog.Store
	Ledger      inventory.Ledger
	Orders      order.Repo
	Processor   payment.Processor
	Pricer      Pricer
	Invalidator cachex.Invalidator
	Log         *zap.Logger

	ReservationTTL time.Duration
	SuccessURL     string
	CancelURL      string
}

func (co *Orchestrator) Initiate(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	c, err := co.Carts.Get(ctx, req.Identity)
	if err != nil {
		return Result{}, err
	}
	if c.Empty() {
		return Result{}, failf(KindEmptyCart, "", "cart for %s has no lines", req.Identity)
	}

	// Reserve in deterministic product order so concurrent checkouts
	// contend in the same sequence.
	lines := append([]cart.Line(nil), c.Lines...)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].VariantID < lines[j].VariantID
	})

	products := make(map[string]catalog.Product, len(lines))
	for _, l := range lines {
		p, err := co.Catalog.Get(ctx, l.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return Result{}, failf(KindProductUnavailable, l.ProductID, "product no longer exists")
		}
		if err != nil {
			return Result{}, err
		}
		if !p.Active {
			return Result{}, failf(KindProductUnavailable, l.ProductID, "product %s is not sellable", p.SKU)
		}
		products[l.ProductID] = p
	}

	orderID := uuid.NewString()

	// Reservation saga: all lines or none.
	reserved := make([]string, 0, len(lines))
	release := func() {
		for _, id := range reserved {
			if err := co.Ledger.Release(ctx, id); err != nil {
				co.Log.Error("saga rollback release failed",
					zap.String("reservation_id", id),
					zap.Error(err))
			}
		}
	}
	for _, l := range lines {
		resID := uuid.NewString()
		if err := co.reserve(ctx, l, resID, orderID); err != nil {
			release()
			var ie *inventory.InsufficientError
			if errors.As(err, &ie) {
				return Result{}, &Error{Kind: KindInsufficientInventory, ProductID: ie.ProductID, Err: err}
			}
			if errors.Is(err, inventory.ErrProductNotFound) {
				return Result{}, failf(KindProductUnavailable, l.ProductID, "no inventory record")
			}
			return Result{}, err
		}
		reserved = append(reserved, resID)
	}

	// Price from snapshots taken above, never from the live catalog again.
	orderLines := make([]order.Line, 0, len(lines))
	subtotal := 0
	for _, l := range lines {
		price := products[l.ProductID].PriceCents
		subtotal += price * l.Qty
		orderLines = append(orderLines, order.Line{
			ProductID:  l.ProductID,
			VariantID:  l.VariantID,
			Qty:        l.Qty,
			PriceCents: price,
		})
	}
	tax := co.Pricer.Tax(req.ShippingAddress.Region, subtotal)
	shipping, ok := co.Pricer.Shipping(req.ShippingMethod, subtotal)
	if !ok {
		release()
		return Result{}, failf(KindValidation, "", "unknown shipping method %q", req.ShippingMethod)
	}
	total := subtotal + tax + shipping

	o := order.Order{
		ID:              orderID,
		Identity:        req.Identity,
		Status:          order.StatusPending,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingMethod:  req.ShippingMethod,
		Lines:           orderLines,
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		ShippingCents:   shipping,
		TotalCents:      total,
		ReservationIDs:  reserved,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := co.Orders.Create(ctx, o); err != nil {
		release()
		return Result{}, err
	}

	// No inventory lock is held here; the processor call may take a while.
	sess, err := co.Processor.CreateSession(ctx, sessionRequest(o, products, co.SuccessURL, co.CancelURL))
	if err != nil {
		release()
		if terr := co.Orders.UpdateStatus(ctx, orderID, order.StatusPending, order.StatusCancelled, ""); terr != nil {
			co.Log.Error("cancel after session failure failed",
				zap.String("order_id", orderID), zap.Error(terr))
		}
		return Result{}, &Error{Kind: KindPaymentProcessing, Err: err}
	}
	if err := co.Orders.SetPaymentRef(ctx, orderID, sess.Ref); err != nil {
		release()
		return Result{}, err
	}

	tags := []cachex.Tag{cachex.TagInventory}
	for _, l := range lines {
		tags = append(tags, cachex.TagProduct(l.ProductID))
	}
	co.Invalidator.Invalidate(ctx, tags...)

	co.Log.Info("checkout initiated",
		zap.String("order_id", orderID),
		zap.String("identity", req.Identity),
		zap.Int("total_cents", total))
	return Result{
		OrderID:           orderID,
		PaymentSessionRef: sess.Ref,
		RedirectURL:       sess.RedirectURL,
		SubtotalCents:     subtotal,
		TaxCents:          tax,
		ShippingCents:     shipping,
		TotalCents:        total,
	}, nil
}

func (co *Orchestrator) reserve(ctx context.Context, l cart.Line, resID, orderID string) error {
	for attempt := 0; ; attempt++ {
		_, err := co.Ledger.Reserve(ctx, l.ProductID, l.Qty, resID, orderID, co.ReservationTTL)
		if !errors.Is(err, inventory.ErrConcurrencyConflict) || attempt >= reserveRetries {
			return err
		}
	}
}

func validate(req Request) error {
	switch {
	case req.Identity == "":
		return failf(KindValidation, "", "missing identity")
	case req.Customer.Email == "":
		return failf(KindValidation, "", "missing customer email")
	case req.Customer.Name == "":
		return failf(KindValidation, "", "missing customer name")
	case req.ShippingAddress.Street == "" || req.ShippingAddress.City == "":
		return failf(KindValidation, "", "incomplete shipping address")
	case req.ShippingMethod == "":
		return failf(KindValidation, "", "missing shipping method")
	}
	return nil
}

func sessionRequest(o order.Order, products map[string]catalog.Product, successURL, cancelURL string) payment.SessionRequest {
	items := make([]payment.SessionLineItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, payment.SessionLineItem{
			ProductID:  l.ProductID,
			Name:       products[l.ProductID].Name,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
		})
	}
	return payment.SessionRequest{
		OrderID:    o.ID,
		LineItems:  items,
		TotalCents: o.TotalCents,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}
}
