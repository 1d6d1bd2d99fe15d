package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/cart"
	"github.com/adisurya/go-storefront/internal/catalog"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/adisurya/go-storefront/internal/notify"
	"github.com/adisurya/go-storefront/internal/order"
	"go.uber.org/zap"
)

var ErrInvalidEvent = errors.New("malformed payment event")

// Reconciler applies asynchronous payment outcomes exactly once. Delivery is
// at-least-once and unordered; the external event id gates duplicates and a
// returned error is the signal for the processor to redeliver.
type Reconciler struct {
	Events      EventStore
	Orders      order.Repo
	Ledger      inventory.Ledger
	Lifecycle   *order.Lifecycle
	Carts       cart.Store
	Catalog     catalog.Store
	Notifier    notify.Notifier
	Invalidator cachex.Invalidator
	Log         *zap.Logger

	// LowStockFloor triggers an alert when available stock drops to or
	// below it after a commit; a product's own threshold overrides it.
	LowStockFloor int

	mu sync.Mutex
}

// HandleEvent returns nil when the event is settled (including no-op
// duplicates and unknown sessions) and an error only for transient
// conditions where redelivery can succeed.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	if ev.ExternalEventID == "" || ev.SessionRef == "" || !ValidOutcome(ev.Outcome) {
		return fmt.Errorf("%w: id=%q session=%q outcome=%q", ErrInvalidEvent,
			ev.ExternalEventID, ev.SessionRef, ev.Outcome)
	}

	// Serializes event processing so the processed flag and the state it
	// guards move together.
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.Events.Get(ctx, ev.ExternalEventID)
	if err == nil && existing.Processed {
		return nil // duplicate delivery, already applied
	}
	if err != nil && !errors.Is(err, ErrEventNotFound) {
		return err
	}
	if _, err := r.Events.Insert(ctx, ev); err != nil {
		return err
	}

	o, err := r.Orders.GetByPaymentRef(ctx, ev.SessionRef)
	if errors.Is(err, order.ErrNotFound) {
		// Ack unknown sessions; retrying forever would never find the
		// order and only feeds a redelivery storm.
		r.Log.Warn("payment event for unknown session",
			zap.String("external_event_id", ev.ExternalEventID),
			zap.String("session_ref", ev.SessionRef))
		return r.Events.MarkProcessed(ctx, ev.ExternalEventID)
	}
	if err != nil {
		return err
	}

	switch ev.Outcome {
	case OutcomeSucceeded:
		err = r.applySuccess(ctx, o)
	default:
		err = r.applyFailure(ctx, o)
	}
	if err != nil {
		return err
	}
	return r.Events.MarkProcessed(ctx, ev.ExternalEventID)
}

func (r *Reconciler) applySuccess(ctx context.Context, o order.Order) error {
	if o.Status == order.StatusCancelled {
		// The charge landed after the order was already cancelled, e.g.
		// by the stale-pending sweep. The money has to go back.
		r.Log.Error("success event for cancelled order, refunding",
			zap.String("order_id", o.ID))
		_, err := r.Lifecycle.Transition(ctx, o.ID, order.StatusRefunded, "")
		return err
	}
	if o.Status != order.StatusPending {
		r.Log.Info("success event for settled order",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)))
		return nil
	}

	stockLost := false
	for _, id := range o.ReservationIDs {
		err := r.Ledger.Commit(ctx, id)
		if errors.Is(err, inventory.ErrInvalidState) {
			// The hold expired and was swept before the payment
			// landed.
			stockLost = true
			continue
		}
		if err != nil {
			return err
		}
	}

	if stockLost {
		// Paid but the stock is gone: cancel and refund rather than
		// oversell. Committed lines are restocked on the refund edge.
		r.Log.Error("paid order lost its reservation, refunding",
			zap.String("order_id", o.ID))
		if _, err := r.Lifecycle.Transition(ctx, o.ID, order.StatusCancelled, ""); err != nil {
			return err
		}
		if _, err := r.Lifecycle.Transition(ctx, o.ID, order.StatusRefunded, ""); err != nil {
			return err
		}
		return nil
	}

	if _, err := r.Lifecycle.Transition(ctx, o.ID, order.StatusProcessing, ""); err != nil {
		return err
	}

	// Side effects past this point never fail the reconciliation.
	if err := r.Carts.Clear(ctx, o.Identity); err != nil {
		r.Log.Warn("clear cart after checkout failed",
			zap.String("identity", o.Identity),
			zap.Error(err))
	}
	r.Notifier.OrderConfirmed(ctx, o)

	tags := []cachex.Tag{cachex.TagOrders, cachex.TagOrder(o.ID), cachex.TagInventory}
	for _, l := range o.Lines {
		tags = append(tags, cachex.TagProduct(l.ProductID))
	}
	r.Invalidator.Invalidate(ctx, tags...)

	for _, l := range o.Lines {
		r.checkLowStock(ctx, l.ProductID)
	}
	return nil
}

func (r *Reconciler) applyFailure(ctx context.Context, o order.Order) error {
	if o.Status != order.StatusPending {
		return nil // already settled by another event or the sweep
	}
	if _, err := r.Lifecycle.Transition(ctx, o.ID, order.StatusCancelled, ""); err != nil {
		return err
	}
	r.Invalidator.Invalidate(ctx, cachex.TagOrders, cachex.TagOrder(o.ID), cachex.TagInventory)
	return nil
}

func (r *Reconciler) checkLowStock(ctx context.Context, productID string) {
	rec, err := r.Ledger.Stock(ctx, productID)
	if err != nil {
		return
	}
	floor := r.LowStockFloor
	if r.Catalog != nil {
		if p, err := r.Catalog.Get(ctx, productID); err == nil && p.LowStockThreshold > 0 {
			floor = p.LowStockThreshold
		}
	}
	if rec.Available() <= floor {
		r.Notifier.LowStock(ctx, productID, rec.Available())
	}
}
