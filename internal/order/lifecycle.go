package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/adisurya/go-storefront/internal/inventory"
	"go.uber.org/zap"
)

// transitionRetries bounds how many times a lost conditional update is
// retried before ErrConflict is surfaced to the caller.
const transitionRetries = 2

// Refunder signals the external payment processor to return money for a
// refunded order.
type Refunder interface {
	Refund(ctx context.Context, sessionRef string, amountCents int) error
}

// Lifecycle owns the order state machine and the compensating inventory
// actions that go with cancellation and refund.
type Lifecycle struct {
	Repo     Repo
	Ledger   inventory.Ledger
	Refunder Refunder
	Log      *zap.Logger
}

// Transition moves orderID to the target status, applying compensations:
//
//	PENDING    -> CANCELLED  releases ACTIVE reservations
//	PROCESSING -> CANCELLED  restocks the committed quantity
//	*          -> REFUNDED   restocks if not already restocked, then asks the
//	                         processor to refund
//
// Anything outside the transition table fails with ErrInvalidTransition and
// leaves the order untouched.
func (lc *Lifecycle) Transition(ctx context.Context, orderID string, to Status, tracking string) (Order, error) {
	var (
		o    Order
		err  error
		from Status
	)
	for attempt := 0; ; attempt++ {
		o, err = lc.Repo.Get(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		from = o.Status
		if !CanTransition(from, to) {
			return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		// Conditional update claims the edge; a concurrent writer loses
		// with ErrConflict, re-reads and re-validates against the fresh
		// status.
		err = lc.Repo.UpdateStatus(ctx, orderID, from, to, tracking)
		if errors.Is(err, ErrConflict) && attempt < transitionRetries {
			continue
		}
		if err != nil {
			return Order{}, err
		}
		break
	}

	switch {
	case to == StatusCancelled && from == StatusPending:
		lc.releaseReservations(ctx, o)
	case to == StatusCancelled && from == StatusProcessing:
		if err := lc.restockCommitted(ctx, o); err != nil {
			return Order{}, err
		}
	case to == StatusRefunded:
		if !o.Restocked {
			if err := lc.restockCommitted(ctx, o); err != nil {
				return Order{}, err
			}
		}
		lc.refund(ctx, o)
	}

	return lc.Repo.Get(ctx, orderID)
}

// CancelPending cancels an order only if it is still PENDING; used by the
// sweep when a reservation expires past the grace period. Losing the race to
// a payment event is fine and reported as no cancellation.
func (lc *Lifecycle) CancelPending(ctx context.Context, orderID string) (bool, error) {
	o, err := lc.Repo.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status != StatusPending {
		return false, nil
	}
	if _, err := lc.Transition(ctx, orderID, StatusCancelled, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (lc *Lifecycle) releaseReservations(ctx context.Context, o Order) {
	for _, id := range o.ReservationIDs {
		if err := lc.Ledger.Release(ctx, id); err != nil {
			lc.Log.Warn("release reservation failed",
				zap.String("order_id", o.ID),
				zap.String("reservation_id", id),
				zap.Error(err))
		}
	}
}

func (lc *Lifecycle) restockCommitted(ctx context.Context, o Order) error {
	for _, id := range o.ReservationIDs {
		res, err := lc.Ledger.Reservation(ctx, id)
		if err != nil {
			return fmt.Errorf("load reservation %s: %w", id, err)
		}
		if res.Status != inventory.ReservationCommitted {
			continue
		}
		if err := lc.Ledger.Restock(ctx, res.ProductID, res.Qty); err != nil {
			return fmt.Errorf("restock %s: %w", res.ProductID, err)
		}
	}
	return lc.Repo.MarkRestocked(ctx, o.ID)
}

func (lc *Lifecycle) refund(ctx context.Context, o Order) {
	if lc.Refunder == nil || o.PaymentSessionRef == "" {
		return
	}
	if err := lc.Refunder.Refund(ctx, o.PaymentSessionRef, o.TotalCents); err != nil {
		// The state machine has already moved; the refund signal is
		// retried out of band.
		lc.Log.Error("refund signal failed",
			zap.String("order_id", o.ID),
			zap.String("session_ref", o.PaymentSessionRef),
			zap.Error(err))
	}
}
