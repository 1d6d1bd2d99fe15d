package order

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleSweep cancels PENDING orders whose payment window has fully elapsed.
// An order only counts as stale once its reservation holds have expired AND
// the grace period on top of that has passed, so a shopper who is mid-payment
// is never cancelled out from under an active hold.
type StaleSweep struct {
	Repo      Repo
	Lifecycle *Lifecycle
	HoldTTL   time.Duration
	Grace     time.Duration
	Log       *zap.Logger

	// OnCancelled fires after an order was cancelled, for cache invalidation.
	OnCancelled func(ctx context.Context, o Order)
}

// Cutoff returns the creation-time threshold below which a PENDING order is
// considered stale at the given instant.
func (s *StaleSweep) Cutoff(now time.Time) time.Time {
	return now.Add(-(s.HoldTTL + s.Grace))
}

// SweepOnce walks stale PENDING orders and cancels each one. The cancel
// transition releases any hold that is somehow still ACTIVE. Returns the
// number of orders cancelled.
func (s *StaleSweep) SweepOnce(ctx context.Context, now time.Time) int {
	stale, err := s.Repo.ListPendingBefore(ctx, s.Cutoff(now))
	if err != nil {
		s.Log.Error("list stale pending orders", zap.Error(err))
		return 0
	}
	n := 0
	for _, o := range stale {
		cancelled, err := s.Lifecycle.CancelPending(ctx, o.ID)
		if err != nil {
			s.Log.Error("cancel stale order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if !cancelled {
			continue
		}
		n++
		s.Log.Info("stale pending order cancelled",
			zap.String("order_id", o.ID),
			zap.Time("created_at", o.CreatedAt))
		if s.OnCancelled != nil {
			s.OnCancelled(ctx, o)
		}
	}
	return n
}

// Run sweeps on every tick until the context is done.
func (s *StaleSweep) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx, time.Now())
		}
	}
}
