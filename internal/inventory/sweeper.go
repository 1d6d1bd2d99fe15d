package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically releases reservations whose TTL has passed. OnReleased
// lets the caller react to each expired hold, e.g. cancelling the order that
// still sits PENDING past its grace period.
type Sweeper struct {
	Ledger     Ledger
	Interval   time.Duration
	Log        *zap.Logger
	OnReleased func(ctx context.Context, res Reservation)
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.Ledger.ReleaseExpired(ctx, time.Now())
	if err != nil {
		s.Log.Warn("reservation sweep failed", zap.Error(err))
	}
	for _, res := range released {
		s.Log.Info("reservation expired",
			zap.String("reservation_id", res.ID),
			zap.String("order_id", res.OrderID),
			zap.String("product_id", res.ProductID),
			zap.Int("qty", res.Qty))
		if s.OnReleased != nil {
			s.OnReleased(ctx, res)
		}
	}
}
