package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/config"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/adisurya/go-storefront/internal/postgres"
	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The sweeper returns expired reservation holds to the available pool and
// cancels PENDING orders that outlived their grace period without a payment
// outcome.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	ledger := &inventory.PgLedger{DB: db}
	orders := &order.PgRepo{DB: db}
	invalidator := &cachex.RedisInvalidator{Client: rdb, Log: log}
	lifecycle := &order.Lifecycle{Repo: orders, Ledger: ledger, Log: log}

	sweeper := &inventory.Sweeper{
		Ledger:   ledger,
		Interval: cfg.SweepInterval,
		Log:      log,
		OnReleased: func(ctx context.Context, res inventory.Reservation) {
			invalidator.Invalidate(ctx, cachex.TagInventory, cachex.TagProduct(res.ProductID))
		},
	}
	go sweeper.Run(ctx)

	// PENDING orders are cancelled only after the full payment window
	// (reservation TTL plus grace) has elapsed; any still-ACTIVE holds they
	// own are released by the cancel transition.
	stale := &order.StaleSweep{
		Repo:      orders,
		Lifecycle: lifecycle,
		HoldTTL:   cfg.ReservationTTL,
		Grace:     cfg.PendingGrace,
		Log:       log,
		OnCancelled: func(ctx context.Context, o order.Order) {
			invalidator.Invalidate(ctx, cachex.TagOrders, cachex.TagOrder(o.ID))
		},
	}
	go stale.Run(ctx, cfg.SweepInterval)

	log.Info("sweeper started",
		zap.Duration("interval", cfg.SweepInterval),
		zap.Duration("pending_grace", cfg.PendingGrace))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
