package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adisurya/go-storefront/internal/config"
	kafkax "github.com/adisurya/go-storefront/internal/kafka"
	"github.com/adisurya/go-storefront/internal/notify"
	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// The notifier consumes confirmation and low-stock events and delivers them.
// Delivery here is the log sink; swapping in an email or chat provider only
// touches the handler bodies.
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

	group := getenv("NOTIFIER_GROUP", "storefront-notifier")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")

	confirmed := kafkax.NewConsumer(cfg.KafkaBrokers, group, notify.TopicOrderConfirmed, workers, log)
	lowStock := kafkax.NewConsumer(cfg.KafkaBrokers, group, notify.TopicLowStock, workers, log)

	go func() {
		log.Info("order confirmation consumer started",
			zap.String("group", group), zap.Int("workers", workers))
		if err := confirmed.Start(ctx, handleOrderConfirmed(log)); err != nil {
			log.Error("confirmation consumer exit", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		log.Info("low stock consumer started",
			zap.String("group", group), zap.Int("workers", workers))
		if err := lowStock.Start(ctx, handleLowStock(log)); err != nil {
			log.Error("low stock consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func handleOrderConfirmed(log *zap.Logger) kafkax.Handler {
	return func(_ context.Context, m kafkago.Message) error {
		var env notify.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			log.Warn("drop undecodable event", zap.Error(err))
			return nil
		}
		p, err := kafkax.UnwrapPayload[notify.OrderConfirmedPayload](env.Payload)
		if err != nil {
			log.Warn("drop bad confirmation payload",
				zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		log.Info("order confirmation sent",
			zap.String("order_id", p.OrderID),
			zap.String("email", p.Email),
			zap.Int("total_cents", p.TotalCents))
		return nil
	}
}

func handleLowStock(log *zap.Logger) kafkax.Handler {
	return func(_ context.Context, m kafkago.Message) error {
		var env notify.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			log.Warn("drop undecodable event", zap.Error(err))
			return nil
		}
		p, err := kafkax.UnwrapPayload[notify.LowStockPayload](env.Payload)
		if err != nil {
			log.Warn("drop bad low stock payload",
				zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		log.Warn("low stock alert",
			zap.String("product_id", p.ProductID),
			zap.Int("available", p.Available))
		return nil
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
