package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/cart"
	"github.com/adisurya/go-storefront/internal/catalog"
	"github.com/adisurya/go-storefront/internal/checkout"
	"github.com/adisurya/go-storefront/internal/config"
	"github.com/adisurya/go-storefront/internal/httpx"
	"github.com/adisurya/go-storefront/internal/inventory"
	kafkax "github.com/adisurya/go-storefront/internal/kafka"
	"github.com/adisurya/go-storefront/internal/notify"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/adisurya/go-storefront/internal/payment"
	"github.com/adisurya/go-storefront/internal/postgres"
	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pOrders := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicOrderConfirmed, 1024, log)
	pOrders.Start(ctx)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicLowStock, 1024, log)
	pStock.Start(ctx)

	// Stores
	ledger := &inventory.PgLedger{DB: db}
	catalogStore := &catalog.PgStore{DB: db}
	carts := &cart.PgStore{DB: db, Avail: inventory.LedgerAvailability(ledger)}
	orders := &order.PgRepo{DB: db}
	events := &payment.PgEventStore{DB: db}

	invalidator := &cachex.RedisInvalidator{Client: rdb, Log: log}
	notifier := &notify.KafkaNotifier{
		Orders:  pOrders,
		Stock:   pStock,
		Service: cfg.ServiceName,
		Log:     log,
	}
	processor := payment.NewHTTPProcessor(cfg.PaymentEndpoint)
	lifecycle := &order.Lifecycle{
		Repo:     orders,
		Ledger:   ledger,
		Refunder: processor,
		Log:      log,
	}

	orchestrator := &checkout.Orchestrator{
		Carts:       carts,
		Catalog:     catalogStore,
		Ledger:      ledger,
		Orders:      orders,
		Processor:   processor,
		Invalidator: invalidator,
		Log:         log,
		Pricer: checkout.Pricer{
			TaxRates:          cfg.TaxRates,
			DefaultTaxRate:    cfg.DefaultTaxRate,
			ShippingRates:     cfg.ShippingRates,
			FreeShippingCents: cfg.FreeShippingCents,
		},
		ReservationTTL: cfg.ReservationTTL,
		SuccessURL:     cfg.PaymentSuccess,
		CancelURL:      cfg.PaymentCancel,
	}
	reconciler := &payment.Reconciler{
		Events:        events,
		Orders:        orders,
		Ledger:        ledger,
		Lifecycle:     lifecycle,
		Carts:         carts,
		Catalog:       catalogStore,
		Notifier:      notifier,
		Invalidator:   invalidator,
		Log:           log,
		LowStockFloor: cfg.LowStockThreshold,
	}

	// Handlers
	router := httpx.NewRouter()
	(&httpx.CartHandler{Store: carts, Redis: rdb, Log: log}).Register(router)
	(&httpx.CheckoutHandler{Orchestrator: orchestrator, Log: log}).Register(router)
	(&httpx.WebhookHandler{Reconciler: reconciler, Secret: cfg.WebhookSecret, Redis: rdb, Log: log}).Register(router)
	(&httpx.CatalogHandler{Catalog: catalogStore, Ledger: ledger, Redis: rdb, Log: log}).Register(router)
	(&httpx.OrderHandler{Repo: orders, Redis: rdb, Log: log}).Register(router)
	(&httpx.AdminHandler{Lifecycle: lifecycle, Ledger: ledger, Invalidator: invalidator, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pOrders.Close()
	pStock.Close()
	cancel()
	pOrders.WaitClosed()
	pStock.WaitClosed()
}
