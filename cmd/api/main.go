package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/cart"
	"github.com/adamdasovich/goldventure-sub001/internal/catalog"
	"github.com/adamdasovich/goldventure-sub001/internal/checkout"
	"github.com/adamdasovich/goldventure-sub001/internal/config"
	"github.com/adamdasovich/goldventure-sub001/internal/httpx"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	kafkax "github.com/adamdasovich/goldventure-sub001/internal/kafka"
	"github.com/adamdasovich/goldventure-sub001/internal/logging"
	"github.com/adamdasovich/goldventure-sub001/internal/notify"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/adamdasovich/goldventure-sub001/internal/payment"
	"github.com/adamdasovich/goldventure-sub001/internal/postgres"
	"github.com/adamdasovich/goldventure-sub001/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	seed := flag.Bool("seed", false, "load the demo catalog and stock before serving")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *seed); err != nil {
		log.Error("api exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, seed bool) error {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	ledger := &inventory.PostgresLedger{DB: db}
	if seed {
		if err := seedDemo(ctx, db, ledger); err != nil {
			return err
		}
		log.Info("demo data loaded")
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	quoter, err := flatQuoter(cfg)
	if err != nil {
		return err
	}

	// outlives ctx so requests draining during shutdown can still publish
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, log.Named("producer"))
	prod.Start(context.Background())
	defer prod.Close()

	var (
		cat      = &catalog.Postgres{DB: db}
		carts    = &cart.RedisStore{Redis: rdb, TTL: cfg.CartTTL}
		repo     = &orders.Repo{DB: db}
		attempts = &checkout.PostgresStore{DB: db}
		gateway  = payment.NewSimulated()
		notifier = &notify.KafkaNotifier{Producer: prod, Service: cfg.ServiceName}
	)

	router := httpx.NewRouter(log)
	(&httpx.CartsHandler{
		Carts:   &cart.Service{Store: carts, Catalog: cat, Ledger: ledger, Log: log.Named("cart")},
		Catalog: cat,
		Checkout: &checkout.Orchestrator{
			Carts:    carts,
			Catalog:  cat,
			Ledger:   ledger,
			Attempts: attempts,
			Orders:   repo,
			Payments: gateway,
			Quoter:   quoter,
			Notifier: notifier,
			Log:      log.Named("checkout"),
		},
	}).Register(router)
	(&httpx.OrdersHandler{Orders: &orders.Service{
		Repo:     repo,
		Ledger:   ledger,
		Payments: gateway,
		Notifier: notifier,
		Cache:    &orders.RedisStatusCache{Redis: rdb},
		Log:      log.Named("orders"),
	}}).Register(router)

	reaper := &checkout.Reaper{
		Attempts:  attempts,
		Ledger:    ledger,
		Payments:  gateway,
		Timeout:   cfg.CheckoutPendingTimeout,
		Retention: cfg.CheckoutRetention,
		Interval:  cfg.ReaperInterval,
		Log:       log.Named("reaper"),
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func flatQuoter(cfg config.Config) (checkout.FlatQuoter, error) {
	fee, err := decimal.NewFromString(cfg.ShippingFee)
	if err != nil {
		return checkout.FlatQuoter{}, err
	}
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return checkout.FlatQuoter{}, err
	}
	return checkout.FlatQuoter{Shipping: fee, TaxRate: rate}, nil
}
