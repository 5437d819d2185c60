package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamdasovich/goldventure-sub001/internal/config"
	kafkax "github.com/adamdasovich/goldventure-sub001/internal/kafka"
	"github.com/adamdasovich/goldventure-sub001/internal/logging"
	"github.com/adamdasovich/goldventure-sub001/internal/notify"
	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/adamdasovich/goldventure-sub001/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).Named("notifier")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	d := &notify.Dispatcher{
		Dedup:  &notify.RedisDeduper{Redis: rdb, Service: cfg.NotifyGroup},
		Sender: notify.LogSender{Log: log},
		Log:    log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, orders.TopicOrderEvents, cfg.NotifyWorkers, log)

	log.Info("consumer started",
		zap.String("group", cfg.NotifyGroup),
		zap.String("topic", orders.TopicOrderEvents),
		zap.Int("workers", cfg.NotifyWorkers),
	)
	if err := cons.Start(ctx, d.Handle); err != nil {
		log.Error("worker exited", zap.Error(err))
		os.Exit(1)
	}
}
