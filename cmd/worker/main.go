package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-planning/internal/app"
	"github.com/ariefcatur/go-order-planning/internal/config"
	"github.com/ariefcatur/go-order-planning/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-order-planning/internal/kafka"
	"github.com/ariefcatur/go-order-planning/internal/logging"
	"github.com/ariefcatur/go-order-planning/internal/observability"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"github.com/ariefcatur/go-order-planning/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName+"-worker", cfg.OTelEndpoint)
	if err != nil {
		logger.Error("tracing setup", zap.Error(err))
	}

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	h := &fulfillment.RequestHandler{Planner: c.Planner, Log: logger.Named("requests")}
	if c.Redis != nil {
		h.Dedup = redisx.NewDedup(c.Redis, cfg.ServiceName+"-worker")
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicOrderRequested, cfg.WorkerCount, logger.Named("consumer"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("order request consumer started",
			zap.String("group", cfg.WorkerGroup),
			zap.String("topic", orders.TopicOrderRequested),
			zap.Int("workers", cfg.WorkerCount),
		)
		return cons.Start(gctx, h.HandleOrderRequested)
	})

	if err := g.Wait(); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("shutting down worker")

	c.Close()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(sctx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
