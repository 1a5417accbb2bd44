// Package app wires configuration into the services shared by the api and
// worker processes.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-order-planning/internal/catalog"
	"github.com/ariefcatur/go-order-planning/internal/config"
	"github.com/ariefcatur/go-order-planning/internal/fulfillment"
	"github.com/ariefcatur/go-order-planning/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-planning/internal/kafka"
	"github.com/ariefcatur/go-order-planning/internal/memstore"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"github.com/ariefcatur/go-order-planning/internal/postgres"
	"github.com/ariefcatur/go-order-planning/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Container struct {
	Config    config.Config
	Log       *zap.Logger
	Store     orders.Store
	Redis     *redis.Client    // nil when REDIS_ADDR is empty or unreachable
	Producer  *kafkax.Producer // nil when KAFKA_BROKERS is empty
	Publisher orders.Publisher
	Locker    inventory.Locker
	Catalog   *catalog.Service
	Inventory *inventory.Service
	Planner   *fulfillment.Planner

	closers []func()
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}
	if err := c.build(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg := c.Config

	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		c.Store = postgres.NewStore(db)
	case config.StoreMemory:
		c.Log.Warn("using in-memory store, data is lost on exit")
		c.Store = memstore.New()
	default:
		return fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			if cfg.LockBackend == config.LockRedis {
				return fmt.Errorf("redis ping: %w", err)
			}
			c.Log.Warn("redis unavailable, idempotency and dedup disabled", zap.Error(err))
		} else {
			c.Redis = rdb
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}

	switch cfg.LockBackend {
	case config.LockLocal:
		c.Locker = inventory.NewLocalLocker()
	case config.LockRedis:
		if c.Redis == nil {
			return fmt.Errorf("LOCK_BACKEND=redis needs REDIS_ADDR")
		}
		c.Locker = redisx.NewLocker(c.Redis, cfg.LockTTL, c.Log)
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}

	c.Publisher = orders.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		c.Producer = kafkax.NewProducer(cfg.KafkaBrokers, 1024, c.Log.Named("producer"))
		c.Producer.Start()
		c.Publisher = c.Producer
		c.closers = append(c.closers, func() {
			c.Producer.Close()
			c.Producer.WaitClosed()
		})
	}

	c.Catalog = &catalog.Service{
		Store:       c.Store,
		Locker:      c.Locker,
		Publisher:   c.Publisher,
		Log:         c.Log.Named("catalog"),
		ServiceName: cfg.ServiceName,
	}
	c.Inventory = &inventory.Service{
		Store:       c.Store,
		Locker:      c.Locker,
		Publisher:   c.Publisher,
		Log:         c.Log.Named("inventory"),
		ServiceName: cfg.ServiceName,
	}
	c.Planner = &fulfillment.Planner{
		Store:       c.Store,
		Locker:      c.Locker,
		Publisher:   c.Publisher,
		Log:         c.Log.Named("planner"),
		ServiceName: cfg.ServiceName,
	}
	if c.Redis != nil {
		c.Planner.Idempotency = redisx.NewIdempotency(c.Redis)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
