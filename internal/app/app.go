package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exaring/otelpgx"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/adapter/storage"
	"github.com/rl1809/order-fulfillment/internal/config"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
	"github.com/rl1809/order-fulfillment/internal/mylogger"
	"github.com/rl1809/order-fulfillment/internal/port"
)

// App holds the wired services and the connections behind them.
type App struct {
	Store  port.DatabaseRepository
	Carts  port.CartRepository
	Orders *service.OrderService
	Cart   *service.CartService

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	store, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	if err := seedCatalog(ctx, store, cfg.Catalog, logger); err != nil {
		a.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithRetryPolicy(service.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
			Jitter:      cfg.Retry.Jitter,
		}),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		a.closers = append(a.closers, func() { rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		mylogger.Info(ctx, logger, "Connected to redis", zap.String("addr", cfg.Redis.Addr))

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.Redis.CartTTL)
		a.Carts = storage.NewBreakerCartRepository(redisAdapter, logger)
		opts = append(opts, service.WithIdempotency(redisAdapter))
	} else {
		mylogger.Info(ctx, logger, "Redis not configured, keeping carts in memory")
		a.Carts = storage.NewMemoryCartRepository()
	}

	a.Orders = service.NewOrderService(store, a.Carts, logger, opts...)
	a.Cart = service.NewCartService(a.Carts, store, logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.DatabaseRepository, error) {
	switch cfg.Store.Driver {
	case "memory":
		return storage.NewMemoryAdapter(), nil

	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
		a.closers = append(a.closers, func() { db.Close() })

		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		if cfg.Store.Migrate {
			if err := storage.MigrateMySQL(cfg.MySQL.DSN); err != nil {
				return nil, err
			}
		}
		mylogger.Info(ctx, logger, "Connected to mysql")
		return storage.NewMySQLAdapter(db), nil

	case "postgres":
		pgCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		pgCfg.MaxConns = cfg.Postgres.MaxConns
		pgCfg.ConnConfig.Tracer = otelpgx.NewTracer()

		pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.Store.Migrate {
			if err := storage.MigratePostgres(cfg.Postgres.URL); err != nil {
				return nil, err
			}
		}
		mylogger.Info(ctx, logger, "Connected to postgres")
		return storage.NewPostgresAdapter(pool, logger), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// seedCatalog inserts configured products that the store does not know yet.
// Existing products keep their stock.
func seedCatalog(ctx context.Context, catalog port.CatalogRepository, entries []config.Seeded, logger *zap.Logger) error {
	for _, entry := range entries {
		_, err := catalog.GetProduct(ctx, entry.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrProductNotFound) {
			return fmt.Errorf("look up product %d: %w", entry.ID, err)
		}

		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return fmt.Errorf("parse price of product %d: %w", entry.ID, err)
		}

		product := &domain.Product{
			ID:       entry.ID,
			Name:     entry.Name,
			Category: entry.Category,
			Price:    price,
			Stock:    entry.Stock,
		}
		if err := catalog.SaveProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %d: %w", entry.ID, err)
		}

		mylogger.Info(ctx, logger, "Seeded product",
			zap.Int64("product_id", entry.ID),
			zap.String("name", entry.Name),
			zap.Int("stock", entry.Stock),
		)
	}

	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
