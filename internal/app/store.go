package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db"
	"github.com/sundayezeilo/shortlink/internal/shortener"
	"github.com/sundayezeilo/shortlink/internal/store/memstore"
	"github.com/sundayezeilo/shortlink/internal/store/pgstore"
	"github.com/sundayezeilo/shortlink/internal/store/redisstore"
	"github.com/sundayezeilo/shortlink/internal/store/sqlitestore"
)

// Backend is an opened mapping store together with the resources that back it.
type Backend struct {
	Store  shortener.Store
	DBPool *pgxpool.Pool // set for the postgres driver
	Close  func()
}

// OpenStore connects the backend selected by cfg.Store.Driver and applies
// its schema where one exists.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := connectDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("database migrations applied", "versions", applied)
		}
		return &Backend{Store: pgstore.New(db.New(pool)), DBPool: pool, Close: pool.Close}, nil

	case config.DriverRedis:
		client, err := connectRedis(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return &Backend{
			Store: redisstore.New(client, cfg.Redis.KeyPrefix),
			Close: func() { _ = client.Close() },
		}, nil

	case config.DriverSQLite:
		logger.Info("opening sqlite database", "path", cfg.SQLite.Path)
		gdb, err := sqlitestore.Open(cfg.SQLite.Path, cfg.SQLite.Debug)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return &Backend{
			Store: sqlitestore.New(gdb),
			Close: func() { _ = sqlDB.Close() },
		}, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; mappings are lost on restart")
		return &Backend{Store: memstore.New(), Close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return pool, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	logger.Info("connecting to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established")
	return client, nil
}
