package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/port"
	_ "modernc.org/sqlite"
)

const redisPoolSize = 100

// Database is a repository that can create its own schema.
type Database interface {
	port.DatabaseRepository
	Migrate(ctx context.Context) error
}

// Open connects to the configured driver, pings it and migrates the schema.
func Open(ctx context.Context, cfg *config.Config) (Database, error) {
	var repo Database

	switch cfg.DBDriver {
	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.DBConnMaxLifetime
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo = NewPostgresAdapter(pool)

	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		repo = NewMySQLAdapter(db)

	case config.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		repo = NewSQLiteAdapter(db)

	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// OpenIdempotency returns the Redis store when REDIS_ADDR is set and the
// in-process LRU otherwise. The returned func releases the connection.
func OpenIdempotency(ctx context.Context, cfg *config.Config) (port.IdempotencyRepository, func() error, error) {
	if cfg.RedisAddr == "" {
		return NewLRUAdapter(cfg.IdempotencyCacheSize, cfg.IdempotencyTTL), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: redisPoolSize,
	})
	adapter := NewRedisAdapter(rdb, cfg.IdempotencyTTL)
	if err := adapter.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return adapter, rdb.Close, nil
}
