package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMisconfigured marks Signal Store settings that can never connect.
// Unlike ErrStoreUnavailable, retrying or waiting for the database will not help.
var ErrMisconfigured = errors.New("signal store misconfigured")

const (
	connectTimeout = 10 * time.Second
	healthTimeout  = 2 * time.Second
)

// DB is the Signal Store connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConnection opens and verifies the pool. Errors wrap ErrMisconfigured when
// the settings are unusable and models.ErrStoreUnavailable when the store
// cannot be reached.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool on %s:%d: %w", models.ErrStoreUnavailable, cfg.Host, cfg.Port, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping %s:%d: %w", models.ErrStoreUnavailable, cfg.Host, cfg.Port, err)
	}

	logger.Info("signal store connected",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(cfg.MaxConns)),
		slog.Int("min_conns", int(cfg.MinConns)),
	)

	return &DB{Pool: pool, logger: logger}, nil
}

// PoolConfig validates cfg and builds the pgx pool settings without dialing
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.MaxConns <= 0 {
		return nil, fmt.Errorf("%w: max conns must be positive, got %d", ErrMisconfigured, cfg.MaxConns)
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("%w: min conns %d outside [0, %d]", ErrMisconfigured, cfg.MinConns, cfg.MaxConns)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		// pgx errors here can echo the DSN; keep the password out of logs
		return nil, fmt.Errorf("%w: parse connection settings for %s:%d", ErrMisconfigured, cfg.Host, cfg.Port)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	return poolConfig, nil
}

func (db *DB) Close() {
	db.logger.Info("closing signal store pool")
	db.Pool.Close()
}

// HealthCheck pings the store; /health reports degraded when it fails
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}
