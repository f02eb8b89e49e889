package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"thirdcoast.systems/mediaqueue/internal/config"
)

var (
	dbOpenBackoffBase  = 1 * time.Second
	dbOpenBackoffScale = 1.618
)

// OpenDBPoolWithRetry initializes a new PostgreSQL connection pool and pings it,
// retrying both steps with a golden-ratio backoff. A returned error means the
// store is unreachable and the caller should exit.
func OpenDBPoolWithRetry(ctx context.Context, conf config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var lastErr error

	cfg, err := pgxpool.ParseConfig(conf.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	retries := conf.DatabaseRetries
	if retries <= 0 {
		retries = 1
	}

	slog.Info("Connecting to database", "host", cfg.ConnConfig.Host)
	for i := 0; i < retries; i++ {
		if pool, err = pgxpool.NewWithConfig(ctx, cfg); err == nil {
			break
		}
		lastErr = err

		if !sleepBackoff(ctx, i) {
			return nil, ctx.Err()
		}
	}

	if pool == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retries, lastErr)
		}
		return nil, fmt.Errorf("failed to connect to database after %d attempts", retries)
	}

	for i := 0; i < retries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			slog.Info("Database reachable", "host", cfg.ConnConfig.Host)
			return pool, nil
		}
		lastErr = err

		if !sleepBackoff(ctx, i) {
			pool.Close()
			return nil, ctx.Err()
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to ping database after %d attempts: %w", retries, lastErr)
}

func sleepBackoff(ctx context.Context, attempt int) bool {
	backoff := time.Duration(float64(dbOpenBackoffBase) * math.Pow(dbOpenBackoffScale, float64(attempt)))
	slog.Warn("Database not ready, retrying", "attempt", attempt+1, "backoff", backoff)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(backoff):
		return true
	}
}
