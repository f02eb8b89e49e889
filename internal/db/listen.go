package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListenAndSignal holds a dedicated connection LISTENing on the media_jobs
// channel and does a non-blocking send on signalCh for every notification.
// It reconnects on failure and returns when ctx is done.
func ListenAndSignal(ctx context.Context, dsn string, signalCh chan<- struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		// Parse using pgxpool so pool_* DSN params are consumed client-side
		// (otherwise they get forwarded to Postgres as startup params and cause FATAL).
		poolConf, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			slog.Error("listen parse config failed", "error", err)
			return
		}

		conn, err := pgx.ConnectConfig(ctx, poolConf.ConnConfig)
		if err != nil {
			slog.Error("listen connect failed", "error", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		if err := New(conn).ListenMediaJobs(ctx); err != nil {
			slog.Error("LISTEN failed", "error", err)
			_ = conn.Close(context.Background())
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		for {
			if _, err := conn.WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Error("wait for notification failed", "error", err)
				}
				_ = conn.Close(context.Background())
				break
			}

			select {
			case signalCh <- struct{}{}:
			default:
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
