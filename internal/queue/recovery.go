package queue

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultStaleLockAfter = 30 * time.Minute
	staleSweepInterval    = 2 * time.Minute
)

// StaleRecoverer requeues running jobs locked before a cutoff.
type StaleRecoverer interface {
	RecoverStaleJobs(ctx context.Context, lockedBefore time.Time) (int64, error)
}

// RecoverStale requeues jobs whose lock is older than after. Errors are
// logged; startup continues.
func RecoverStale(ctx context.Context, r StaleRecoverer, after time.Duration) int64 {
	if after <= 0 {
		after = DefaultStaleLockAfter
	}
	n, err := r.RecoverStaleJobs(ctx, time.Now().Add(-after))
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("failed to recover stale media jobs", "error", err)
		}
		return 0
	}
	if n > 0 {
		slog.Warn("requeued stale media jobs", "count", n, "locked_for_over", after)
	}
	return n
}

// SweepStale runs RecoverStale immediately and then every two minutes until
// ctx is done.
func SweepStale(ctx context.Context, r StaleRecoverer, after time.Duration) {
	RecoverStale(ctx, r, after)

	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RecoverStale(ctx, r, after)
		}
	}
}
