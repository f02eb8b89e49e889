package queue

import (
	"context"
	"log/slog"
	"time"

	"thirdcoast.systems/mediaqueue/internal/db"
)

const DefaultPollInterval = 2 * time.Second

// Worker is one claim loop. Several workers may share a Store; the claim
// protocol keeps them from running the same job.
type Worker struct {
	ID           string
	Store        Store
	Dispatcher   *Dispatcher
	PollInterval time.Duration
	// Wake, when set, cuts an idle wait short.
	Wake <-chan struct{}
}

// Run claims and dispatches jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := slog.With("worker_id", w.ID)
	log.Info("media worker started", "poll_interval", interval)

	for {
		if ctx.Err() != nil {
			log.Info("media worker stopping")
			return
		}

		job, err := w.Store.ClaimNextJob(ctx, w.ID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("failed to claim media job", "error", err)
			}
			w.wait(ctx, interval)
			continue
		}
		if job == nil {
			w.wait(ctx, interval)
			continue
		}

		log.Info("claimed media job", "job_id", db.UUIDString(job.ID), "job_type", job.Type, "attempt", job.Attempts)
		w.Dispatcher.Dispatch(ctx, job)
	}
}

func (w *Worker) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-w.Wake:
	case <-t.C:
	}
}
