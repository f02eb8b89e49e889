package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"thirdcoast.systems/mediaqueue/internal/db"
)

var ErrUnknownJobType = errors.New("unknown job type")

// DefaultHeartbeatInterval is how often a running job's lock is refreshed.
const DefaultHeartbeatInterval = time.Minute

// HeartbeatFor picks a refresh interval well inside the stale-lock window.
func HeartbeatFor(staleAfter time.Duration) time.Duration {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleLockAfter
	}
	if d := staleAfter / 4; d < DefaultHeartbeatInterval {
		return d
	}
	return DefaultHeartbeatInterval
}

// Dispatcher routes claimed jobs to the pipeline registered for their type.
type Dispatcher struct {
	// HeartbeatInterval is how often locked_at is refreshed while a
	// pipeline runs. Zero means DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	store     Store
	failures  *FailureHandler
	pipelines map[db.MediaJobType]Pipeline
}

func NewDispatcher(store Store, failures *FailureHandler) *Dispatcher {
	if failures == nil {
		failures = NewFailureHandler(store)
	}
	return &Dispatcher{
		store:     store,
		failures:  failures,
		pipelines: make(map[db.MediaJobType]Pipeline),
	}
}

func (d *Dispatcher) Register(t db.MediaJobType, p Pipeline) {
	d.pipelines[t] = p
}

// Dispatch runs job to completion and records the outcome. It does not
// return pipeline errors; they are handed to the failure handler.
//
// A job interrupted by ctx being cancelled is released back to the queue
// rather than counted as a failure. A job whose lock was taken over while it
// ran is abandoned without touching the job row or its downstream record.
func (d *Dispatcher) Dispatch(ctx context.Context, job *db.MediaJob) {
	jobID := db.UUIDString(job.ID)
	log := slog.With("job_id", jobID, "job_type", job.Type, "attempt", job.Attempts)

	p, ok := d.pipelines[job.Type]
	if !ok {
		d.failures.OnJobFailure(ctx, job, nil, fmt.Errorf("%w: %q", ErrUnknownJobType, job.Type))
		return
	}

	start := time.Now()
	log.Info("media job started")

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopHeartbeat := d.heartbeat(runCtx, job, cancel, log)
	output, err := runPipeline(runCtx, p, job)
	stopHeartbeat()

	switch {
	case errors.Is(context.Cause(runCtx), db.ErrLeaseLost):
		log.Warn("media job lease lost while running, dropping result", "error", err)
		return
	case err != nil && ctx.Err() != nil:
		d.release(ctx, job, log, err)
		return
	case err != nil:
		d.failures.OnJobFailure(ctx, job, p, err)
		return
	}

	if len(output) == 0 {
		output = json.RawMessage(`{}`)
	}
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancelWrite()
	if err := d.store.CompleteJob(writeCtx, job.ID, lockOwner(job), output); err != nil {
		if errors.Is(err, db.ErrLeaseLost) {
			log.Warn("media job lease lost before completion was recorded")
			return
		}
		// The downstream record is already persisted; the job will be picked
		// up by stale recovery and rerun.
		log.Error("failed to mark media job completed", "error", err)
		return
	}
	log.Info("media job completed", "duration", time.Since(start).Round(time.Millisecond))
}

// heartbeat keeps job's lock fresh until the returned stop func is called.
// If the lock turns out to belong to someone else, lost is called with
// db.ErrLeaseLost so the pipeline stops early.
func (d *Dispatcher) heartbeat(ctx context.Context, job *db.MediaJob, lost context.CancelCauseFunc, log *slog.Logger) (stop func()) {
	interval := d.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	owner := lockOwner(job)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			touchCtx, cancel := context.WithTimeout(ctx, failureWriteTimeout)
			err := d.store.TouchJob(touchCtx, job.ID, owner)
			cancel()
			switch {
			case errors.Is(err, db.ErrLeaseLost):
				log.Warn("media job lease lost, stopping pipeline")
				lost(db.ErrLeaseLost)
				return
			case err != nil && ctx.Err() == nil:
				log.Warn("failed to refresh media job lock", "error", err)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// release hands an interrupted job back to the queue. Its downstream record
// stays processing; the next claim picks the work up again.
func (d *Dispatcher) release(ctx context.Context, job *db.MediaJob, log *slog.Logger, cause error) {
	log.Info("media job interrupted, releasing", "error", cause)
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if err := d.store.ReleaseJob(writeCtx, job.ID, lockOwner(job)); err != nil && !errors.Is(err, db.ErrLeaseLost) {
		log.Error("failed to release media job", "error", err)
	}
}

func runPipeline(ctx context.Context, p Pipeline, job *db.MediaJob) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("media pipeline panicked", "job_id", db.UUIDString(job.ID), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return p.Run(ctx, job)
}
