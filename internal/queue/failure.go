package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/pipeline"
)

// failureWriteTimeout bounds each write made while recording a failure.
const failureWriteTimeout = 15 * time.Second

// FailureHandler records a failed job attempt on the job row and, through
// the pipeline, on the downstream record. Every write is best-effort: errors
// are logged and never returned.
type FailureHandler struct {
	Store Store
	now   func() time.Time
}

func NewFailureHandler(store Store) *FailureHandler {
	return &FailureHandler{Store: store, now: time.Now}
}

// OnJobFailure schedules a retry while job.Attempts < MaxAttempts and fails
// the job otherwise. p may be nil when no pipeline owns the job type.
func (h *FailureHandler) OnJobFailure(ctx context.Context, job *db.MediaJob, p Pipeline, cause error) {
	// The pipeline context may already be cancelled by shutdown.
	ctx = context.WithoutCancel(ctx)
	msg := pipeline.ErrorMessage(cause)
	owner := lockOwner(job)
	jobID := db.UUIDString(job.ID)
	log := slog.With("job_id", jobID, "job_type", job.Type, "attempt", job.Attempts)

	if job.Attempts < MaxAttempts {
		delay := Backoff(job.Attempts)
		runAfter := h.clock()().Add(delay)
		log.Warn("media job failed, scheduling retry", "error", cause, "retry_in", delay)

		err := h.write(ctx, log, "retry job", func(ctx context.Context) error {
			return h.Store.RetryJob(ctx, job.ID, owner, runAfter, msg)
		})
		if errors.Is(err, db.ErrLeaseLost) {
			return
		}
		if p != nil {
			h.write(ctx, log, "mark downstream retrying", func(ctx context.Context) error {
				return p.MarkRetrying(ctx, job, cause)
			})
		}
		return
	}

	log.Error("media job failed permanently", "error", cause)
	err := h.write(ctx, log, "fail job", func(ctx context.Context) error {
		return h.Store.FailJob(ctx, job.ID, owner, msg)
	})
	if errors.Is(err, db.ErrLeaseLost) {
		return
	}
	if p != nil {
		h.write(ctx, log, "mark downstream failed", func(ctx context.Context) error {
			return p.MarkFailed(ctx, job, cause)
		})
	}
}

func (h *FailureHandler) clock() func() time.Time {
	if h.now == nil {
		return time.Now
	}
	return h.now
}

// write runs one failure write and logs its error. The error is returned only
// so callers can stop when the job's lease has been lost.
func (h *FailureHandler) write(ctx context.Context, log *slog.Logger, what string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, failureWriteTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while recording job failure", "step", what, "panic", r)
		}
	}()

	err = fn(ctx)
	switch {
	case errors.Is(err, db.ErrLeaseLost):
		log.Warn("media job lease lost, leaving it to its current owner", "step", what)
	case err != nil:
		log.Error("failed to record job failure", "step", what, "error", err)
	}
	return err
}
