// Package queue runs media_jobs: the claim loop, the dispatcher that routes a
// claimed job to its pipeline, and the failure handler that decides between
// a delayed retry and terminal failure.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/mediaqueue/internal/db"
)

// MaxAttempts is the number of claims a job gets before a failure is terminal.
const MaxAttempts = 3

// Backoff returns how long a job that failed on its attempts-th claim waits
// before it is eligible again.
func Backoff(attempts int32) time.Duration {
	switch {
	case attempts <= 1:
		return 60 * time.Second
	case attempts == 2:
		return 300 * time.Second
	default:
		return 1200 * time.Second
	}
}

// Store is the job side of the queue database.
//
// Every write after the claim is conditional on workerID still holding the
// job's lock and returns db.ErrLeaseLost when it does not.
type Store interface {
	// ClaimNextJob returns nil, nil when no job is eligible.
	ClaimNextJob(ctx context.Context, workerID string) (*db.MediaJob, error)
	CompleteJob(ctx context.Context, id pgtype.UUID, workerID string, output json.RawMessage) error
	RetryJob(ctx context.Context, id pgtype.UUID, workerID string, runAfter time.Time, errorMessage string) error
	FailJob(ctx context.Context, id pgtype.UUID, workerID string, errorMessage string) error
	// ReleaseJob requeues an interrupted job immediately without counting
	// the claim as an attempt.
	ReleaseJob(ctx context.Context, id pgtype.UUID, workerID string) error
	// TouchJob refreshes locked_at for a job that is still running.
	TouchJob(ctx context.Context, id pgtype.UUID, workerID string) error
}

// lockOwner is the worker id a claimed job is locked by.
func lockOwner(job *db.MediaJob) string {
	if job.LockedBy == nil {
		return ""
	}
	return *job.LockedBy
}

// Pipeline processes one job type. MarkRetrying and MarkFailed mirror a job
// failure onto the record the job is about.
type Pipeline interface {
	Run(ctx context.Context, job *db.MediaJob) (json.RawMessage, error)
	MarkRetrying(ctx context.Context, job *db.MediaJob, cause error) error
	MarkFailed(ctx context.Context, job *db.MediaJob, cause error) error
}
