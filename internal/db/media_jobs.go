package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrLeaseLost is returned by the lock-holder writes when the row is no longer
// running under the caller's worker id: stale recovery requeued it, or another
// worker has since claimed it.
var ErrLeaseLost = errors.New("media job lease lost")

func leaseWrite(rows int64, err error) error {
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

const mediaJobColumns = `id, type, status, input, output, attempts, run_after,
       locked_by, locked_at, error_message, created_at, updated_at`

func scanMediaJob(row pgx.Row) (*MediaJob, error) {
	var j MediaJob
	err := row.Scan(
		&j.ID,
		&j.Type,
		&j.Status,
		&j.Input,
		&j.Output,
		&j.Attempts,
		&j.RunAfter,
		&j.LockedBy,
		&j.LockedAt,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Oldest eligible row first. SKIP LOCKED makes concurrent claimers pass over a
// row another transaction is already claiming instead of waiting on it.
const selectNextClaimableMediaJob = `-- name: SelectNextClaimableMediaJob :one
SELECT id FROM media_jobs
WHERE status = 'queued' AND run_after <= now()
ORDER BY run_after ASC, created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`

// SelectNextClaimableMediaJob must run inside a transaction; the row stays
// locked until that transaction ends.
func (q *Queries) SelectNextClaimableMediaJob(ctx context.Context) (pgtype.UUID, error) {
	var id pgtype.UUID
	err := q.db.QueryRow(ctx, selectNextClaimableMediaJob).Scan(&id)
	return id, err
}

const markMediaJobRunning = `-- name: MarkMediaJobRunning :one
UPDATE media_jobs
SET status = 'running',
    locked_by = $2,
    locked_at = now(),
    attempts = attempts + 1,
    updated_at = now()
WHERE id = $1 AND status = 'queued'
RETURNING ` + mediaJobColumns

type MarkMediaJobRunningParams struct {
	ID       pgtype.UUID
	LockedBy string
}

func (q *Queries) MarkMediaJobRunning(ctx context.Context, arg *MarkMediaJobRunningParams) (*MediaJob, error) {
	return scanMediaJob(q.db.QueryRow(ctx, markMediaJobRunning, arg.ID, arg.LockedBy))
}

const completeMediaJob = `-- name: CompleteMediaJob :exec
UPDATE media_jobs
SET status = 'completed',
    output = $2,
    locked_by = NULL,
    locked_at = NULL,
    error_message = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'running' AND locked_by = $3
`

type CompleteMediaJobParams struct {
	ID       pgtype.UUID
	Output   json.RawMessage
	LockedBy string
}

func (q *Queries) CompleteMediaJob(ctx context.Context, arg *CompleteMediaJobParams) error {
	tag, err := q.db.Exec(ctx, completeMediaJob, arg.ID, arg.Output, arg.LockedBy)
	return leaseWrite(tag.RowsAffected(), err)
}

const retryMediaJob = `-- name: RetryMediaJob :exec
UPDATE media_jobs
SET status = 'queued',
    run_after = $2,
    locked_by = NULL,
    locked_at = NULL,
    error_message = $3,
    updated_at = now()
WHERE id = $1 AND status = 'running' AND locked_by = $4
`

type RetryMediaJobParams struct {
	ID           pgtype.UUID
	RunAfter     time.Time
	ErrorMessage string
	LockedBy     string
}

func (q *Queries) RetryMediaJob(ctx context.Context, arg *RetryMediaJobParams) error {
	tag, err := q.db.Exec(ctx, retryMediaJob, arg.ID, arg.RunAfter, arg.ErrorMessage, arg.LockedBy)
	return leaseWrite(tag.RowsAffected(), err)
}

const failMediaJob = `-- name: FailMediaJob :exec
UPDATE media_jobs
SET status = 'failed',
    locked_by = NULL,
    locked_at = NULL,
    error_message = $2,
    updated_at = now()
WHERE id = $1 AND status = 'running' AND locked_by = $3
`

type FailMediaJobParams struct {
	ID           pgtype.UUID
	ErrorMessage string
	LockedBy     string
}

func (q *Queries) FailMediaJob(ctx context.Context, arg *FailMediaJobParams) error {
	tag, err := q.db.Exec(ctx, failMediaJob, arg.ID, arg.ErrorMessage, arg.LockedBy)
	return leaseWrite(tag.RowsAffected(), err)
}

// The claim that was interrupted is not counted: the job goes back to the
// head of the queue with the attempts it had before it was claimed.
const releaseMediaJob = `-- name: ReleaseMediaJob :exec
UPDATE media_jobs
SET status = 'queued',
    run_after = now(),
    locked_by = NULL,
    locked_at = NULL,
    attempts = GREATEST(attempts - 1, 0),
    updated_at = now()
WHERE id = $1 AND status = 'running' AND locked_by = $2
`

func (q *Queries) ReleaseMediaJob(ctx context.Context, id pgtype.UUID, lockedBy string) error {
	tag, err := q.db.Exec(ctx, releaseMediaJob, id, lockedBy)
	return leaseWrite(tag.RowsAffected(), err)
}

const touchMediaJob = `-- name: TouchMediaJob :exec
UPDATE media_jobs
SET locked_at = now(),
    updated_at = now()
WHERE id = $1 AND status = 'running' AND locked_by = $2
`

// TouchMediaJob refreshes the lock of a job the caller is still running so
// stale recovery leaves it alone.
func (q *Queries) TouchMediaJob(ctx context.Context, id pgtype.UUID, lockedBy string) error {
	tag, err := q.db.Exec(ctx, touchMediaJob, id, lockedBy)
	return leaseWrite(tag.RowsAffected(), err)
}

const enqueueMediaJob = `-- name: EnqueueMediaJob :one
INSERT INTO media_jobs (type, status, input, attempts, run_after)
VALUES ($1, 'queued', $2, 0, now())
RETURNING ` + mediaJobColumns

type EnqueueMediaJobParams struct {
	Type  MediaJobType
	Input json.RawMessage
}

func (q *Queries) EnqueueMediaJob(ctx context.Context, arg *EnqueueMediaJobParams) (*MediaJob, error) {
	return scanMediaJob(q.db.QueryRow(ctx, enqueueMediaJob, arg.Type, arg.Input))
}

const getMediaJobByID = `-- name: GetMediaJobByID :one
SELECT ` + mediaJobColumns + `
FROM media_jobs
WHERE id = $1
`

func (q *Queries) GetMediaJobByID(ctx context.Context, id pgtype.UUID) (*MediaJob, error) {
	return scanMediaJob(q.db.QueryRow(ctx, getMediaJobByID, id))
}

const getActiveMediaJobForSwipe = `-- name: GetActiveMediaJobForSwipe :one
SELECT ` + mediaJobColumns + `
FROM media_jobs
WHERE type = 'meta_ad_ingest'
  AND status IN ('queued', 'running')
  AND input->>'swipe_id' = $1
ORDER BY created_at ASC
LIMIT 1
`

func (q *Queries) GetActiveMediaJobForSwipe(ctx context.Context, swipeID string) (*MediaJob, error) {
	return scanMediaJob(q.db.QueryRow(ctx, getActiveMediaJobForSwipe, swipeID))
}

const getActiveMediaJobForResearchItem = `-- name: GetActiveMediaJobForResearchItem :one
SELECT ` + mediaJobColumns + `
FROM media_jobs
WHERE type = 'research_file_ingest'
  AND status IN ('queued', 'running')
  AND input->>'research_item_id' = $1
ORDER BY created_at ASC
LIMIT 1
`

func (q *Queries) GetActiveMediaJobForResearchItem(ctx context.Context, researchItemID string) (*MediaJob, error) {
	return scanMediaJob(q.db.QueryRow(ctx, getActiveMediaJobForResearchItem, researchItemID))
}

// Jobs left running by a worker that died keep their attempts; they re-enter
// the queue and the next claim counts as a new attempt.
const recoverStaleMediaJobs = `-- name: RecoverStaleMediaJobs :execrows
UPDATE media_jobs
SET status = 'queued',
    locked_by = NULL,
    locked_at = NULL,
    run_after = now(),
    error_message = COALESCE(error_message, 'worker lock expired'),
    updated_at = now()
WHERE status = 'running' AND locked_at < $1
`

func (q *Queries) RecoverStaleMediaJobs(ctx context.Context, lockedBefore time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, recoverStaleMediaJobs, lockedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listenMediaJobs = `-- name: ListenMediaJobs :exec
LISTEN media_jobs
`

func (q *Queries) ListenMediaJobs(ctx context.Context) error {
	_, err := q.db.Exec(ctx, listenMediaJobs)
	return err
}
