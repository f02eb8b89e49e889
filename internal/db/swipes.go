package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const swipeColumns = `id, product_id, source, source_url, status, r2_video_key, transcript,
       title, summary, metadata, error_message, created_at, updated_at`

func scanSwipe(row pgx.Row) (*Swipe, error) {
	var s Swipe
	err := row.Scan(
		&s.ID,
		&s.ProductID,
		&s.Source,
		&s.SourceURL,
		&s.Status,
		&s.R2VideoKey,
		&s.Transcript,
		&s.Title,
		&s.Summary,
		&s.Metadata,
		&s.ErrorMessage,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type SwipeKey struct {
	ProductID pgtype.UUID
	Source    string
	SourceURL string
}

const getSwipeByKeyForUpdate = `-- name: GetSwipeByKeyForUpdate :one
SELECT ` + swipeColumns + `
FROM swipes
WHERE product_id = $1 AND source = $2 AND source_url = $3
FOR UPDATE
`

func (q *Queries) GetSwipeByKeyForUpdate(ctx context.Context, key *SwipeKey) (*Swipe, error) {
	return scanSwipe(q.db.QueryRow(ctx, getSwipeByKeyForUpdate, key.ProductID, key.Source, key.SourceURL))
}

// Returns pgx.ErrNoRows when a concurrent insert won the unique key.
const insertSwipe = `-- name: InsertSwipe :one
INSERT INTO swipes (product_id, source, source_url, status, metadata)
VALUES ($1, $2, $3, 'processing', '{}'::jsonb)
ON CONFLICT (product_id, source, source_url) DO NOTHING
RETURNING ` + swipeColumns

func (q *Queries) InsertSwipe(ctx context.Context, key *SwipeKey) (*Swipe, error) {
	return scanSwipe(q.db.QueryRow(ctx, insertSwipe, key.ProductID, key.Source, key.SourceURL))
}

const reviveFailedSwipe = `-- name: ReviveFailedSwipe :one
UPDATE swipes
SET status = 'processing',
    error_message = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'failed'
RETURNING ` + swipeColumns

func (q *Queries) ReviveFailedSwipe(ctx context.Context, id pgtype.UUID) (*Swipe, error) {
	return scanSwipe(q.db.QueryRow(ctx, reviveFailedSwipe, id))
}

const getSwipeByID = `-- name: GetSwipeByID :one
SELECT ` + swipeColumns + `
FROM swipes
WHERE id = $1
`

func (q *Queries) GetSwipeByID(ctx context.Context, id pgtype.UUID) (*Swipe, error) {
	return scanSwipe(q.db.QueryRow(ctx, getSwipeByID, id))
}

const getSwipeByIDForUpdate = getSwipeByID + `FOR UPDATE
`

func (q *Queries) GetSwipeByIDForUpdate(ctx context.Context, id pgtype.UUID) (*Swipe, error) {
	return scanSwipe(q.db.QueryRow(ctx, getSwipeByIDForUpdate, id))
}

const setSwipeVideoKey = `-- name: SetSwipeVideoKey :exec
UPDATE swipes
SET r2_video_key = $2,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) SetSwipeVideoKey(ctx context.Context, id pgtype.UUID, key string) error {
	_, err := q.db.Exec(ctx, setSwipeVideoKey, id, key)
	return err
}

// Metadata is merged into the existing object, never replaced.
const completeSwipe = `-- name: CompleteSwipe :exec
UPDATE swipes
SET transcript = $2,
    title = $3,
    summary = $4,
    metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
    status = 'ready',
    error_message = NULL,
    updated_at = now()
WHERE id = $1
`

type CompleteSwipeParams struct {
	ID         pgtype.UUID
	Transcript string
	Title      *string
	Summary    string
	Metadata   JSONMap
}

func (q *Queries) CompleteSwipe(ctx context.Context, arg *CompleteSwipeParams) error {
	_, err := q.db.Exec(ctx, completeSwipe, arg.ID, arg.Transcript, arg.Title, arg.Summary, arg.Metadata)
	return err
}

// While a job is being retried the swipe stays "processing"; the error only
// lands in metadata.
const markSwipeRetrying = `-- name: MarkSwipeRetrying :exec
UPDATE swipes
SET status = 'processing',
    metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkSwipeRetrying(ctx context.Context, id pgtype.UUID, metadata JSONMap) error {
	_, err := q.db.Exec(ctx, markSwipeRetrying, id, metadata)
	return err
}

const markSwipeFailed = `-- name: MarkSwipeFailed :exec
UPDATE swipes
SET status = 'failed',
    error_message = $2,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkSwipeFailed(ctx context.Context, id pgtype.UUID, errorMessage string) error {
	_, err := q.db.Exec(ctx, markSwipeFailed, id, errorMessage)
	return err
}
