package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const researchItemColumns = `id, product_id, file_id, status, content, title, summary,
       metadata, error_message, created_at, updated_at`

func scanResearchItem(row pgx.Row) (*ResearchItem, error) {
	var it ResearchItem
	err := row.Scan(
		&it.ID,
		&it.ProductID,
		&it.FileID,
		&it.Status,
		&it.Content,
		&it.Title,
		&it.Summary,
		&it.Metadata,
		&it.ErrorMessage,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

const getResearchItemByIDForUpdate = `-- name: GetResearchItemByIDForUpdate :one
SELECT ` + researchItemColumns + `
FROM research_items
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetResearchItemByIDForUpdate(ctx context.Context, id pgtype.UUID) (*ResearchItem, error) {
	return scanResearchItem(q.db.QueryRow(ctx, getResearchItemByIDForUpdate, id))
}

const setResearchItemProcessing = `-- name: SetResearchItemProcessing :exec
UPDATE research_items
SET status = 'processing',
    error_message = NULL,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) SetResearchItemProcessing(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, setResearchItemProcessing, id)
	return err
}

// "inbox" hands the item to the user for categorization.
const completeResearchItem = `-- name: CompleteResearchItem :exec
UPDATE research_items
SET content = $2,
    title = $3,
    summary = $4,
    metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
    status = 'inbox',
    error_message = NULL,
    updated_at = now()
WHERE id = $1
`

type CompleteResearchItemParams struct {
	ID       pgtype.UUID
	Content  string
	Title    *string
	Summary  string
	Metadata JSONMap
}

func (q *Queries) CompleteResearchItem(ctx context.Context, arg *CompleteResearchItemParams) error {
	_, err := q.db.Exec(ctx, completeResearchItem, arg.ID, arg.Content, arg.Title, arg.Summary, arg.Metadata)
	return err
}

const markResearchFileProcessed = `-- name: MarkResearchFileProcessed :exec
UPDATE research_files
SET processed = true,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkResearchFileProcessed(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, markResearchFileProcessed, id)
	return err
}

const markResearchItemRetrying = `-- name: MarkResearchItemRetrying :exec
UPDATE research_items
SET status = 'processing',
    metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkResearchItemRetrying(ctx context.Context, id pgtype.UUID, metadata JSONMap) error {
	_, err := q.db.Exec(ctx, markResearchItemRetrying, id, metadata)
	return err
}

const markResearchItemFailed = `-- name: MarkResearchItemFailed :exec
UPDATE research_items
SET status = 'failed',
    error_message = $2,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkResearchItemFailed(ctx context.Context, id pgtype.UUID, errorMessage string) error {
	_, err := q.db.Exec(ctx, markResearchItemFailed, id, errorMessage)
	return err
}
