package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Store adapts a DatabaseConnection to the worker-side interfaces: the claim
// loop's job store and the pipelines' downstream entity stores. Entity ids
// arrive as text from job payloads and are parsed here.
type Store struct {
	dbc *DatabaseConnection
}

func NewStore(dbc *DatabaseConnection) *Store {
	return &Store{dbc: dbc}
}

func (s *Store) q(ctx context.Context) *Queries {
	return s.dbc.Queries(ctx)
}

func (s *Store) ClaimNextJob(ctx context.Context, workerID string) (*MediaJob, error) {
	return s.dbc.ClaimNextMediaJob(ctx, workerID)
}

// The job writes below only apply while workerID still holds the lock and
// return ErrLeaseLost otherwise.

func (s *Store) CompleteJob(ctx context.Context, id pgtype.UUID, workerID string, output json.RawMessage) error {
	return s.q(ctx).CompleteMediaJob(ctx, &CompleteMediaJobParams{ID: id, Output: output, LockedBy: workerID})
}

func (s *Store) RetryJob(ctx context.Context, id pgtype.UUID, workerID string, runAfter time.Time, errorMessage string) error {
	return s.q(ctx).RetryMediaJob(ctx, &RetryMediaJobParams{ID: id, RunAfter: runAfter, ErrorMessage: errorMessage, LockedBy: workerID})
}

func (s *Store) FailJob(ctx context.Context, id pgtype.UUID, workerID string, errorMessage string) error {
	return s.q(ctx).FailMediaJob(ctx, &FailMediaJobParams{ID: id, ErrorMessage: errorMessage, LockedBy: workerID})
}

func (s *Store) ReleaseJob(ctx context.Context, id pgtype.UUID, workerID string) error {
	return s.q(ctx).ReleaseMediaJob(ctx, id, workerID)
}

func (s *Store) TouchJob(ctx context.Context, id pgtype.UUID, workerID string) error {
	return s.q(ctx).TouchMediaJob(ctx, id, workerID)
}

func (s *Store) RecoverStaleJobs(ctx context.Context, lockedBefore time.Time) (int64, error) {
	return s.q(ctx).RecoverStaleMediaJobs(ctx, lockedBefore)
}

// SwipeResult is what a finished ad ingestion writes onto its swipe.
type SwipeResult struct {
	Transcript string
	Title      *string
	Summary    string
	Metadata   JSONMap
}

func (s *Store) SetSwipeVideoKey(ctx context.Context, swipeID, key string) error {
	id, err := ParseUUID("swipe_id", swipeID)
	if err != nil {
		return err
	}
	return s.q(ctx).SetSwipeVideoKey(ctx, id, key)
}

func (s *Store) CompleteSwipe(ctx context.Context, swipeID string, res SwipeResult) error {
	id, err := ParseUUID("swipe_id", swipeID)
	if err != nil {
		return err
	}
	return s.q(ctx).CompleteSwipe(ctx, &CompleteSwipeParams{
		ID:         id,
		Transcript: res.Transcript,
		Title:      res.Title,
		Summary:    res.Summary,
		Metadata:   res.Metadata,
	})
}

func (s *Store) MarkSwipeRetrying(ctx context.Context, swipeID string, metadata JSONMap) error {
	id, err := ParseUUID("swipe_id", swipeID)
	if err != nil {
		return err
	}
	return s.q(ctx).MarkSwipeRetrying(ctx, id, metadata)
}

func (s *Store) MarkSwipeFailed(ctx context.Context, swipeID, errorMessage string) error {
	id, err := ParseUUID("swipe_id", swipeID)
	if err != nil {
		return err
	}
	return s.q(ctx).MarkSwipeFailed(ctx, id, errorMessage)
}

// ResearchResult is what a finished document ingestion writes onto its item.
type ResearchResult struct {
	Content  string
	Title    *string
	Summary  string
	Metadata JSONMap
}

// CompleteResearch updates the research item and marks its source file
// processed in one transaction.
func (s *Store) CompleteResearch(ctx context.Context, itemID, fileID string, res ResearchResult) error {
	iid, err := ParseUUID("research_item_id", itemID)
	if err != nil {
		return err
	}
	fid, err := ParseUUID("file_id", fileID)
	if err != nil {
		return err
	}
	return s.dbc.InTx(ctx, func(q *Queries) error {
		if err := q.CompleteResearchItem(ctx, &CompleteResearchItemParams{
			ID:       iid,
			Content:  res.Content,
			Title:    res.Title,
			Summary:  res.Summary,
			Metadata: res.Metadata,
		}); err != nil {
			return err
		}
		return q.MarkResearchFileProcessed(ctx, fid)
	})
}

func (s *Store) MarkResearchItemRetrying(ctx context.Context, itemID string, metadata JSONMap) error {
	id, err := ParseUUID("research_item_id", itemID)
	if err != nil {
		return err
	}
	return s.q(ctx).MarkResearchItemRetrying(ctx, id, metadata)
}

func (s *Store) MarkResearchItemFailed(ctx context.Context, itemID, errorMessage string) error {
	id, err := ParseUUID("research_item_id", itemID)
	if err != nil {
		return err
	}
	return s.q(ctx).MarkResearchItemFailed(ctx, id, errorMessage)
}
