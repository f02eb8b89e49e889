// Package intake turns user submissions into media jobs. Re-submitting the
// same ad is idempotent, and a swipe or research item never has more than one
// queued or running job.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/pipeline"
	"thirdcoast.systems/mediaqueue/internal/sourceurl"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotFailed  = errors.New("swipe is not in a failed state")
	ErrBadRequest = errors.New("bad request")
)

type Service struct {
	store Transactor
}

func NewService(store Transactor) *Service {
	return &Service{store: store}
}

type AdRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	URL       string `json:"url" validate:"required,url"`
}

type AdResult struct {
	Swipe *db.Swipe `json:"swipe"`
	// Job is the active job for the swipe, nil when the swipe is ready.
	Job      *db.MediaJob `json:"job,omitempty"`
	Created  bool         `json:"created"`
	Revived  bool         `json:"revived"`
	Enqueued bool         `json:"enqueued"`
}

// SubmitAd upserts the swipe for (product, meta_ad_library, normalized url)
// and makes sure a processing swipe has exactly one active job. A ready swipe
// is returned unchanged; a failed one is revived.
func (s *Service) SubmitAd(ctx context.Context, req AdRequest) (*AdResult, error) {
	productID, err := db.ParseUUID("product_id", req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	normalized, err := sourceurl.Normalize(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	key := &db.SwipeKey{ProductID: productID, Source: db.SwipeSourceMetaAdLibrary, SourceURL: normalized}

	var res AdResult
	err = s.store.InTx(ctx, func(q TxStore) error {
		swipe, created, err := lockOrInsertSwipe(ctx, q, key)
		if err != nil {
			return err
		}
		res.Created = created

		if swipe.Status == db.SwipeStatusFailed {
			swipe, err = q.ReviveFailedSwipe(ctx, swipe.ID)
			if err != nil {
				return fmt.Errorf("revive swipe: %w", err)
			}
			res.Revived = true
		}
		res.Swipe = swipe

		if swipe.Status != db.SwipeStatusProcessing {
			return nil
		}
		res.Job, res.Enqueued, err = ensureAdJob(ctx, q, swipe)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("ad submitted",
		"swipe_id", db.UUIDString(res.Swipe.ID),
		"status", res.Swipe.Status,
		"created", res.Created,
		"revived", res.Revived,
		"enqueued", res.Enqueued)
	return &res, nil
}

func lockOrInsertSwipe(ctx context.Context, q TxStore, key *db.SwipeKey) (*db.Swipe, bool, error) {
	swipe, err := q.GetSwipeByKeyForUpdate(ctx, key)
	if err == nil {
		return swipe, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup swipe: %w", err)
	}

	swipe, err = q.InsertSwipe(ctx, key)
	if err == nil {
		return swipe, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert swipe: %w", err)
	}

	// A concurrent submission inserted it first.
	swipe, err = q.GetSwipeByKeyForUpdate(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("lookup swipe after conflict: %w", err)
	}
	return swipe, false, nil
}

func ensureAdJob(ctx context.Context, q TxStore, swipe *db.Swipe) (*db.MediaJob, bool, error) {
	swipeID := db.UUIDString(swipe.ID)
	job, err := q.GetActiveMediaJobForSwipe(ctx, swipeID)
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup active job: %w", err)
	}

	input, err := json.Marshal(pipeline.AdInput{
		SwipeID:   swipeID,
		ProductID: db.UUIDString(swipe.ProductID),
		URL:       swipe.SourceURL,
	})
	if err != nil {
		return nil, false, err
	}
	job, err = q.EnqueueMediaJob(ctx, &db.EnqueueMediaJobParams{Type: db.MediaJobTypeMetaAdIngest, Input: input})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}
	return job, true, nil
}

// RetrySwipe revives a failed swipe and enqueues a fresh job for it.
func (s *Service) RetrySwipe(ctx context.Context, swipeID string) (*AdResult, error) {
	id, err := db.ParseUUID("swipe_id", swipeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var res AdResult
	err = s.store.InTx(ctx, func(q TxStore) error {
		swipe, err := q.GetSwipeByIDForUpdate(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("swipe %s: %w", swipeID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lookup swipe: %w", err)
		}
		if swipe.Status != db.SwipeStatusFailed {
			return fmt.Errorf("swipe %s is %s: %w", swipeID, swipe.Status, ErrNotFailed)
		}

		swipe, err = q.ReviveFailedSwipe(ctx, swipe.ID)
		if err != nil {
			return fmt.Errorf("revive swipe: %w", err)
		}
		res.Swipe = swipe
		res.Revived = true
		res.Job, res.Enqueued, err = ensureAdJob(ctx, q, swipe)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("swipe retry requested", "swipe_id", swipeID, "enqueued", res.Enqueued)
	return &res, nil
}

type FileRequest struct {
	ResearchItemID string `json:"research_item_id" validate:"required,uuid"`
	FileID         string `json:"file_id" validate:"required,uuid"`
	ProductID      string `json:"product_id" validate:"required,uuid"`
	R2Key          string `json:"r2_key" validate:"required"`
	Filename       string `json:"filename" validate:"required"`
	Mime           string `json:"mime"`
}

type FileResult struct {
	Job      *db.MediaJob `json:"job"`
	Enqueued bool         `json:"enqueued"`
}

// SubmitResearchFile puts the research item back to processing and enqueues
// an ingestion job, unless one is already active for the item.
func (s *Service) SubmitResearchFile(ctx context.Context, req FileRequest) (*FileResult, error) {
	itemID, err := db.ParseUUID("research_item_id", req.ResearchItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	for field, v := range map[string]string{"file_id": req.FileID, "product_id": req.ProductID} {
		if _, err := db.ParseUUID(field, v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	if strings.TrimSpace(req.R2Key) == "" {
		return nil, fmt.Errorf("%w: r2_key is required", ErrBadRequest)
	}

	var res FileResult
	err = s.store.InTx(ctx, func(q TxStore) error {
		if _, err := q.GetResearchItemByIDForUpdate(ctx, itemID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("research item %s: %w", req.ResearchItemID, ErrNotFound)
			}
			return fmt.Errorf("lookup research item: %w", err)
		}

		job, err := q.GetActiveMediaJobForResearchItem(ctx, db.UUIDString(itemID))
		if err == nil {
			res.Job = job
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lookup active job: %w", err)
		}

		if err := q.SetResearchItemProcessing(ctx, itemID); err != nil {
			return fmt.Errorf("set research item processing: %w", err)
		}
		input, err := json.Marshal(pipeline.FileInput{
			ResearchItemID: db.UUIDString(itemID),
			FileID:         strings.TrimSpace(req.FileID),
			ProductID:      strings.TrimSpace(req.ProductID),
			R2Key:          strings.TrimSpace(req.R2Key),
			Filename:       req.Filename,
			Mime:           req.Mime,
		})
		if err != nil {
			return err
		}
		res.Job, err = q.EnqueueMediaJob(ctx, &db.EnqueueMediaJobParams{Type: db.MediaJobTypeResearchFileIngest, Input: input})
		if err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		res.Enqueued = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("research file submitted", "research_item_id", req.ResearchItemID, "enqueued", res.Enqueued)
	return &res, nil
}

// Job returns a media job by id.
func (s *Service) Job(ctx context.Context, jobID string) (*db.MediaJob, error) {
	id, err := db.ParseUUID("job_id", jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	var job *db.MediaJob
	err = s.store.InTx(ctx, func(q TxStore) error {
		job, err = q.GetMediaJobByID(ctx, id)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}
