package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/summarize"
	"thirdcoast.systems/mediaqueue/pkg/blob"
	"thirdcoast.systems/mediaqueue/pkg/utils/filename"
)

type FileInput struct {
	ResearchItemID string `json:"research_item_id"`
	FileID         string `json:"file_id"`
	ProductID      string `json:"product_id"`
	R2Key          string `json:"r2_key"`
	Filename       string `json:"filename"`
	Mime           string `json:"mime"`
}

type FileOutput struct {
	ResearchItemID string  `json:"research_item_id"`
	FileID         string  `json:"file_id"`
	TextLength     int     `json:"text_length"`
	Title          *string `json:"title"`
}

// ExtractFunc converts a local document into plain text.
type ExtractFunc func(path, mimeType, filename string) (string, error)

type DocumentSummarizer interface {
	SummarizeDocument(ctx context.Context, text, filename string) (summarize.DocumentSummary, error)
}

type ResearchStore interface {
	CompleteResearch(ctx context.Context, itemID, fileID string, res db.ResearchResult) error
	MarkResearchItemRetrying(ctx context.Context, itemID string, metadata db.JSONMap) error
	MarkResearchItemFailed(ctx context.Context, itemID, errorMessage string) error
}

// ResearchFile ingests one uploaded document: fetch it from the object store,
// extract its text, summarize it and write the result onto the research item.
type ResearchFile struct {
	Store    ObjectStore
	Extract  ExtractFunc
	AI       DocumentSummarizer
	Research ResearchStore
	TempDir  string

	now func() time.Time
}

func (p *ResearchFile) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func parseFileInput(job *db.MediaJob) (FileInput, error) {
	var in FileInput
	if err := decodeInput(job, &in); err != nil {
		return in, err
	}
	in.ResearchItemID = strings.TrimSpace(in.ResearchItemID)
	in.FileID = strings.TrimSpace(in.FileID)
	in.R2Key = strings.TrimSpace(in.R2Key)
	switch {
	case in.ResearchItemID == "":
		return in, missing(job, "research_item_id")
	case in.FileID == "":
		return in, missing(job, "file_id")
	case in.R2Key == "":
		return in, missing(job, "r2_key")
	}
	return in, nil
}

func (p *ResearchFile) Run(ctx context.Context, job *db.MediaJob) (json.RawMessage, error) {
	in, err := parseFileInput(job)
	if err != nil {
		return nil, err
	}

	log := slog.With("job_id", db.UUIDString(job.ID), "research_item_id", in.ResearchItemID)

	var out FileOutput
	err = withTempDir(p.TempDir, "research-file-*", func(dir string) error {
		local := filepath.Join(dir, filename.ForTemp(in.Filename, "upload"))
		size, err := blob.FetchObject(ctx, p.Store, in.R2Key, local)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", in.R2Key, err)
		}
		log.Info("document fetched", "key", in.R2Key, "bytes", size, "mime", in.Mime)

		text, err := p.Extract(local, in.Mime, in.Filename)
		if err != nil {
			return fmt.Errorf("extract text: %w", err)
		}
		n := len([]rune(text))
		if n < MinExtractedText {
			return fmt.Errorf("%w in %s (%d characters)", ErrNoExtractableText, in.Filename, n)
		}

		summary, err := p.AI.SummarizeDocument(ctx, text, in.Filename)
		if err != nil {
			return err
		}

		keywords := summary.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		if err := p.Research.CompleteResearch(ctx, in.ResearchItemID, in.FileID, db.ResearchResult{
			Content:  text,
			Title:    summary.Title,
			Summary:  summary.Summary,
			Metadata: db.JSONMap{"keywords": keywords},
		}); err != nil {
			return fmt.Errorf("save research item: %w", err)
		}

		out = FileOutput{
			ResearchItemID: in.ResearchItemID,
			FileID:         in.FileID,
			TextLength:     n,
			Title:          summary.Title,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// MarkRetrying keeps the item processing and records the error in metadata.
func (p *ResearchFile) MarkRetrying(ctx context.Context, job *db.MediaJob, cause error) error {
	var in FileInput
	if err := decodeInput(job, &in); err != nil || in.ResearchItemID == "" {
		return nil
	}
	return p.Research.MarkResearchItemRetrying(ctx, in.ResearchItemID, retryMetadata(job, cause, p.clock()))
}

// MarkFailed surfaces a terminal failure on the research item.
func (p *ResearchFile) MarkFailed(ctx context.Context, job *db.MediaJob, cause error) error {
	var in FileInput
	if err := decodeInput(job, &in); err != nil || in.ResearchItemID == "" {
		return nil
	}
	return p.Research.MarkResearchItemFailed(ctx, in.ResearchItemID, ErrorMessage(cause))
}
