package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"thirdcoast.systems/mediaqueue/internal/config"
	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/pipeline"
	"thirdcoast.systems/mediaqueue/internal/queue"
	"thirdcoast.systems/mediaqueue/internal/summarize"
	"thirdcoast.systems/mediaqueue/pkg/adscraper"
	"thirdcoast.systems/mediaqueue/pkg/blob"
	"thirdcoast.systems/mediaqueue/pkg/ffmpeg"
	"thirdcoast.systems/mediaqueue/pkg/objectstore"
	"thirdcoast.systems/mediaqueue/pkg/openai"
	"thirdcoast.systems/mediaqueue/pkg/textextract"
	"thirdcoast.systems/mediaqueue/pkg/videoinfo"
)

// Pipelines are the worker's job handlers, built once per process and shared
// by every claim loop.
type Pipelines struct {
	MetaAd       *pipeline.MetaAd
	ResearchFile *pipeline.ResearchFile
}

// NewPipelines constructs the object store, AI, browser and ffmpeg clients
// from conf and wires them into both pipelines.
func NewPipelines(ctx context.Context, conf config.Config, store *db.Store) (*Pipelines, error) {
	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:        conf.Storage.Endpoint,
		AccountID:       conf.Storage.AccountID,
		AccessKeyID:     conf.Storage.AccessKeyID,
		SecretAccessKey: conf.Storage.SecretAccessKey,
		Bucket:          conf.Storage.Bucket,
		Region:          conf.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	ai := summarize.New(
		openai.New(openai.Config{APIKey: conf.AI.STTAPIKey, BaseURL: conf.AI.STTBaseURL, Model: conf.AI.STTModel}),
		openai.New(openai.Config{APIKey: conf.AI.LLMAPIKey, BaseURL: conf.AI.LLMBaseURL, Model: conf.AI.LLMModel}),
	)

	if conf.TempDir != "" {
		if err := os.MkdirAll(conf.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir %s: %w", conf.TempDir, err)
		}
	}

	slog.Info("Media clients ready",
		"bucket", objects.Bucket(),
		"stt_model", conf.AI.STTModel,
		"llm_model", conf.AI.LLMModel,
		"max_download", humanize.IBytes(uint64(conf.MaxDownloadBytes)),
		"ffmpeg", conf.FFmpegPath,
	)

	return &Pipelines{
		MetaAd: &pipeline.MetaAd{
			Scraper: adscraper.New(adscraper.Options{
				ChromePath: conf.ChromePath,
				NavTimeout: conf.ScrapeNavTimeout,
				Settle:     conf.ScrapeSettle,
			}),
			Downloader: blob.NewDownloader(conf.MaxDownloadBytes),
			Store:      objects,
			Audio:      ffmpeg.Runner{Binary: conf.FFmpegPath},
			Prober:     videoinfo.Prober{Binary: conf.FFprobePath},
			AI:         ai,
			Swipes:     store,
			TempDir:    conf.TempDir,
		},
		ResearchFile: &pipeline.ResearchFile{
			Store:    objects,
			Extract:  textextract.Extract,
			AI:       ai,
			Research: store,
			TempDir:  conf.TempDir,
		},
	}, nil
}

// Register adds both pipelines to d.
func (p *Pipelines) Register(d *queue.Dispatcher) {
	d.Register(db.MediaJobTypeMetaAdIngest, p.MetaAd)
	d.Register(db.MediaJobTypeResearchFileIngest, p.ResearchFile)
}
