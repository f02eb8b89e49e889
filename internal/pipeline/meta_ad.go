package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/sourceurl"
	"thirdcoast.systems/mediaqueue/internal/summarize"
	"thirdcoast.systems/mediaqueue/pkg/adscraper"
	"thirdcoast.systems/mediaqueue/pkg/blob"
	"thirdcoast.systems/mediaqueue/pkg/videoinfo"
)

type AdInput struct {
	SwipeID   string `json:"swipe_id"`
	ProductID string `json:"product_id"`
	URL       string `json:"url"`
}

type AdOutput struct {
	SwipeID          string  `json:"swipe_id"`
	R2VideoKey       string  `json:"r2_video_key"`
	TranscriptLength int     `json:"transcript_length"`
	Title            *string `json:"title"`
}

type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*adscraper.Result, error)
}

type Downloader interface {
	DownloadToFile(ctx context.Context, url, dest string) (int64, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

type AudioExtractor interface {
	ExtractAudio(ctx context.Context, input, output string) error
}

// VideoProber reads stream metadata from a downloaded video.
type VideoProber interface {
	Probe(ctx context.Context, path string) (*videoinfo.ProbeInfo, error)
}

type AdSummarizer interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	SummarizeAd(ctx context.Context, transcript, sourceURL string) (summarize.AdSummary, error)
}

type SwipeStore interface {
	SetSwipeVideoKey(ctx context.Context, swipeID, key string) error
	CompleteSwipe(ctx context.Context, swipeID string, res db.SwipeResult) error
	MarkSwipeRetrying(ctx context.Context, swipeID string, metadata db.JSONMap) error
	MarkSwipeFailed(ctx context.Context, swipeID, errorMessage string) error
}

// MetaAd ingests one ad-library video: scrape the page for the video URL,
// download it, keep the original in the object store, extract audio,
// transcribe, summarize and write the result onto the swipe.
type MetaAd struct {
	Scraper    Scraper
	Downloader Downloader
	Store      ObjectStore
	Audio      AudioExtractor
	// Prober is optional. When set, a video without an audio track fails
	// before transcoding and its duration and size are recorded.
	Prober VideoProber
	AI     AdSummarizer
	Swipes SwipeStore
	// TempDir is the parent of per-job work dirs; "" means the OS default.
	TempDir string

	now func() time.Time
}

// VideoKey is the object-store key of a swipe's original video.
func VideoKey(productID, swipeID string) string {
	return fmt.Sprintf("products/%s/swipes/%s/source.mp4", productID, swipeID)
}

func (p *MetaAd) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func parseAdInput(job *db.MediaJob) (AdInput, error) {
	var in AdInput
	if err := decodeInput(job, &in); err != nil {
		return in, err
	}
	in.SwipeID = strings.TrimSpace(in.SwipeID)
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.URL = strings.TrimSpace(in.URL)
	switch {
	case in.SwipeID == "":
		return in, missing(job, "swipe_id")
	case in.ProductID == "":
		return in, missing(job, "product_id")
	case in.URL == "":
		return in, missing(job, "url")
	}
	return in, nil
}

func (p *MetaAd) Run(ctx context.Context, job *db.MediaJob) (json.RawMessage, error) {
	in, err := parseAdInput(job)
	if err != nil {
		return nil, err
	}

	log := slog.With("job_id", db.UUIDString(job.ID), "swipe_id", in.SwipeID)

	var out AdOutput
	err = withTempDir(p.TempDir, "meta-ad-*", func(dir string) error {
		log.Info("scraping ad page", "url", in.URL)
		scraped, err := p.Scraper.Scrape(ctx, in.URL)
		if err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		if scraped == nil || scraped.VideoURL == "" {
			return fmt.Errorf("%w on %s", ErrNoVideoURL, in.URL)
		}

		src := filepath.Join(dir, "source.mp4")
		size, err := p.Downloader.DownloadToFile(ctx, scraped.VideoURL, src)
		if err != nil {
			return fmt.Errorf("download video: %w", err)
		}
		log.Info("video downloaded", "bytes", size, "fallback", scraped.FromFallback)

		key := VideoKey(in.ProductID, in.SwipeID)
		if _, err := blob.PutFile(ctx, p.Store, key, src, "video/mp4"); err != nil {
			return fmt.Errorf("store original: %w", err)
		}
		if err := p.Swipes.SetSwipeVideoKey(ctx, in.SwipeID, key); err != nil {
			return fmt.Errorf("record video key: %w", err)
		}

		probed, err := p.probe(ctx, log, src)
		if err != nil {
			return err
		}

		audio := filepath.Join(dir, "audio.mp3")
		if err := p.Audio.ExtractAudio(ctx, src, audio); err != nil {
			return fmt.Errorf("extract audio: %w", err)
		}

		transcript, err := p.AI.Transcribe(ctx, audio)
		if err != nil {
			return err
		}
		log.Info("transcribed", "chars", len([]rune(transcript)))

		summary, err := p.AI.SummarizeAd(ctx, transcript, in.URL)
		if err != nil {
			return err
		}

		metadata := db.JSONMap{
			"page_title":  scraped.PageTitle,
			"video_url":   scraped.VideoURL,
			"video_bytes": size,
		}
		if id := sourceurl.AdArchiveID(in.URL); id != "" {
			metadata["ad_archive_id"] = id
		}
		if scraped.FromFallback {
			metadata["video_url_source"] = "html"
		}
		for k, v := range probed {
			metadata[k] = v
		}

		if err := p.Swipes.CompleteSwipe(ctx, in.SwipeID, db.SwipeResult{
			Transcript: transcript,
			Title:      summary.Title,
			Summary:    summary.Summary,
			Metadata:   metadata,
		}); err != nil {
			return fmt.Errorf("save swipe: %w", err)
		}

		out = AdOutput{
			SwipeID:          in.SwipeID,
			R2VideoKey:       key,
			TranscriptLength: len([]rune(transcript)),
			Title:            summary.Title,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// probe returns metadata about the video at path. Probe failures other than a
// missing audio track are logged and ignored; ffmpeg reports those better.
func (p *MetaAd) probe(ctx context.Context, log *slog.Logger, path string) (db.JSONMap, error) {
	if p.Prober == nil {
		return nil, nil
	}
	info, err := p.Prober.Probe(ctx, path)
	if err != nil {
		log.Warn("ffprobe failed", "error", err)
		return nil, nil
	}
	if !info.HasAudio() {
		return nil, ErrNoAudioTrack
	}

	md := db.JSONMap{}
	if d := info.DurationSeconds(); d > 0 {
		md["video_duration_seconds"] = d
	}
	if w, h := info.Dimensions(); w > 0 {
		md["video_width"] = w
		md["video_height"] = h
	}
	return md, nil
}

// MarkRetrying keeps the swipe processing and records the error in metadata.
func (p *MetaAd) MarkRetrying(ctx context.Context, job *db.MediaJob, cause error) error {
	var in AdInput
	if err := decodeInput(job, &in); err != nil || in.SwipeID == "" {
		return nil
	}
	return p.Swipes.MarkSwipeRetrying(ctx, in.SwipeID, retryMetadata(job, cause, p.clock()))
}

// MarkFailed surfaces a terminal failure on the swipe.
func (p *MetaAd) MarkFailed(ctx context.Context, job *db.MediaJob, cause error) error {
	var in AdInput
	if err := decodeInput(job, &in); err != nil || in.SwipeID == "" {
		return nil
	}
	return p.Swipes.MarkSwipeFailed(ctx, in.SwipeID, ErrorMessage(cause))
}
