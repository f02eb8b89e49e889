// Package pipeline holds the two media ingestion pipelines run by the worker:
// Meta ad-library video ingestion and research document ingestion.
//
// A pipeline's Run does the work for one claimed job and returns the job
// output. MarkRetrying and MarkFailed mirror a job failure onto the swipe or
// research item the job is about.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"thirdcoast.systems/mediaqueue/internal/db"
)

var (
	ErrInvalidInput = errors.New("invalid job input")
	// ErrNoVideoURL and ErrNoExtractableText start the error_message shown to
	// users on the swipe or research item, so they are capitalized sentences.
	ErrNoVideoURL        = errors.New("Failed to locate MP4 URL")
	ErrNoExtractableText = errors.New("No extractable text found")
	ErrNoAudioTrack      = errors.New("video has no audio track")
)

// MinExtractedText is the shortest extraction treated as success.
const MinExtractedText = 20

func decodeInput(job *db.MediaJob, v any) error {
	if len(job.Input) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrInvalidInput, job.Type)
	}
	if err := json.Unmarshal(job.Input, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidInput, job.Type, err)
	}
	return nil
}

func missing(job *db.MediaJob, field string) error {
	return fmt.Errorf("%w: %s payload missing %s", ErrInvalidInput, job.Type, field)
}

// withTempDir runs fn with a fresh private directory under base ("" means
// the OS temp dir) and removes it when fn returns or panics.
func withTempDir(base, pattern string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	return fn(dir)
}

// retryMetadata is merged into the downstream entity while a job waits for
// another attempt.
func retryMetadata(job *db.MediaJob, cause error, now time.Time) db.JSONMap {
	return db.JSONMap{
		"last_error":    ErrorMessage(cause),
		"last_error_at": now.UTC().Format(time.RFC3339),
		"last_attempt":  job.Attempts,
	}
}

const maxErrorMessage = 2000

// ErrorMessage is the user-visible text stored for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	r := []rune(msg)
	if len(r) > maxErrorMessage {
		msg = string(r[:maxErrorMessage])
	}
	return msg
}
