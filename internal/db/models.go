package db

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type MediaJobType string

const (
	MediaJobTypeMetaAdIngest       MediaJobType = "meta_ad_ingest"
	MediaJobTypeResearchFileIngest MediaJobType = "research_file_ingest"
)

type MediaJobStatus string

const (
	MediaJobStatusQueued    MediaJobStatus = "queued"
	MediaJobStatusRunning   MediaJobStatus = "running"
	MediaJobStatusCompleted MediaJobStatus = "completed"
	MediaJobStatusFailed    MediaJobStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s MediaJobStatus) IsTerminal() bool {
	return s == MediaJobStatusCompleted || s == MediaJobStatusFailed
}

type SwipeStatus string

const (
	SwipeStatusProcessing SwipeStatus = "processing"
	SwipeStatusReady      SwipeStatus = "ready"
	SwipeStatusFailed     SwipeStatus = "failed"
)

// SwipeSourceMetaAdLibrary is the source value for swipes ingested from the
// Meta ad library.
const SwipeSourceMetaAdLibrary = "meta_ad_library"

type ResearchItemStatus string

const (
	ResearchItemStatusInbox      ResearchItemStatus = "inbox"
	ResearchItemStatusProcessing ResearchItemStatus = "processing"
	ResearchItemStatusFailed     ResearchItemStatus = "failed"
)

// MediaJob is one row of media_jobs.
type MediaJob struct {
	ID           pgtype.UUID        `json:"id"`
	Type         MediaJobType       `json:"type"`
	Status       MediaJobStatus     `json:"status"`
	Input        json.RawMessage    `json:"input"`
	Output       json.RawMessage    `json:"output,omitempty"`
	Attempts     int32              `json:"attempts"`
	RunAfter     time.Time          `json:"run_after"`
	LockedBy     *string            `json:"locked_by,omitempty"`
	LockedAt     pgtype.Timestamptz `json:"locked_at"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type Swipe struct {
	ID           pgtype.UUID `json:"id"`
	ProductID    pgtype.UUID `json:"product_id"`
	Source       string      `json:"source"`
	SourceURL    string      `json:"source_url"`
	Status       SwipeStatus `json:"status"`
	R2VideoKey   *string     `json:"r2_video_key,omitempty"`
	Transcript   *string     `json:"transcript,omitempty"`
	Title        *string     `json:"title,omitempty"`
	Summary      *string     `json:"summary,omitempty"`
	Metadata     JSONMap     `json:"metadata"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type ResearchFile struct {
	ID        pgtype.UUID `json:"id"`
	ProductID pgtype.UUID `json:"product_id"`
	R2Key     string      `json:"r2_key"`
	Filename  string      `json:"filename"`
	Mime      string      `json:"mime"`
	Processed bool        `json:"processed"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ResearchItem struct {
	ID           pgtype.UUID        `json:"id"`
	ProductID    pgtype.UUID        `json:"product_id"`
	FileID       pgtype.UUID        `json:"file_id"`
	Status       ResearchItemStatus `json:"status"`
	Content      *string            `json:"content,omitempty"`
	Title        *string            `json:"title,omitempty"`
	Summary      *string            `json:"summary,omitempty"`
	Metadata     JSONMap            `json:"metadata"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
