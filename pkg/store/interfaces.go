package store

import (
	"context"
	"time"
)

// RecordingEntry is the index row of a saved recording file.
type RecordingEntry struct {
	Path          string    `json:"path"`
	Samples       int       `json:"samples"`
	DurationMs    int64     `json:"duration_ms"`
	StartMs       int64     `json:"start_ms"`
	FormatVersion int       `json:"format_version"`
	SavedAt       time.Time `json:"saved_at"`
}

// RecordingStore indexes saved recording files.
type RecordingStore interface {
	SaveRecordingEntry(ctx context.Context, e RecordingEntry) error
	ListRecordings(ctx context.Context, limit int) ([]RecordingEntry, error)
	LatestRecording(ctx context.Context) (*RecordingEntry, error)
	DeleteRecordingEntry(ctx context.Context, path string) error
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
