package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"flightrec/pkg/db"
)

// Store defines the repository interface.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	RecordingStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Recordings ---

func (s *SQLiteStore) SaveRecordingEntry(ctx context.Context, e RecordingEntry) error {
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	query := `INSERT OR REPLACE INTO recordings (path, samples, duration_ms, start_ms, format_version, saved_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, e.Path, e.Samples, e.DurationMs, e.StartMs, e.FormatVersion, e.SavedAt.UnixMilli())
	return err
}

// ListRecordings returns the most recently saved entries first. A limit
// of zero or less returns every entry.
func (s *SQLiteStore) ListRecordings(ctx context.Context, limit int) ([]RecordingEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path, samples, duration_ms, start_ms, format_version, saved_at
	          FROM recordings ORDER BY saved_at DESC, path LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RecordingEntry
	for rows.Next() {
		e, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// LatestRecording returns the newest entry, or nil when the index is empty.
func (s *SQLiteStore) LatestRecording(ctx context.Context) (*RecordingEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT path, samples, duration_ms, start_ms, format_version, saved_at
	          FROM recordings ORDER BY saved_at DESC, path LIMIT 1`)
	e, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) DeleteRecordingEntry(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE path = ?", path)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(sc scanner) (RecordingEntry, error) {
	var e RecordingEntry
	var samples, duration, start, version, saved sql.NullInt64
	if err := sc.Scan(&e.Path, &samples, &duration, &start, &version, &saved); err != nil {
		return e, err
	}
	e.Samples = int(samples.Int64)
	e.DurationMs = duration.Int64
	e.StartMs = start.Int64
	e.FormatVersion = int(version.Int64)
	e.SavedAt = time.UnixMilli(saved.Int64)
	return e, nil
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
