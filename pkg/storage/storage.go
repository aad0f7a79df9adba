// Package storage reads and writes recording files. The format is a
// msgpack-encoded envelope compressed with zstd.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"flightrec/pkg/model"
	"flightrec/pkg/store"
)

// FormatVersion is written into every file.
const FormatVersion = 1

// Extension is the file suffix of saved recordings.
const Extension = ".flr"

// ErrUnsupportedVersion is returned for files written by an unknown format
// version.
var ErrUnsupportedVersion = errors.New("unsupported recording format version")

type envelope struct {
	Version   int             `msgpack:"version"`
	SavedAt   int64           `msgpack:"saved_at"`
	Recording model.Recording `msgpack:"recording"`
}

// Encode writes rec to w.
func Encode(w io.Writer, rec *model.Recording, savedAt time.Time) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	env := envelope{Version: FormatVersion, SavedAt: savedAt.UnixMilli(), Recording: *rec}
	if err := msgpack.NewEncoder(zw).Encode(&env); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// Decode reads a recording from r and validates it.
func Decode(r io.Reader) (*model.Recording, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var env envelope
	if err := msgpack.NewDecoder(zr).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	rec := env.Recording
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Storage saves recordings to disk and keeps the sqlite index current.
type Storage struct {
	index  store.RecordingStore
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Storage. index may be nil.
func New(index store.RecordingStore) *Storage {
	return &Storage{
		index:  index,
		now:    time.Now,
		logger: slog.With("component", "storage"),
	}
}

// Save writes rec to path. The file is written next to the target and
// renamed into place so a failed save never truncates an existing file.
func (s *Storage) Save(ctx context.Context, path string, rec *model.Recording) error {
	if rec == nil {
		return fmt.Errorf("save %s: %w", path, model.ErrInvalidRecording)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	savedAt := s.now()
	if err := Encode(tmp, rec, savedAt); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Info("Recording saved", "path", path, "samples", rec.Len())

	if s.index != nil {
		entry := store.RecordingEntry{
			Path:          path,
			Samples:       rec.Len(),
			DurationMs:    rec.Duration().Milliseconds(),
			StartMs:       rec.StartMillis,
			FormatVersion: FormatVersion,
			SavedAt:       savedAt,
		}
		if err := s.index.SaveRecordingEntry(ctx, entry); err != nil {
			// The file is on disk; the index is best effort.
			s.logger.Warn("Failed to index recording", "path", path, "error", err)
		}
	}
	return nil
}

// Load reads a recording from r.
func (s *Storage) Load(ctx context.Context, r io.Reader) (*model.Recording, error) {
	rec, err := Decode(r)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Recording loaded", "samples", rec.Len())
	return rec, nil
}
