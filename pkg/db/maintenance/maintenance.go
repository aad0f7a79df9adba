package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"flightrec/pkg/db"
	"flightrec/pkg/store"
)

const lastRunStateKey = "maintenance_last_run"

// Run executes all maintenance tasks: dropping index entries whose file is
// gone and pruning entries older than retention. A zero retention keeps
// everything. It blocks until completion.
func Run(ctx context.Context, s store.Store, d *db.DB, retention time.Duration) error {
	slog.Info("Starting database maintenance...")

	if n, err := dropMissing(ctx, s); err != nil {
		slog.Error("Recording index check failed", "error", err)
		// We don't stop startup for a failed check, but we log it.
	} else {
		slog.Info("Recording index check completed", "removed", n)
	}

	if retention > 0 {
		if n, err := d.PruneRecordings(retention); err != nil {
			slog.Error("Recording index pruning failed", "error", err)
		} else {
			slog.Info("Recording index pruning completed", "removed", n)
		}
	}

	if err := s.SetState(ctx, lastRunStateKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}

// dropMissing removes entries whose file was deleted or moved outside the
// application.
func dropMissing(ctx context.Context, s store.Store) (int, error) {
	entries, err := s.ListRecordings(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list recordings: %w", err)
	}

	removed := 0
	for _, e := range entries {
		_, err := os.Stat(e.Path)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Cannot stat recording", "path", e.Path, "error", err)
			continue
		}
		if err := s.DeleteRecordingEntry(ctx, e.Path); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", e.Path, err)
		}
		removed++
	}
	return removed, nil
}
