// Package probe runs the startup checks that must pass before the recorder
// accepts commands.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil if the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A failure prevents startup.
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes concurrently and returns their results in probe
// order. Each check gets its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			defer cancel()

			results[i] = Result{Probe: p, Error: p.Check(checkCtx), Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AnalyzeResults logs every result and joins the errors of failed critical
// probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error == nil {
			slog.Info(msg)
			continue
		}
		slog.Error(msg, "error", r.Error)
		if r.Probe.Critical {
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		}
	}
	return errors.Join(criticalErrors...)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that the recording index answers.
func Database(p Pinger) Probe {
	return Probe{
		Name:     "Recording index",
		Critical: true,
		Check:    p.PingContext,
	}
}

// WritableFolder checks that recordings can be created in folder. It is not
// critical: the save dialog may pick another folder.
func WritableFolder(folder string) Probe {
	return Probe{
		Name: "Save folder",
		Check: func(ctx context.Context) error {
			if folder == "" {
				return errors.New("no save folder configured")
			}
			if err := os.MkdirAll(folder, 0o755); err != nil {
				return err
			}
			f, err := os.CreateTemp(folder, ".probe-*")
			if err != nil {
				return err
			}
			name := f.Name()
			f.Close()
			return os.Remove(filepath.Clean(name))
		},
	}
}
