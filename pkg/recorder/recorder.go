// Package recorder captures timestamped aircraft positions while armed.
package recorder

import (
	"log/slog"
	"sync"
	"time"

	"flightrec/pkg/clock"
	"flightrec/pkg/model"
	"flightrec/pkg/notify"
)

// State is the capture state of the recorder.
type State string

const (
	// StateIdle means positions are ignored.
	StateIdle State = "idle"
	// StateArmed means positions are appended to the buffer.
	StateArmed State = "armed"
)

// Recorder appends samples between Record and StopRecording.
type Recorder struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *slog.Logger
	state   State
	start   time.Time
	end     time.Time
	stopped bool
	samples []model.Sample

	recordsUpdated notify.Hub[int]
}

// New creates an idle recorder. A nil clock uses the system clock.
func New(c clock.Clock) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{
		clock:  c,
		logger: slog.With("component", "recorder"),
		state:  StateIdle,
	}
}

// Record arms the recorder, discarding any previous buffer.
func (r *Recorder) Record() {
	r.mu.Lock()
	r.state = StateArmed
	r.stopped = false
	r.samples = nil
	r.start = r.clock.Now()
	r.end = time.Time{}
	r.mu.Unlock()

	r.logger.Info("Recording started")
	r.recordsUpdated.Publish(0)
}

// NotifyPosition appends a sample while armed. It is a no-op otherwise.
func (r *Recorder) NotifyPosition(p model.Position) {
	r.mu.Lock()
	if r.state != StateArmed || r.stopped {
		r.mu.Unlock()
		return
	}
	elapsed := r.clock.Now().Sub(r.start).Milliseconds()
	r.samples = append(r.samples, model.Sample{ElapsedMillis: elapsed, Position: p})
	count := len(r.samples)
	r.mu.Unlock()

	r.recordsUpdated.Publish(count)
}

// StopRecording freezes the end timestamp. Calling it again has no effect.
func (r *Recorder) StopRecording() {
	r.mu.Lock()
	if r.state != StateArmed || r.stopped {
		r.mu.Unlock()
		return
	}
	r.end = r.clock.Now()
	r.stopped = true
	r.state = StateIdle
	count := len(r.samples)
	r.mu.Unlock()

	r.logger.Info("Recording stopped", "samples", count)
}

// State returns the current capture state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Count returns the number of buffered samples.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// ToRecording packages the buffer into a recording. The result is a copy
// and may be requested any number of times.
func (r *Recorder) ToRecording() *model.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &model.Recording{Samples: make([]model.Sample, len(r.samples))}
	copy(rec.Samples, r.samples)
	if !r.start.IsZero() {
		rec.StartMillis = r.start.UnixMilli()
	}
	if !r.end.IsZero() {
		rec.EndMillis = r.end.UnixMilli()
	}
	return rec
}

// OnRecordsUpdated subscribes to sample count changes.
func (r *Recorder) OnRecordsUpdated(fn func(count int)) (unsubscribe func()) {
	return r.recordsUpdated.Subscribe(fn)
}
