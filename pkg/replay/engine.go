// Package replay plays a recording back against the simulator in real time,
// interpolating between recorded samples on every simulator frame.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"flightrec/pkg/clock"
	"flightrec/pkg/interp"
	"flightrec/pkg/model"
	"flightrec/pkg/notify"
	"flightrec/pkg/throttle"
)

// State is the playback state of the engine.
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// FinishReason tells subscribers why a replay ended.
type FinishReason string

const (
	FinishCompleted FinishReason = "completed"
	FinishStopped   FinishReason = "stopped"
)

// DefaultThrottleInterval is the minimum spacing of live-versus-replay
// comparisons.
const DefaultThrottleInterval = 500 * time.Millisecond

// tieBias replaces an exact midpoint so ties resolve toward the later sample.
const tieBias = 0.501

var (
	// ErrInvalidFrame is returned when a frame index is outside the recording.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrInvalidRate is returned for non-positive playback rates.
	ErrInvalidRate = errors.New("invalid playback rate")
	// ErrBusy is returned when the recording is swapped during playback.
	ErrBusy = errors.New("replay in progress")
)

// PositionSink receives the synthesized positions.
type PositionSink interface {
	SetPosition(ctx context.Context, p model.Position) error
	TriggerThresholdEvents(ctx context.Context, live, target model.Position) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithThrottleInterval changes the live comparison window.
func WithThrottleInterval(d time.Duration) Option {
	return func(e *Engine) { e.throttle = throttle.New(d) }
}

// WithRate sets the initial playback rate.
func WithRate(rate float64) Option {
	return func(e *Engine) {
		if validRate(rate) {
			e.rate = rate
		}
	}
}

// validRate rejects zero, negative, NaN and infinite rates.
func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 1)
}

// session holds the channels of one running advance loop.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

// Engine is the timeline replay engine. Ticks wake a background loop
// through a one-slot channel, so bursts of frames coalesce.
type Engine struct {
	mu       sync.Mutex
	clock    clock.Clock
	sink     PositionSink
	logger   *slog.Logger
	throttle *throttle.Throttle

	recording  *model.Recording
	state      State
	rate       float64
	anchor     time.Time
	cursor     int
	startFrame int

	pausedWall  time.Time
	pausedFrame int
	pausedRate  float64

	live    model.Position
	hasLive bool

	stopRequested bool
	sess          *session

	frameChanged notify.Hub[int]
	finished     notify.Hub[FinishReason]
}

// New creates a stopped engine writing to sink.
func New(sink PositionSink, opts ...Option) *Engine {
	e := &Engine{
		clock:    clock.Real{},
		sink:     sink,
		logger:   slog.With("component", "replay"),
		throttle: throttle.New(DefaultThrottleInterval),
		state:    StateStopped,
		rate:     1.0,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRecording replaces the recording. It fails while a replay is running.
func (e *Engine) SetRecording(rec *model.Recording) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped {
		return ErrBusy
	}
	e.recording = rec.Clone()
	e.cursor = 0
	e.startFrame = 0
	return nil
}

// Recording returns a copy of the loaded recording, or nil.
func (e *Engine) Recording() *model.Recording {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording.Clone()
}

// FrameCount returns the number of samples in the loaded recording.
func (e *Engine) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording.Len()
}

// Sample returns the recorded sample at frame.
func (e *Engine) Sample(frame int) (model.Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if frame < 0 || frame >= e.recording.Len() {
		return model.Sample{}, false
	}
	return e.recording.Samples[frame], true
}

// State returns the playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Rate returns the playback rate.
func (e *Engine) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// ThrottleInterval returns the live comparison window.
func (e *Engine) ThrottleInterval() time.Duration {
	return e.throttle.Interval()
}

// SetThrottleInterval changes the live comparison window, including for a
// replay in progress.
func (e *Engine) SetThrottleInterval(d time.Duration) {
	e.throttle.SetInterval(d)
}

// CurrentFrame returns the cursor while playing or paused, and the frame
// the next replay starts from while stopped.
func (e *Engine) CurrentFrame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return e.startFrame
	}
	return e.cursor
}

// OnFrameChanged subscribes to cursor updates.
func (e *Engine) OnFrameChanged(fn func(frame int)) (unsubscribe func()) {
	return e.frameChanged.Subscribe(fn)
}

// OnFinished subscribes to the end of a replay. It is published from the
// advance loop before Stop returns.
func (e *Engine) OnFinished(fn func(FinishReason)) (unsubscribe func()) {
	return e.finished.Subscribe(fn)
}

// Replay starts playback from the start frame. It returns false when there
// is nothing to play or a replay is already running.
func (e *Engine) Replay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return false
	}
	if e.recording.Empty() {
		e.logger.Debug("Replay rejected, recording is empty")
		return false
	}

	start := e.startFrame
	if start >= e.recording.Len() {
		start = 0
	}
	now := e.clock.Now()
	e.cursor = start
	e.anchor = now.Add(-e.recordedOffset(start, e.rate))
	e.state = StatePlaying
	e.stopRequested = false
	e.throttle.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	e.sess = &session{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.loop(e.sess)

	e.logger.Info("Replay started", "frames", e.recording.Len(), "start_frame", start, "rate", e.rate)
	return true
}

// Pause freezes the timeline. It returns false if the engine was not
// playing.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePlaying {
		return false
	}
	e.pausedWall = e.clock.Now()
	e.pausedFrame = e.cursor
	e.pausedRate = e.rate
	e.state = StatePaused
	return true
}

// Resume continues a paused replay. Without a seek during the pause the
// recording time is continuous across the pause, even if the rate changed.
// After a seek playback restarts exactly at the sought frame.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return nil
	}
	frame := e.cursor
	if frame < 0 || frame >= e.recording.Len() {
		return fmt.Errorf("%w: %d", ErrInvalidFrame, frame)
	}

	now := e.clock.Now()
	if frame == e.pausedFrame {
		played := float64(e.pausedWall.Sub(e.anchor)) * e.pausedRate / e.rate
		e.anchor = now.Add(-time.Duration(played))
	} else {
		e.anchor = now.Add(-e.recordedOffset(frame, e.rate))
	}
	e.state = StatePlaying
	return nil
}

// Stop ends the replay and blocks until the advance loop has observed the
// request and exited, or ctx is done. Stopping a stopped engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateStopped || e.sess == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopRequested = true
	sess := e.sess
	e.mu.Unlock()

	select {
	case sess.wake <- struct{}{}:
	default:
	}

	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seek moves the cursor. While paused the sample is rendered immediately
// without blending; while stopped it selects where the next replay starts.
func (e *Engine) Seek(frame int) error {
	e.mu.Lock()
	if frame < 0 || frame >= e.recording.Len() {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrInvalidFrame, frame, e.recording.Len())
	}

	var render *model.Position
	var ctx context.Context
	switch e.state {
	case StateStopped:
		e.startFrame = frame
	case StatePlaying:
		e.cursor = frame
		e.anchor = e.clock.Now().Add(-e.recordedOffset(frame, e.rate))
	case StatePaused:
		e.cursor = frame
		p := e.recording.Samples[frame].Position
		render = &p
		ctx = e.sess.ctx
	}
	e.mu.Unlock()

	e.frameChanged.Publish(frame)
	if render != nil {
		if err := e.sink.SetPosition(ctx, *render); err != nil {
			return fmt.Errorf("render frame %d: %w", frame, err)
		}
	}
	return nil
}

// ChangeRate sets the playback rate. While playing the anchor is moved so
// the recording time does not jump.
func (e *Engine) ChangeRate(rate float64) error {
	if !validRate(rate) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StatePlaying {
		now := e.clock.Now()
		played := float64(now.Sub(e.anchor)) * e.rate / rate
		e.anchor = now.Add(-time.Duration(played))
	}
	e.rate = rate
	return nil
}

// NotifyLivePosition records the aircraft position reported by the
// simulator for the throttled threshold comparison.
func (e *Engine) NotifyLivePosition(p model.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live = p
	e.hasLive = true
}

// Tick signals a simulator frame. It never blocks.
func (e *Engine) Tick() {
	e.mu.Lock()
	var wake chan struct{}
	if e.state != StateStopped && e.sess != nil {
		wake = e.sess.wake
	}
	e.mu.Unlock()

	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(s *session) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
			e.step(e.clock.Now())
		}
	}
}

// recordedOffset converts a frame's recorded time to wall time at rate.
func (e *Engine) recordedOffset(frame int, rate float64) time.Duration {
	ms := float64(e.recording.Samples[frame].ElapsedMillis)
	return time.Duration(ms / rate * float64(time.Millisecond))
}

// step advances the timeline to now and renders one position.
func (e *Engine) step(now time.Time) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	if e.stopRequested {
		e.finishLocked()
		e.mu.Unlock()
		e.logger.Info("Replay stopped")
		e.finished.Publish(FinishStopped)
		return
	}
	if e.state == StatePaused {
		e.mu.Unlock()
		return
	}

	samples := e.recording.Samples
	n := len(samples)
	current := float64(now.Sub(e.anchor)) / float64(time.Millisecond) * e.rate
	for e.cursor < n && float64(samples[e.cursor].ElapsedMillis) < current {
		e.cursor++
	}

	if e.cursor >= n {
		e.finishLocked()
		e.mu.Unlock()
		e.frameChanged.Publish(n - 1)
		e.logger.Info("Replay completed", "frames", n)
		e.finished.Publish(FinishCompleted)
		return
	}

	frame := e.cursor
	next := samples[frame]
	target := next.Position
	// Samples sharing a timestamp render the later one as is.
	if frame > 0 && next.ElapsedMillis > samples[frame-1].ElapsedMillis {
		last := samples[frame-1]
		t := (current - float64(last.ElapsedMillis)) / float64(next.ElapsedMillis-last.ElapsedMillis)
		t = max(0, min(1, t))
		if t == 0.5 {
			t = tieBias
		}
		target = interp.Positions(next.Position, last.Position, t)
	}

	live, compare := e.live, e.hasLive && e.throttle.Allow(now)
	ctx := e.sess.ctx
	e.mu.Unlock()

	e.frameChanged.Publish(frame)

	if err := e.sink.SetPosition(ctx, target); err != nil {
		e.logger.Warn("Failed to set replay position", "frame", frame, "error", err)
	}
	if compare {
		if err := e.sink.TriggerThresholdEvents(ctx, live, target); err != nil {
			e.logger.Warn("Threshold comparison failed", "error", err)
		}
	}
}

// finishLocked returns the engine to Stopped and releases the loop.
func (e *Engine) finishLocked() {
	e.state = StateStopped
	e.stopRequested = false
	e.cursor = 0
	e.startFrame = 0
	e.hasLive = false
	if s := e.sess; s != nil {
		s.cancel()
		close(s.quit)
	}
}
