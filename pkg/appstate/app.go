// Package appstate binds the application modes to the recorder, the replay
// engine and the external collaborators.
package appstate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"flightrec/pkg/fsm"
	"flightrec/pkg/model"
	"flightrec/pkg/notify"
	"flightrec/pkg/recorder"
	"flightrec/pkg/replay"
	"flightrec/pkg/sim"
)

// Dialog asks the user questions and shows errors.
type Dialog interface {
	Confirm(ctx context.Context, message string) bool
	ShowError(ctx context.Context, message string)
	// PickSaveFile returns the path to save to, ok is false on cancel.
	PickSaveFile(ctx context.Context, folder string) (path string, ok bool)
	// PickOpenFile returns an open file. A nil reader means cancel.
	PickOpenFile(ctx context.Context, folder string) (path string, r io.ReadCloser, err error)
}

// Storage persists recordings.
type Storage interface {
	Save(ctx context.Context, path string, rec *model.Recording) error
	Load(ctx context.Context, r io.Reader) (*model.Recording, error)
}

// Settings provides the user settings the transitions need.
type Settings interface {
	DefaultSaveFolder(ctx context.Context) (string, bool)
}

// Deps are the collaborators of an App.
type Deps struct {
	Sim      sim.Connector
	Recorder *recorder.Recorder
	Replay   *replay.Engine
	Dialog   Dialog
	Storage  Storage
	Settings Settings

	// StopTimeout bounds how long stopping a replay may take. Zero waits
	// as long as the caller's context allows.
	StopTimeout time.Duration
}

// StateChange is published for every mode change.
type StateChange = fsm.StateChange[State, Event]

// Status is a snapshot for the API.
type Status struct {
	State    State          `json:"state"`
	Events   []Event        `json:"events"`
	Busy     bool           `json:"busy"`
	Sim      sim.State      `json:"sim"`
	Recorder recorder.State `json:"recorder"`
	Records  int            `json:"records"`
	Replay   replay.State   `json:"replay"`
	Frame    int            `json:"frame"`
	Frames   int            `json:"frames"`
	Rate     float64        `json:"rate"`
	File     string         `json:"file,omitempty"`
}

// App is the application state machine.
type App struct {
	machine     *fsm.Machine[State, Event]
	sim         sim.Connector
	recorder    *recorder.Recorder
	replay      *replay.Engine
	dialog      Dialog
	storage     Storage
	settings    Settings
	stopTimeout time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   notify.Subscriptions

	// syncMu serializes connection reconciliation.
	syncMu sync.Mutex

	mu         sync.Mutex
	savePath   string
	openPath   string
	openReader io.ReadCloser
	file       string

	endOnce sync.Once
	done    chan struct{}
}

// New builds the transition table and subscribes to the collaborators.
func New(d Deps) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		sim:         d.Sim,
		recorder:    d.Recorder,
		replay:      d.Replay,
		dialog:      d.Dialog,
		storage:     d.Storage,
		settings:    d.Settings,
		stopTimeout: d.StopTimeout,
		logger:      slog.With("component", "appstate"),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	a.machine = fsm.New(StateStart,
		fsm.WithErrorReporter[State, Event](a.dialog.ShowError),
	)
	if err := a.machine.RegisterAll(a.transitions()...); err != nil {
		cancel()
		return nil, err
	}

	a.subs.Add(a.machine.OnStateChanged(a.onStateChanged))
	a.subs.Add(a.replay.OnFinished(a.onReplayFinished))
	a.subs.Add(a.sim.OnFrame(a.replay.Tick))
	a.subs.Add(a.sim.OnPosition(a.onPosition))
	a.subs.Add(a.sim.OnStateChanged(func(sim.State) { a.goSync() }))
	return a, nil
}

// Start raises StartUp.
func (a *App) Start(ctx context.Context) error {
	_, err := a.machine.Transit(ctx, EventStartUp)
	return err
}

// Raise triggers e. See fsm.Machine.Transit.
func (a *App) Raise(ctx context.Context, e Event) (bool, error) {
	return a.machine.Transit(ctx, e)
}

// Can reports whether e is accepted in the current state.
func (a *App) Can(e Event) bool { return a.machine.Can(e) }

// State returns the current mode.
func (a *App) State() State { return a.machine.State() }

// Seek moves the replay cursor.
func (a *App) Seek(frame int) error { return a.replay.Seek(frame) }

// ChangeRate sets the replay rate.
func (a *App) ChangeRate(rate float64) error { return a.replay.ChangeRate(rate) }

// Done is closed once the application reaches End.
func (a *App) Done() <-chan struct{} { return a.done }

func (a *App) OnStateChanged(fn func(StateChange)) (unsubscribe func()) {
	return a.machine.OnStateChanged(fn)
}

func (a *App) OnRecordsUpdated(fn func(count int)) (unsubscribe func()) {
	return a.recorder.OnRecordsUpdated(fn)
}

func (a *App) OnFrameChanged(fn func(frame int)) (unsubscribe func()) {
	return a.replay.OnFrameChanged(fn)
}

func (a *App) OnReplayFinished(fn func(replay.FinishReason)) (unsubscribe func()) {
	return a.replay.OnFinished(fn)
}

// Status returns a snapshot of every component.
func (a *App) Status() Status {
	a.mu.Lock()
	file := a.file
	a.mu.Unlock()
	return Status{
		State:    a.machine.State(),
		Events:   a.machine.Available(),
		Busy:     a.machine.Busy(),
		Sim:      a.sim.State(),
		Recorder: a.recorder.State(),
		Records:  a.recorder.Count(),
		Replay:   a.replay.State(),
		Frame:    a.replay.CurrentFrame(),
		Frames:   a.replay.FrameCount(),
		Rate:     a.replay.Rate(),
		File:     file,
	}
}

// Close releases subscriptions and stops a running replay.
func (a *App) Close() error {
	a.subs.Close()
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.replay.Stop(ctx)

	a.wg.Wait()

	a.mu.Lock()
	if a.openReader != nil {
		a.openReader.Close()
		a.openReader = nil
	}
	a.mu.Unlock()
	return err
}

func (a *App) onStateChanged(c StateChange) {
	a.logger.Info("State changed", "from", c.From, "to", c.To, "event", c.Event, "reverted", c.Reverted)
	if c.To == StateEnd {
		a.endOnce.Do(func() { close(a.done) })
		return
	}
	a.goSync()
}

func (a *App) onPosition(p model.Position) {
	a.recorder.NotifyPosition(p)
	a.replay.NotifyLivePosition(p)
}

// onReplayFinished runs on the replay loop. It raises Stop, which either
// ends a plain replay or completes the wait of a composite transition.
func (a *App) onReplayFinished(reason replay.FinishReason) {
	if !a.machine.Can(EventStop) {
		a.logger.Debug("Replay finished outside a replay state", "reason", reason, "state", a.machine.State())
		return
	}
	if _, err := a.machine.Transit(a.ctx, EventStop); err != nil {
		a.logger.Error("Failed to raise Stop after replay", "reason", reason, "error", err)
	}
}

func (a *App) goSync() {
	if a.ctx.Err() != nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.syncConnection()
	}()
}

// syncConnection raises Connect or Disconnect until the mode agrees with
// the simulator connection.
func (a *App) syncConnection() {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.ctx.Err() != nil || a.machine.Busy() {
		return
	}
	st := a.machine.State()
	connected := a.sim.State().Connected()

	var e Event
	switch {
	case st.Online() && !connected:
		e = EventDisconnect
	case st.Offline() && connected:
		e = EventConnect
	default:
		return
	}
	if !a.machine.Can(e) {
		return
	}
	if _, err := a.machine.Transit(a.ctx, e); err != nil {
		a.logger.Error("Failed to follow simulator connection", "event", e, "error", err)
	}
}
