package appstate

import (
	"context"
	"errors"
	"fmt"

	"flightrec/pkg/fsm"
	"flightrec/pkg/replay"
	"flightrec/pkg/sim"
)

type (
	transition = fsm.Transition[State, Event]
	condition  = fsm.Condition[State]
)

const (
	msgDiscard    = "The current recording has not been saved. Discard it?"
	msgSaveFailed = "The recording could not be saved."
	msgLoadFailed = "The recording could not be loaded."
)

// variant groups the states that exist once per data status.
type variant struct {
	idle, disconnected, replaying, pausing State
	unsaved                                bool
}

var (
	unsavedStates = variant{StateIdleUnsaved, StateDisconnectedUnsaved, StateReplayingUnsaved, StatePausingUnsaved, true}
	savedStates   = variant{StateIdleSaved, StateDisconnectedSaved, StateReplayingSaved, StatePausingSaved, false}
)

func (a *App) transitions() []transition {
	ts := []transition{
		{From: StateStart, On: EventStartUp, To: StateDisconnectedEmpty,
			Conditions: []condition{{State: StateIdleEmpty, When: a.simConnected}}},

		{From: StateDisconnectedEmpty, On: EventConnect, To: StateIdleEmpty},
		{From: StateIdleEmpty, On: EventDisconnect, To: StateDisconnectedEmpty},
		{From: StateIdleEmpty, On: EventRecord, Actions: []fsm.Action{a.startRecording}, To: StateRecording},
		{From: StateIdleEmpty, On: EventExit, To: StateEnd},
		{From: StateDisconnectedEmpty, On: EventExit, To: StateEnd},

		// Recording
		{From: StateRecording, On: EventStop, Actions: []fsm.Action{a.stopRecording}, To: StateIdleUnsaved,
			Conditions: []condition{{State: StateIdleEmpty, When: a.nothingRecorded}}},
		{From: StateRecording, On: EventDisconnect, Via: []Event{EventStop, EventDisconnect}},
		{From: StateRecording, On: EventExit, Via: []Event{EventStop, EventExit}},

		// Saving steps
		{From: StateSavingIdle, On: EventSave, Actions: []fsm.Action{a.save}, To: StateIdleSaved},
		{From: StateSavingDisconnected, On: EventSave, Actions: []fsm.Action{a.save}, To: StateDisconnectedSaved},
		{From: StateSavingIdle, On: EventDisconnect, To: StateSavingDisconnected},
		{From: StateSavingDisconnected, On: EventConnect, To: StateSavingIdle},

		// Loading steps
		{From: StateLoadingIdle, On: EventLoad, Actions: []fsm.Action{a.load}, To: StateIdleSaved},
		{From: StateLoadingDisconnected, On: EventLoad, Actions: []fsm.Action{a.load}, To: StateDisconnectedSaved},
		{From: StateLoadingIdle, On: EventDisconnect, To: StateLoadingDisconnected},
		{From: StateLoadingDisconnected, On: EventConnect, To: StateLoadingIdle},

		// Loading into an empty session
		{From: StateIdleEmpty, On: EventRequestLoading, Actions: []fsm.Action{a.pickOpenFile}, To: StateLoadingIdle},
		{From: StateDisconnectedEmpty, On: EventRequestLoading, Actions: []fsm.Action{a.pickOpenFile}, To: StateLoadingDisconnected},
		{From: StateIdleEmpty, On: EventLoad, Via: []Event{EventRequestLoading, EventLoad}, RevertMessage: msgLoadFailed},
		{From: StateDisconnectedEmpty, On: EventLoad, Via: []Event{EventRequestLoading, EventLoad}, RevertMessage: msgLoadFailed},
	}

	ts = append(ts, a.variantTransitions(unsavedStates)...)
	ts = append(ts, a.variantTransitions(savedStates)...)
	return ts
}

func (a *App) variantTransitions(v variant) []transition {
	// Discarding unsaved data needs confirmation.
	guard := func(actions ...fsm.Action) []fsm.Action {
		if v.unsaved {
			return append([]fsm.Action{a.confirmDiscard}, actions...)
		}
		return actions
	}
	stopFirst := func(then ...Event) []Event {
		return append([]Event{EventRequestStopping, EventStop}, then...)
	}
	waitStop := []Event{EventStop}

	ts := []transition{
		{From: v.disconnected, On: EventConnect, To: v.idle},
		{From: v.idle, On: EventDisconnect, To: v.disconnected},
		{From: v.idle, On: EventRecord, Actions: guard(a.startRecording), To: StateRecording},

		// Replay
		{From: v.idle, On: EventReplay, Actions: []fsm.Action{a.startReplay}, To: v.replaying},
		{From: v.replaying, On: EventPause, Actions: []fsm.Action{a.pauseReplay}, To: v.pausing},
		{From: v.pausing, On: EventResume, Actions: []fsm.Action{a.resumeReplay}, To: v.replaying},
		{From: v.replaying, On: EventRequestStopping, Actions: []fsm.Action{a.requestStop}},
		{From: v.pausing, On: EventRequestStopping, Actions: []fsm.Action{a.requestStop}},
		{From: v.replaying, On: EventStop, To: v.idle},
		{From: v.pausing, On: EventStop, To: v.idle},
		{From: v.replaying, On: EventDisconnect, Via: stopFirst(EventDisconnect), WaitFor: waitStop},
		{From: v.pausing, On: EventDisconnect, Via: stopFirst(EventDisconnect), WaitFor: waitStop},

		// Saving
		{From: v.idle, On: EventRequestSaving, Actions: []fsm.Action{a.pickSaveFile}, To: StateSavingIdle},
		{From: v.disconnected, On: EventRequestSaving, Actions: []fsm.Action{a.pickSaveFile}, To: StateSavingDisconnected},
		{From: v.idle, On: EventSave, Via: []Event{EventRequestSaving, EventSave}, RevertMessage: msgSaveFailed},
		{From: v.disconnected, On: EventSave, Via: []Event{EventRequestSaving, EventSave}, RevertMessage: msgSaveFailed},
		{From: v.replaying, On: EventSave, Via: stopFirst(EventRequestSaving, EventSave), WaitFor: waitStop, RevertMessage: msgSaveFailed},
		{From: v.pausing, On: EventSave, Via: stopFirst(EventRequestSaving, EventSave), WaitFor: waitStop, RevertMessage: msgSaveFailed},

		// Loading
		{From: v.idle, On: EventRequestLoading, Actions: guard(a.pickOpenFile), To: StateLoadingIdle},
		{From: v.disconnected, On: EventRequestLoading, Actions: guard(a.pickOpenFile), To: StateLoadingDisconnected},
		{From: v.idle, On: EventLoad, Via: []Event{EventRequestLoading, EventLoad}, RevertMessage: msgLoadFailed},
		{From: v.disconnected, On: EventLoad, Via: []Event{EventRequestLoading, EventLoad}, RevertMessage: msgLoadFailed},
		{From: v.replaying, On: EventLoad, Via: stopFirst(EventRequestLoading, EventLoad), WaitFor: waitStop, RevertMessage: msgLoadFailed},
		{From: v.pausing, On: EventLoad, Via: stopFirst(EventRequestLoading, EventLoad), WaitFor: waitStop, RevertMessage: msgLoadFailed},

		// Trimming
		{From: v.idle, On: EventTrimStart, Actions: []fsm.Action{a.trim(true)}, To: StateIdleUnsaved},
		{From: v.idle, On: EventTrimEnd, Actions: []fsm.Action{a.trim(false)}, To: StateIdleUnsaved},

		// Exit
		{From: v.idle, On: EventExit, Actions: guard(), To: StateEnd},
		{From: v.disconnected, On: EventExit, Actions: guard(), To: StateEnd},
		{From: v.replaying, On: EventExit, Via: stopFirst(EventExit), WaitFor: waitStop},
		{From: v.pausing, On: EventExit, Via: stopFirst(EventExit), WaitFor: waitStop},
	}
	return ts
}

// --- Conditions ---

func (a *App) simConnected() bool { return a.sim.State().Connected() }

func (a *App) nothingRecorded() bool { return a.recorder.Count() == 0 }

// --- Actions ---

func (a *App) confirmDiscard(ctx context.Context) (bool, error) {
	return a.dialog.Confirm(ctx, msgDiscard), nil
}

func (a *App) startRecording(ctx context.Context) (bool, error) {
	if a.replay.State() != replay.StateStopped {
		return false, nil
	}
	a.recorder.Record()
	return true, nil
}

func (a *App) stopRecording(ctx context.Context) (bool, error) {
	a.recorder.StopRecording()
	if err := a.replay.SetRecording(a.recorder.ToRecording()); err != nil {
		return false, fmt.Errorf("failed to hand over recording: %w", err)
	}
	a.setFile("")
	return true, nil
}

func (a *App) startReplay(ctx context.Context) (bool, error) {
	start, ok := a.replay.Sample(a.replay.CurrentFrame())
	if !ok {
		return false, nil
	}
	if err := a.sim.InitializePosition(ctx, start.Position); err != nil {
		return false, fmt.Errorf("failed to initialize position: %w", err)
	}
	return a.replay.Replay(), nil
}

func (a *App) pauseReplay(ctx context.Context) (bool, error) {
	if !a.replay.Pause() {
		return false, nil
	}
	if err := a.sim.Pause(ctx); err != nil {
		if rerr := a.replay.Resume(); rerr != nil {
			a.logger.Error("Failed to resume replay after pause error", "error", rerr)
		}
		return false, fmt.Errorf("failed to pause simulator: %w", err)
	}
	return true, nil
}

func (a *App) resumeReplay(ctx context.Context) (bool, error) {
	if err := a.sim.Unpause(ctx); err != nil {
		return false, fmt.Errorf("failed to unpause simulator: %w", err)
	}
	if err := a.replay.Resume(); err != nil {
		return false, err
	}
	return true, nil
}

// requestStop stops the engine and waits for its loop to exit. The Stop
// event is normally raised by the engine's finished notification. An engine
// that is already stopped, as after a rolled back composite transition, has
// no loop left to notify, so Stop is raised here instead.
func (a *App) requestStop(ctx context.Context) (bool, error) {
	st := a.replay.State()
	if st == replay.StateStopped {
		if _, err := a.machine.Transit(ctx, EventStop); err != nil {
			return false, fmt.Errorf("failed to leave stopped replay: %w", err)
		}
		return true, nil
	}

	if st == replay.StatePaused {
		if err := a.sim.Unpause(ctx); err != nil && !errors.Is(err, sim.ErrNotConnected) {
			return false, fmt.Errorf("failed to unpause simulator: %w", err)
		}
	}

	if a.stopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.stopTimeout)
		defer cancel()
	}
	if err := a.replay.Stop(ctx); err != nil {
		return false, fmt.Errorf("failed to stop replay: %w", err)
	}
	return true, nil
}

func (a *App) pickSaveFile(ctx context.Context) (bool, error) {
	folder, _ := a.settings.DefaultSaveFolder(ctx)
	path, ok := a.dialog.PickSaveFile(ctx, folder)
	if !ok {
		return false, nil
	}
	a.mu.Lock()
	a.savePath = path
	a.mu.Unlock()
	return true, nil
}

func (a *App) save(ctx context.Context) (bool, error) {
	a.mu.Lock()
	path := a.savePath
	a.savePath = ""
	a.mu.Unlock()
	if path == "" {
		return false, nil
	}

	if err := a.storage.Save(ctx, path, a.replay.Recording()); err != nil {
		return false, fmt.Errorf("failed to save recording: %w", err)
	}
	a.setFile(path)
	return true, nil
}

func (a *App) pickOpenFile(ctx context.Context) (bool, error) {
	folder, _ := a.settings.DefaultSaveFolder(ctx)
	path, r, err := a.dialog.PickOpenFile(ctx, folder)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, nil
	}

	a.mu.Lock()
	if a.openReader != nil {
		a.openReader.Close()
	}
	a.openPath, a.openReader = path, r
	a.mu.Unlock()
	return true, nil
}

func (a *App) load(ctx context.Context) (bool, error) {
	a.mu.Lock()
	path, r := a.openPath, a.openReader
	a.openPath, a.openReader = "", nil
	a.mu.Unlock()
	if r == nil {
		return false, nil
	}
	defer r.Close()

	rec, err := a.storage.Load(ctx, r)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if rec.Empty() {
		return false, fmt.Errorf("%s contains no samples", path)
	}
	if err := a.replay.SetRecording(rec); err != nil {
		return false, err
	}
	a.setFile(path)
	a.logger.Info("Recording loaded", "path", path, "samples", rec.Len(), "duration", rec.Duration())
	return true, nil
}

// trim drops the samples before (start) or after the current frame.
func (a *App) trim(start bool) fsm.Action {
	return func(ctx context.Context) (bool, error) {
		rec := a.replay.Recording()
		n := rec.Len()
		frame := a.replay.CurrentFrame()
		from, to := 0, frame
		if start {
			from, to = frame, n-1
		}
		if n == 0 || (from == 0 && to == n-1) {
			return false, nil
		}

		out, err := rec.Trimmed(from, to)
		if err != nil {
			a.logger.Warn("Trim rejected", "from", from, "to", to, "error", err)
			return false, nil
		}
		if err := a.replay.SetRecording(out); err != nil {
			return false, err
		}
		a.logger.Info("Recording trimmed", "from", from, "to", to, "samples", out.Len())
		return true, nil
	}
}

func (a *App) setFile(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.file = path
}
