package appstate

import "strings"

// State is a mode of the application.
type State string

const (
	StateStart State = "Start"

	StateDisconnectedEmpty   State = "DisconnectedEmpty"
	StateDisconnectedUnsaved State = "DisconnectedUnsaved"
	StateDisconnectedSaved   State = "DisconnectedSaved"

	StateIdleEmpty   State = "IdleEmpty"
	StateIdleUnsaved State = "IdleUnsaved"
	StateIdleSaved   State = "IdleSaved"

	StateRecording State = "Recording"

	StateReplayingUnsaved State = "ReplayingUnsaved"
	StateReplayingSaved   State = "ReplayingSaved"
	StatePausingUnsaved   State = "PausingUnsaved"
	StatePausingSaved     State = "PausingSaved"

	StateSavingDisconnected  State = "SavingDisconnected"
	StateSavingIdle          State = "SavingIdle"
	StateLoadingDisconnected State = "LoadingDisconnected"
	StateLoadingIdle         State = "LoadingIdle"

	StateEnd State = "End"
)

// Online reports whether the state assumes a simulator connection.
func (s State) Online() bool {
	switch s {
	case StateIdleEmpty, StateIdleUnsaved, StateIdleSaved,
		StateRecording,
		StateReplayingUnsaved, StateReplayingSaved, StatePausingUnsaved, StatePausingSaved,
		StateSavingIdle, StateLoadingIdle:
		return true
	}
	return false
}

// Offline reports whether the state assumes no simulator connection.
func (s State) Offline() bool {
	switch s {
	case StateDisconnectedEmpty, StateDisconnectedUnsaved, StateDisconnectedSaved,
		StateSavingDisconnected, StateLoadingDisconnected:
		return true
	}
	return false
}

// Event is something that can happen to the application.
type Event string

const (
	EventStartUp         Event = "StartUp"
	EventConnect         Event = "Connect"
	EventDisconnect      Event = "Disconnect"
	EventRecord          Event = "Record"
	EventStop            Event = "Stop"
	EventRequestStopping Event = "RequestStopping"
	EventReplay          Event = "Replay"
	EventPause           Event = "Pause"
	EventResume          Event = "Resume"
	EventRequestSaving   Event = "RequestSaving"
	EventSave            Event = "Save"
	EventRequestLoading  Event = "RequestLoading"
	EventLoad            Event = "Load"
	EventTrimStart       Event = "TrimStart"
	EventTrimEnd         Event = "TrimEnd"
	EventExit            Event = "Exit"
)

// Events lists every event.
var Events = []Event{
	EventStartUp, EventConnect, EventDisconnect,
	EventRecord, EventStop, EventRequestStopping,
	EventReplay, EventPause, EventResume,
	EventRequestSaving, EventSave, EventRequestLoading, EventLoad,
	EventTrimStart, EventTrimEnd, EventExit,
}

// ParseEvent looks up an event by name, ignoring case.
func ParseEvent(name string) (Event, bool) {
	for _, e := range Events {
		if strings.EqualFold(string(e), name) {
			return e, true
		}
	}
	return "", false
}
