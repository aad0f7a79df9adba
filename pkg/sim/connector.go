package sim

import (
	"context"
	"errors"

	"flightrec/pkg/model"
)

var (
	// ErrNotConnected is returned when a command requires a connection.
	ErrNotConnected = errors.New("simulator not connected")
)

// Connector is the binding to a running simulator. Subscriptions return a
// function that removes them.
type Connector interface {
	// OnFrame is called once per simulator frame.
	OnFrame(fn func()) (unsubscribe func())
	// OnPosition delivers the user aircraft position, once per frame.
	OnPosition(fn func(model.Position)) (unsubscribe func())
	// OnStateChanged reports connection changes.
	OnStateChanged(fn func(State)) (unsubscribe func())
	// State returns the current connection state.
	State() State

	// InitializePosition places the aircraft at p before a replay starts.
	InitializePosition(ctx context.Context, p model.Position) error
	// SetPosition moves the aircraft to p.
	SetPosition(ctx context.Context, p model.Position) error
	// Pause freezes the simulation.
	Pause(ctx context.Context) error
	// Unpause resumes the simulation.
	Unpause(ctx context.Context) error
	// TriggerThresholdEvents compares the live aircraft with the replay
	// target and raises simulator events for crossed thresholds.
	TriggerThresholdEvents(ctx context.Context, live, target model.Position) error

	// Close cleans up resources associated with the connector.
	Close() error
}
