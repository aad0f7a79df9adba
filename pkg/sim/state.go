// Package sim defines the simulator connector used for recording and
// replay, plus helpers shared by connector implementations.
package sim

// State represents the connection and activity state of the simulator.
type State string

const (
	// StateDisconnected indicates no connection to the simulator.
	StateDisconnected State = "disconnected"
	// StateInactive indicates connected but not in active flight (menu/pause).
	StateInactive State = "inactive"
	// StateActive indicates connected and in active flight.
	StateActive State = "active"
)

// Connected reports whether a session with the simulator exists.
func (s State) Connected() bool {
	return s == StateActive || s == StateInactive
}
