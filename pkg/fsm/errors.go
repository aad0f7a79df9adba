package fsm

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition means no transition is registered for the
	// current state and the incoming event. It indicates a wiring defect.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrDuplicateTransition is returned by Register when (From, On) is
	// already taken.
	ErrDuplicateTransition = errors.New("duplicate transition")
	// ErrInvalidTransition is returned by Register for malformed
	// transitions.
	ErrInvalidTransition = errors.New("invalid transition")
)

// IllegalTransitionError carries the state and event that had no
// registered transition.
type IllegalTransitionError[S, E comparable] struct {
	State S
	Event E
}

func (e *IllegalTransitionError[S, E]) Error() string {
	return fmt.Sprintf("illegal transition: no transition from %v on %v", e.State, e.Event)
}

func (e *IllegalTransitionError[S, E]) Unwrap() error {
	return ErrIllegalTransition
}
