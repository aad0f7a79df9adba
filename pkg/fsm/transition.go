package fsm

import (
	"context"
	"fmt"
	"slices"
)

// Action is a side effect run when a transition fires. Returning false
// rejects the transition. An error aborts it and is returned to the caller.
type Action func(ctx context.Context) (bool, error)

// Condition selects an alternative destination when its predicate holds.
type Condition[S comparable] struct {
	State S
	When  func() bool
}

// Transition describes what happens when event On arrives in state From.
//
// A transition with Via is composite: instead of running Actions it triggers
// each Via event's own transition in order, blocking on the ones listed in
// WaitFor until another goroutine raises them. A zero To with no Conditions
// makes the transition internal: actions run but the state does not change.
type Transition[S, E comparable] struct {
	From       S
	On         E
	Actions    []Action
	To         S
	Conditions []Condition[S]

	Via           []E
	WaitFor       []E
	RevertMessage string
}

// Composite reports whether the transition runs a sequence of other events.
func (t Transition[S, E]) Composite() bool {
	return len(t.Via) > 0
}

func (t Transition[S, E]) validate() error {
	if !t.Composite() {
		if len(t.WaitFor) > 0 || t.RevertMessage != "" {
			return fmt.Errorf("%w: %v on %v: wait points and revert messages require via events", ErrInvalidTransition, t.From, t.On)
		}
		return nil
	}
	if len(t.Actions) > 0 || len(t.Conditions) > 0 {
		return fmt.Errorf("%w: %v on %v: composite transitions cannot carry actions or conditions", ErrInvalidTransition, t.From, t.On)
	}
	for _, w := range t.WaitFor {
		if !slices.Contains(t.Via, w) {
			return fmt.Errorf("%w: %v on %v: awaited event %v is not a via event", ErrInvalidTransition, t.From, t.On, w)
		}
	}
	return nil
}

// destination resolves the target state. ok is false for internal
// transitions.
func (t Transition[S, E]) destination() (to S, ok bool) {
	for _, c := range t.Conditions {
		if c.When != nil && c.When() {
			return c.State, true
		}
	}
	var zero S
	if t.To == zero {
		return zero, false
	}
	return t.To, true
}

// StateChange is published after every state update, including each step
// of a composite transition and the corrective update after a rollback.
type StateChange[S, E comparable] struct {
	From     S
	To       S
	Event    E
	Reverted bool
}
