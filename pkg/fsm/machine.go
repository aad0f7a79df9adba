// Package fsm is a small event-driven state machine with composite
// transitions, external wait points and rollback.
package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"flightrec/pkg/notify"
)

type key[S, E comparable] struct {
	from S
	on   E
}

// composite is the bookkeeping for the one composite transition in flight.
type composite[E comparable] struct {
	event   E
	waiters map[E]chan struct{}
	pending []E
}

// ErrorReporter surfaces a revert message to the user.
type ErrorReporter func(ctx context.Context, message string)

// Option configures a Machine.
type Option[S, E comparable] func(*Machine[S, E])

// WithErrorReporter sets the sink for revert messages.
func WithErrorReporter[S, E comparable](r ErrorReporter) Option[S, E] {
	return func(m *Machine[S, E]) { m.reportError = r }
}

// WithLogger replaces the default logger.
func WithLogger[S, E comparable](l *slog.Logger) Option[S, E] {
	return func(m *Machine[S, E]) { m.logger = l }
}

// Machine dispatches events to registered transitions.
//
// The mutex only protects bookkeeping. Actions run without it, so callers
// are expected to serialize Transit, with the exception of events awaited by
// an in-flight composite transition, which may arrive from any goroutine.
type Machine[S, E comparable] struct {
	mu       sync.Mutex
	current  S
	table    map[key[S, E]]Transition[S, E]
	order    []key[S, E]
	inflight *composite[E]

	reportError  ErrorReporter
	logger       *slog.Logger
	stateChanged notify.Hub[StateChange[S, E]]
}

// New creates a machine in the initial state.
func New[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{
		current: initial,
		table:   make(map[key[S, E]]Transition[S, E]),
		logger:  slog.With("component", "fsm"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a transition. Each (From, On) pair may be registered once.
func (m *Machine[S, E]) Register(t Transition[S, E]) error {
	if err := t.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key[S, E]{from: t.From, on: t.On}
	if _, exists := m.table[k]; exists {
		return fmt.Errorf("%w: %v on %v", ErrDuplicateTransition, t.From, t.On)
	}
	m.table[k] = t
	m.order = append(m.order, k)
	return nil
}

// RegisterAll registers every transition, stopping at the first error.
func (m *Machine[S, E]) RegisterAll(ts ...Transition[S, E]) error {
	for _, t := range ts {
		if err := m.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Can reports whether e has a transition from the current state.
func (m *Machine[S, E]) Can(e E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table[key[S, E]{from: m.current, on: e}]
	return ok
}

// Available lists the events accepted in the current state, in
// registration order.
func (m *Machine[S, E]) Available() []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []E
	for _, k := range m.order {
		if k.from == m.current {
			out = append(out, k.on)
		}
	}
	return out
}

// Busy reports whether a composite transition is in flight.
func (m *Machine[S, E]) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight != nil
}

// OnStateChanged subscribes to state updates.
func (m *Machine[S, E]) OnStateChanged(fn func(StateChange[S, E])) (unsubscribe func()) {
	return m.stateChanged.Subscribe(fn)
}

// Transit raises e. It returns false when an action rejected the
// transition or a composite step failed, and an *IllegalTransitionError
// when nothing is registered for e in the current state.
func (m *Machine[S, E]) Transit(ctx context.Context, e E) (bool, error) {
	m.mu.Lock()
	from := m.current
	t, ok := m.table[key[S, E]{from: from, on: e}]
	if !ok {
		m.mu.Unlock()
		return false, &IllegalTransitionError[S, E]{State: from, Event: e}
	}

	var waiter chan struct{}
	if c := m.inflight; c != nil {
		if w, awaited := c.waiters[e]; awaited {
			waiter = w
		} else {
			c.pending = append(c.pending, e)
			m.logger.Debug("Event received during composite transition", "event", e, "composite", c.event)
		}
		if t.Composite() {
			m.mu.Unlock()
			m.logger.Warn("Composite transition already in flight", "event", e, "composite", m.inflightEvent())
			return false, nil
		}
	}
	m.mu.Unlock()

	if t.Composite() {
		return m.runComposite(ctx, t)
	}

	ok, err := m.runSimple(ctx, t)
	if ok && err == nil && waiter != nil {
		m.release(e, waiter)
	}
	return ok, err
}

func (m *Machine[S, E]) inflightEvent() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight == nil {
		return nil
	}
	return m.inflight.event
}

// release completes a one-shot waiter. Only the first completion counts.
func (m *Machine[S, E]) release(e E, w chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.inflight; c != nil && c.waiters[e] == w {
		close(w)
		delete(c.waiters, e)
	}
}

func (m *Machine[S, E]) runSimple(ctx context.Context, t Transition[S, E]) (bool, error) {
	for i, action := range t.Actions {
		ok, err := action(ctx)
		if err != nil {
			return false, fmt.Errorf("%v on %v: action %d: %w", t.From, t.On, i, err)
		}
		if !ok {
			m.logger.Debug("Transition rejected", "from", t.From, "event", t.On, "action", i)
			return false, nil
		}
	}

	to, changes := t.destination()
	if !changes {
		return true, nil
	}

	m.mu.Lock()
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.logger.Debug("State changed", "from", from, "to", to, "event", t.On)
	m.stateChanged.Publish(StateChange[S, E]{From: from, To: to, Event: t.On})
	return true, nil
}

func (m *Machine[S, E]) runComposite(ctx context.Context, t Transition[S, E]) (bool, error) {
	c := &composite[E]{event: t.On, waiters: make(map[E]chan struct{}, len(t.WaitFor))}
	for _, w := range t.WaitFor {
		c.waiters[w] = make(chan struct{})
	}

	m.mu.Lock()
	prior := m.current
	m.inflight = c
	m.mu.Unlock()

	m.logger.Debug("Composite transition started", "from", prior, "event", t.On, "via", t.Via)

	ok, err := m.runSteps(ctx, t, c)

	m.mu.Lock()
	m.inflight = nil
	pending := c.pending
	m.mu.Unlock()

	if ok && err == nil {
		return true, nil
	}
	if t.RevertMessage == "" {
		return false, err
	}

	m.logger.Warn("Composite transition failed, reverting", "event", t.On, "state", prior, "error", err)
	m.revert(prior, t.On)
	if m.reportError != nil {
		m.reportError(ctx, t.RevertMessage)
	}
	for _, e := range pending {
		if _, perr := m.Transit(ctx, e); perr != nil {
			m.logger.Error("Replaying pending event failed", "event", e, "error", perr)
		}
	}
	return false, nil
}

func (m *Machine[S, E]) runSteps(ctx context.Context, t Transition[S, E], c *composite[E]) (bool, error) {
	for _, step := range t.Via {
		if slices.Contains(t.WaitFor, step) {
			m.mu.Lock()
			w, open := c.waiters[step]
			m.mu.Unlock()
			if !open {
				continue // already raised
			}
			select {
			case <-w:
			case <-ctx.Done():
				return false, fmt.Errorf("waiting for %v: %w", step, ctx.Err())
			}
			continue
		}

		m.mu.Lock()
		st, ok := m.table[key[S, E]{from: m.current, on: step}]
		from := m.current
		m.mu.Unlock()
		if !ok {
			return false, &IllegalTransitionError[S, E]{State: from, Event: step}
		}
		if st.Composite() {
			return false, fmt.Errorf("%w: step %v from %v is itself composite", ErrInvalidTransition, step, from)
		}

		ok, err := m.runSimple(ctx, st)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *Machine[S, E]) revert(prior S, e E) {
	m.mu.Lock()
	from := m.current
	m.current = prior
	m.mu.Unlock()

	m.stateChanged.Publish(StateChange[S, E]{From: from, To: prior, Event: e, Reverted: true})
}
