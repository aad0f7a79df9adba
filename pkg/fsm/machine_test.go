package fsm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type st string
type ev string

func always(ok bool) Action {
	return func(context.Context) (bool, error) { return ok, nil }
}

type changeLog struct {
	mu      sync.Mutex
	changes []StateChange[st, ev]
}

func (c *changeLog) add(sc StateChange[st, ev]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, sc)
}

func (c *changeLog) path() []st {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []st
	for _, sc := range c.changes {
		out = append(out, sc.To)
	}
	return out
}

func newMachine(t *testing.T, initial st, opts ...Option[st, ev]) (*Machine[st, ev], *changeLog) {
	t.Helper()
	m := New(initial, opts...)
	log := &changeLog{}
	unsubscribe := m.OnStateChanged(log.add)
	t.Cleanup(unsubscribe)
	return m, log
}

func TestRegister(t *testing.T) {
	m := New[st, ev]("a")
	require.NoError(t, m.Register(Transition[st, ev]{From: "a", On: "go", To: "b"}))

	err := m.Register(Transition[st, ev]{From: "a", On: "go", To: "c"})
	assert.ErrorIs(t, err, ErrDuplicateTransition)

	err = m.Register(Transition[st, ev]{From: "b", On: "x", Via: []ev{"go"}, WaitFor: []ev{"other"}})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = m.Register(Transition[st, ev]{From: "b", On: "y", To: "a", RevertMessage: "nope"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Duplicate detection happens before anything runs
	ran := false
	err = m.RegisterAll(
		Transition[st, ev]{From: "c", On: "go", To: "a", Actions: []Action{func(context.Context) (bool, error) { ran = true; return true, nil }}},
		Transition[st, ev]{From: "c", On: "go", To: "b"},
	)
	assert.ErrorIs(t, err, ErrDuplicateTransition)
	assert.False(t, ran)
}

func TestTransit_Simple(t *testing.T) {
	ctx := context.Background()
	var calls []int
	step := func(i int, ok bool) Action {
		return func(context.Context) (bool, error) {
			calls = append(calls, i)
			return ok, nil
		}
	}

	m, log := newMachine(t, "idle")
	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "idle", On: "record", To: "recording", Actions: []Action{step(1, true), step(2, true)}},
		Transition[st, ev]{From: "recording", On: "stop", To: "idle", Actions: []Action{step(3, false), step(4, true)}},
	))

	ok, err := m.Transit(ctx, "record")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, st("recording"), m.State())

	ok, err = m.Transit(ctx, "stop")
	require.NoError(t, err)
	assert.False(t, ok, "first false action rejects")
	assert.Equal(t, st("recording"), m.State())
	assert.Equal(t, []int{1, 2, 3}, calls, "chain stops at the rejecting action")

	assert.Equal(t, []StateChange[st, ev]{{From: "idle", To: "recording", Event: "record"}}, log.changes)
}

func TestTransit_ActionError(t *testing.T) {
	boom := errors.New("boom")
	m, log := newMachine(t, "a")
	require.NoError(t, m.Register(Transition[st, ev]{
		From: "a", On: "go", To: "b",
		Actions: []Action{func(context.Context) (bool, error) { return false, boom }},
	}))

	ok, err := m.Transit(context.Background(), "go")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, st("a"), m.State())
	assert.Empty(t, log.changes)
}

func TestTransit_Conditions(t *testing.T) {
	empty := true
	m, _ := newMachine(t, "recording")
	require.NoError(t, m.Register(Transition[st, ev]{
		From: "recording", On: "stop", To: "unsaved",
		Conditions: []Condition[st]{
			{State: "empty", When: func() bool { return empty }},
			{State: "never", When: func() bool { return true }},
		},
	}))
	require.NoError(t, m.Register(Transition[st, ev]{From: "empty", On: "record", To: "recording"}))

	_, err := m.Transit(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, st("empty"), m.State(), "first true condition wins")

	_, err = m.Transit(context.Background(), "record")
	require.NoError(t, err)
	empty = false
	_, err = m.Transit(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, st("never"), m.State(), "conditions are evaluated in order")
}

func TestTransit_ConditionsFallBackToTo(t *testing.T) {
	m, _ := newMachine(t, "recording")
	require.NoError(t, m.Register(Transition[st, ev]{
		From: "recording", On: "stop", To: "unsaved",
		Conditions: []Condition[st]{{State: "empty", When: func() bool { return false }}},
	}))
	_, err := m.Transit(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, st("unsaved"), m.State())
}

func TestTransit_Internal(t *testing.T) {
	ran := 0
	m, log := newMachine(t, "replaying")
	require.NoError(t, m.Register(Transition[st, ev]{
		From: "replaying", On: "requestStop",
		Actions: []Action{func(context.Context) (bool, error) { ran++; return true, nil }},
	}))

	ok, err := m.Transit(context.Background(), "requestStop")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, ran)
	assert.Equal(t, st("replaying"), m.State())
	assert.Empty(t, log.changes)
}

func TestTransit_Illegal(t *testing.T) {
	m := New[st, ev]("idle")
	ok, err := m.Transit(context.Background(), "fly")
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrIllegalTransition)

	var ite *IllegalTransitionError[st, ev]
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, st("idle"), ite.State)
	assert.Equal(t, ev("fly"), ite.Event)
}

func TestTransit_CompositeWaitsForExternalEvent(t *testing.T) {
	ctx := context.Background()
	m, log := newMachine(t, "replaying")

	started := make(chan struct{})
	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "replaying", On: "save", Via: []ev{"requestStop", "stop", "requestSave", "commit"}, WaitFor: []ev{"stop"}},
		Transition[st, ev]{From: "replaying", On: "requestStop", Actions: []Action{func(context.Context) (bool, error) {
			close(started)
			return true, nil
		}}},
		Transition[st, ev]{From: "replaying", On: "stop", To: "idle"},
		Transition[st, ev]{From: "idle", On: "requestSave", To: "saving"},
		Transition[st, ev]{From: "saving", On: "commit", To: "saved"},
	))

	go func() {
		<-started
		time.Sleep(10 * time.Millisecond)
		assert.True(t, m.Busy())
		ok, err := m.Transit(ctx, "stop")
		assert.NoError(t, err)
		assert.True(t, ok)
	}()

	ok, err := m.Transit(ctx, "save")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, st("saved"), m.State())
	assert.Equal(t, []st{"idle", "saving", "saved"}, log.path())
	assert.False(t, m.Busy())
}

func TestTransit_CompositeEarlySignalIsNotLost(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, "replaying")

	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "replaying", On: "disconnect", Via: []ev{"requestStop", "stop", "drop"}, WaitFor: []ev{"stop"}},
		// The stop is raised and completes before the composite reaches its wait point.
		Transition[st, ev]{From: "replaying", On: "requestStop", Actions: []Action{func(ctx context.Context) (bool, error) {
			done := make(chan struct{})
			go func() {
				defer close(done)
				_, _ = m.Transit(ctx, "stop")
			}()
			<-done
			return true, nil
		}}},
		Transition[st, ev]{From: "replaying", On: "stop", To: "idle"},
		Transition[st, ev]{From: "idle", On: "drop", To: "disconnected"},
	))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := m.Transit(ctx, "disconnect")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, st("disconnected"), m.State())
}

func TestTransit_CompositeRollbackReplaysPending(t *testing.T) {
	ctx := context.Background()
	var reported []string
	m, log := newMachine(t, "idle", WithErrorReporter[st, ev](func(_ context.Context, msg string) {
		reported = append(reported, msg)
	}))

	var replayed []ev
	record := func(e ev) Action {
		return func(context.Context) (bool, error) {
			replayed = append(replayed, e)
			return true, nil
		}
	}

	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "idle", On: "save", Via: []ev{"requestSave", "commit"}, RevertMessage: "Saving failed"},
		Transition[st, ev]{From: "idle", On: "requestSave", To: "saving"},
		Transition[st, ev]{From: "saving", On: "commit", To: "saved", Actions: []Action{func(ctx context.Context) (bool, error) {
			// Events that arrive while the composite is in flight
			_, _ = m.Transit(ctx, "ping")
			_, _ = m.Transit(ctx, "pong")
			return false, nil
		}}},
		Transition[st, ev]{From: "saving", On: "ping"},
		Transition[st, ev]{From: "saving", On: "pong"},
		Transition[st, ev]{From: "idle", On: "ping", Actions: []Action{record("ping")}},
		Transition[st, ev]{From: "idle", On: "pong", Actions: []Action{record("pong")}},
	))

	ok, err := m.Transit(ctx, "save")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, st("idle"), m.State())
	assert.Equal(t, []string{"Saving failed"}, reported)
	assert.Equal(t, []ev{"ping", "pong"}, replayed, "pending events replay in receipt order")

	require.Len(t, log.changes, 2)
	assert.Equal(t, StateChange[st, ev]{From: "idle", To: "saving", Event: "requestSave"}, log.changes[0])
	assert.Equal(t, StateChange[st, ev]{From: "saving", To: "idle", Event: "save", Reverted: true}, log.changes[1])
}

func TestTransit_CompositeWithoutRevertKeepsPartialState(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	m, _ := newMachine(t, "idle")
	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "idle", On: "save", Via: []ev{"requestSave", "commit"}},
		Transition[st, ev]{From: "idle", On: "requestSave", To: "saving"},
		Transition[st, ev]{From: "saving", On: "commit", To: "saved", Actions: []Action{always(false)}},
		Transition[st, ev]{From: "saving", On: "explode", Via: []ev{"fail"}},
		Transition[st, ev]{From: "saving", On: "fail", Actions: []Action{func(context.Context) (bool, error) { return false, boom }}},
	))

	ok, err := m.Transit(ctx, "save")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, st("saving"), m.State())

	ok, err = m.Transit(ctx, "explode")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestTransit_CompositeCancelledWaitReverts(t *testing.T) {
	m, _ := newMachine(t, "replaying")
	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "replaying", On: "exit", Via: []ev{"stop", "quit"}, WaitFor: []ev{"stop"}, RevertMessage: "Could not stop"},
		Transition[st, ev]{From: "replaying", On: "stop", To: "idle"},
		Transition[st, ev]{From: "idle", On: "quit", To: "end"},
	))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := m.Transit(ctx, "exit")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, st("replaying"), m.State())
	assert.False(t, m.Busy())
}

func TestAvailableAndUnsubscribe(t *testing.T) {
	m := New[st, ev]("idle")
	require.NoError(t, m.RegisterAll(
		Transition[st, ev]{From: "idle", On: "record", To: "recording"},
		Transition[st, ev]{From: "recording", On: "stop", To: "idle"},
		Transition[st, ev]{From: "idle", On: "replay", To: "replaying"},
	))
	assert.Equal(t, []ev{"record", "replay"}, m.Available())
	assert.True(t, m.Can("record"))
	assert.False(t, m.Can("stop"))

	count := 0
	unsubscribe := m.OnStateChanged(func(StateChange[st, ev]) { count++ })
	_, _ = m.Transit(context.Background(), "record")
	unsubscribe()
	unsubscribe()
	_, _ = m.Transit(context.Background(), "stop")
	assert.Equal(t, 1, count)
}
