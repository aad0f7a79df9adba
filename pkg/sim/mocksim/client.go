// Package mocksim is a simulator stand-in that flies a scripted pattern and
// honours the replay commands, so the recorder can run without a simulator.
package mocksim

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"flightrec/pkg/geo"
	"flightrec/pkg/model"
	"flightrec/pkg/notify"
	"flightrec/pkg/sim"
)

const (
	// FlightStages
	StageParked   = "PARKED"
	StageTaxiing  = "TAXIING"
	StageAirborne = "AIRBORNE"

	defaultTickRate = 100 * time.Millisecond

	knotsToMetersPerSecond = 0.514444
	knotsToFeetPerSecond   = 1.68781
)

// Config holds timing configuration for the mock simulation.
type Config struct {
	TickRate       time.Duration
	ConnectDelay   time.Duration
	DurationParked time.Duration
	DurationTaxi   time.Duration
	StartLat       float64
	StartLon       float64
	StartAlt       float64
	StartHeading   *float64
	Thresholds     sim.Thresholds
}

type scenarioStep struct {
	Type     string
	Target   float64 // for CLIMB
	Rate     float64 // rate in units/min (fpm)
	Duration float64 // seconds for WAIT
}

// MockClient implements sim.Connector.
type MockClient struct {
	mu            sync.Mutex
	pos           model.Position
	groundSpeed   float64 // knots
	verticalSpeed float64 // feet per minute
	stage         string
	stageStart    time.Time
	started       time.Time
	state         sim.State
	paused        bool
	slewUntil     time.Time
	config        Config
	scenario      []scenarioStep
	scenarioIdx   int
	stepStart     time.Time
	groundAlt     float64
	lastTurnTime  time.Time
	crossings     int
	autoConnect   bool

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger

	frames    notify.Hub[struct{}]
	positions notify.Hub[model.Position]
	states    notify.Hub[sim.State]
}

// NewClient creates a mock simulator and starts its physics loop. It
// reports a connection once ConnectDelay has passed.
func NewClient(cfg Config) *MockClient {
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	now := time.Now()
	m := &MockClient{
		config: cfg,
		pos: model.Position{
			Latitude:           cfg.StartLat,
			Longitude:          cfg.StartLon,
			Altitude:           cfg.StartAlt,
			TrueHeading:        getHeading(cfg.StartHeading),
			GearHandlePosition: 1,
			IsOnGround:         1,
		},
		stage:        StageParked,
		stageStart:   now,
		started:      now,
		state:        sim.StateDisconnected,
		groundAlt:    cfg.StartAlt,
		lastTurnTime: now,
		autoConnect:  true,
		stopCh:       make(chan struct{}),
		logger:       slog.With("component", "mocksim"),
	}

	m.wg.Add(1)
	go m.physicsLoop()
	return m
}

// OnFrame implements sim.Connector.
func (m *MockClient) OnFrame(fn func()) func() {
	return m.frames.Subscribe(func(struct{}) { fn() })
}

// OnPosition implements sim.Connector.
func (m *MockClient) OnPosition(fn func(model.Position)) func() {
	return m.positions.Subscribe(fn)
}

// OnStateChanged implements sim.Connector.
func (m *MockClient) OnStateChanged(fn func(sim.State)) func() {
	return m.states.Subscribe(fn)
}

// State returns the current simulator connection state.
func (m *MockClient) State() sim.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetConnected simulates the simulator starting or quitting.
func (m *MockClient) SetConnected(connected bool) {
	next := sim.StateDisconnected
	if connected {
		next = sim.StateActive
	}

	m.mu.Lock()
	m.autoConnect = false
	changed := m.state != next
	m.state = next
	if !connected {
		m.paused = false
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("Simulator state changed", "state", next)
		m.states.Publish(next)
	}
}

// Position returns the current aircraft position.
func (m *MockClient) Position() model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Paused reports whether the simulation is frozen.
func (m *MockClient) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Crossings returns how many threshold events were raised.
func (m *MockClient) Crossings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crossings
}

// InitializePosition teleports the aircraft and selects the matching stage.
func (m *MockClient) InitializePosition(ctx context.Context, p model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Connected() {
		return sim.ErrNotConnected
	}
	m.placeLocked(p)
	if p.OnGround() {
		m.stage = StageParked
		m.groundAlt = p.Altitude
	} else {
		m.stage = StageAirborne
		m.initScenario()
	}
	m.stageStart = time.Now()
	return nil
}

// SetPosition moves the aircraft. Physics is suspended briefly so the next
// frame reports the commanded position.
func (m *MockClient) SetPosition(ctx context.Context, p model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Connected() {
		return sim.ErrNotConnected
	}
	m.placeLocked(p)
	return nil
}

func (m *MockClient) placeLocked(p model.Position) {
	m.pos = p
	m.groundSpeed = math.Hypot(p.VelocityBodyX, p.VelocityBodyZ) / knotsToFeetPerSecond
	m.verticalSpeed = p.VelocityBodyY * 60
	m.slewUntil = time.Now().Add(2 * m.config.TickRate)
}

// Pause freezes the simulation.
func (m *MockClient) Pause(ctx context.Context) error {
	return m.setPaused(true)
}

// Unpause resumes the simulation.
func (m *MockClient) Unpause(ctx context.Context) error {
	return m.setPaused(false)
}

func (m *MockClient) setPaused(paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Connected() {
		return sim.ErrNotConnected
	}
	m.paused = paused
	return nil
}

// TriggerThresholdEvents logs and counts the deviations between the live
// aircraft and the replay target.
func (m *MockClient) TriggerThresholdEvents(ctx context.Context, live, target model.Position) error {
	crossings := m.config.Thresholds.Compare(live, target)
	if len(crossings) == 0 {
		return nil
	}

	m.mu.Lock()
	m.crossings += len(crossings)
	m.mu.Unlock()

	for _, c := range crossings {
		m.logger.Debug("Threshold crossed", "kind", c.Kind, "delta", c.Delta, "limit", c.Limit)
	}
	return nil
}

// Close stops the physics loop and releases resources.
func (m *MockClient) Close() error {
	m.closeOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	return nil
}

func (m *MockClient) physicsLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.tick(now)
		}
	}
}

func (m *MockClient) tick(now time.Time) {
	m.mu.Lock()
	connect := m.autoConnect && now.Sub(m.started) >= m.config.ConnectDelay
	m.mu.Unlock()
	if connect {
		m.SetConnected(true)
	}

	m.mu.Lock()
	if !m.state.Connected() {
		m.mu.Unlock()
		return
	}
	m.update(now, m.config.TickRate.Seconds())
	pos := m.pos
	m.mu.Unlock()

	m.frames.Publish(struct{}{})
	m.positions.Publish(pos)
}

// update integrates one physics step. Callers hold m.mu.
func (m *MockClient) update(now time.Time, dt float64) {
	if m.paused || now.Before(m.slewUntil) {
		return
	}
	stageDuration := now.Sub(m.stageStart)

	switch m.stage {
	case StageParked:
		m.groundSpeed = 0
		m.verticalSpeed = 0
		if stageDuration >= m.config.DurationParked {
			m.stage = StageTaxiing
			m.stageStart = now
		}

	case StageTaxiing:
		m.groundSpeed = 15.0
		m.move(dt)
		if stageDuration >= m.config.DurationTaxi {
			m.stage = StageAirborne
			m.stageStart = now
			m.groundAlt = m.pos.Altitude
			m.initScenario()
		}

	case StageAirborne:
		m.updateAirborne(dt, now)
	}

	m.updateControls()
}

func (m *MockClient) move(dt float64) {
	distMeters := m.groundSpeed * knotsToMetersPerSecond * dt
	if distMeters <= 0 {
		return
	}
	next := geo.DestinationPoint(
		geo.Point{Lat: m.pos.Latitude, Lon: m.pos.Longitude},
		distMeters,
		m.pos.TrueHeading,
	)
	m.pos.Latitude = next.Lat
	m.pos.Longitude = next.Lon
}

func (m *MockClient) updateAirborne(dt float64, now time.Time) {
	m.groundSpeed = 120.0
	// Wander
	if now.Sub(m.lastTurnTime) > 60*time.Second {
		change := (rand.Float64() * 20) - 10
		m.pos.TrueHeading = math.Mod(m.pos.TrueHeading+change+360.0, 360.0)
		m.lastTurnTime = now
	}

	m.updateScenario(dt, now)
	m.move(dt)
}

// updateControls derives the attitude and control fields from speed and
// vertical speed so recordings contain plausible values.
func (m *MockClient) updateControls() {
	agl := m.pos.Altitude - m.groundAlt
	onGround := m.stage != StageAirborne || agl < 50

	forward := m.groundSpeed * knotsToFeetPerSecond
	vertical := m.verticalSpeed / 60.0
	m.pos.VelocityBodyX = 0
	m.pos.VelocityBodyY = vertical
	m.pos.VelocityBodyZ = forward

	m.pos.Pitch = 0
	if forward > 0 && !onGround {
		// Nose up is negative pitch.
		m.pos.Pitch = -math.Atan2(vertical, forward) * 180 / math.Pi
	}
	m.pos.Bank = 0
	m.pos.ElevatorPosition = -m.pos.Pitch / 30

	switch {
	case m.stage == StageParked:
		m.pos.ThrottleLeverPosition = 0
		m.pos.BrakeLeftPosition, m.pos.BrakeRightPosition = 1, 1
	case m.stage == StageTaxiing:
		m.pos.ThrottleLeverPosition = 0.3
		m.pos.BrakeLeftPosition, m.pos.BrakeRightPosition = 0, 0
	default:
		m.pos.ThrottleLeverPosition = 0.85
		m.pos.BrakeLeftPosition, m.pos.BrakeRightPosition = 0, 0
	}

	m.pos.GearHandlePosition = 1
	m.pos.TrailingEdgeFlaps = 0
	if agl > 1000 {
		m.pos.GearHandlePosition = 0
	} else if !onGround {
		m.pos.TrailingEdgeFlaps = 0.25
	}

	m.pos.IsOnGround = 0
	if onGround {
		m.pos.IsOnGround = 1
	}
}

func (m *MockClient) initScenario() {
	// Calculate bottom based on airfield elevation (round down to nearest 1000)
	bottom := math.Floor(m.groundAlt/1000.0) * 1000.0

	m.scenario = []scenarioStep{
		{Type: "CLIMB", Target: 1500.0 + bottom, Rate: 700.0},
		{Type: "WAIT", Duration: 60.0},
		{Type: "CLIMB", Target: 4500.0 + bottom, Rate: 500.0},
		{Type: "WAIT", Duration: 120.0},
		{Type: "CLIMB", Target: 1500.0 + bottom, Rate: -500.0}, // Descent
		{Type: "WAIT", Duration: 60.0},
	}
	m.scenarioIdx = 0
	m.stepStart = time.Time{}
}

func (m *MockClient) updateScenario(dt float64, now time.Time) {
	if len(m.scenario) == 0 {
		return
	}
	if m.scenarioIdx >= len(m.scenario) {
		m.scenarioIdx = 0
		m.stepStart = time.Time{}
	}

	step := m.scenario[m.scenarioIdx]

	switch step.Type {
	case "WAIT":
		m.verticalSpeed = 0
		if m.stepStart.IsZero() {
			m.stepStart = now
		}
		if now.Sub(m.stepStart).Seconds() >= step.Duration {
			m.scenarioIdx++
			m.stepStart = time.Time{}
		}
	case "CLIMB":
		delta := (step.Rate / 60.0) * dt
		m.verticalSpeed = step.Rate

		reached := false
		if step.Rate > 0 {
			reached = m.pos.Altitude+delta >= step.Target
		} else {
			reached = m.pos.Altitude+delta <= step.Target
		}

		if reached {
			m.pos.Altitude = step.Target
			m.verticalSpeed = 0
			m.scenarioIdx++
			m.stepStart = time.Time{}
		} else {
			m.pos.Altitude += delta
		}
	}
}

func getHeading(h *float64) float64 {
	if h == nil {
		return rand.Float64() * 360.0
	}
	return *h
}
