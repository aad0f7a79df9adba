package mocksim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"flightrec/pkg/geo"
	"flightrec/pkg/model"
	"flightrec/pkg/sim"
)

func waitForReq(t *testing.T, check func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Timeout waiting for: %s", msg)
}

func fastConfig() Config {
	heading := 90.0
	return Config{
		TickRate:       10 * time.Millisecond,
		DurationParked: 20 * time.Millisecond,
		DurationTaxi:   20 * time.Millisecond,
		StartLat:       47.0,
		StartLon:       8.0,
		StartAlt:       1400,
		StartHeading:   &heading,
		Thresholds:     sim.DefaultThresholds(),
	}
}

func TestConnectsAndStreamsFrames(t *testing.T) {
	client := NewClient(fastConfig())
	defer client.Close()

	var states []sim.State
	stateCh := make(chan sim.State, 4)
	defer client.OnStateChanged(func(s sim.State) { stateCh <- s })()

	var frames, positions atomic.Int32
	defer client.OnFrame(func() { frames.Add(1) })()
	defer client.OnPosition(func(model.Position) { positions.Add(1) })()

	select {
	case s := <-stateCh:
		states = append(states, s)
	case <-time.After(time.Second):
		t.Fatal("mock never connected")
	}
	if states[0] != sim.StateActive {
		t.Fatalf("expected active, got %v", states[0])
	}

	waitForReq(t, func() bool { return frames.Load() >= 5 && positions.Load() >= 5 }, time.Second, "frames")
}

func TestTakesOff(t *testing.T) {
	client := NewClient(fastConfig())
	defer client.Close()

	waitForReq(t, func() bool {
		p := client.Position()
		return p.Altitude > 1401 && p.VelocityBodyY > 0
	}, 3*time.Second, "climbing")
}

func TestControlsFollowFlightPhase(t *testing.T) {
	cfg := fastConfig()
	cfg.ConnectDelay = time.Hour
	m := NewClient(cfg)
	defer m.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stage = StageAirborne
	m.groundAlt = 0
	m.pos.Altitude = 3000
	m.groundSpeed = 120
	m.verticalSpeed = 700
	m.updateControls()

	if m.pos.OnGround() {
		t.Error("expected airborne")
	}
	if m.pos.Pitch >= 0 {
		t.Errorf("climbing aircraft should be nose up (negative pitch), got %v", m.pos.Pitch)
	}
	if m.pos.GearHandlePosition != 0 {
		t.Error("expected gear up above 1000ft AGL")
	}

	m.stage = StageParked
	m.groundSpeed = 0
	m.verticalSpeed = 0
	m.pos.Altitude = 0
	m.updateControls()
	if !m.pos.OnGround() || m.pos.BrakeLeftPosition != 1 || m.pos.Pitch != 0 {
		t.Errorf("unexpected parked controls %+v", m.pos)
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	cfg := fastConfig()
	cfg.ConnectDelay = time.Hour
	client := NewClient(cfg)
	defer client.Close()

	ctx := context.Background()
	if err := client.Pause(ctx); err != sim.ErrNotConnected {
		t.Errorf("Pause: expected ErrNotConnected, got %v", err)
	}
	if err := client.SetPosition(ctx, model.Position{}); err != sim.ErrNotConnected {
		t.Errorf("SetPosition: expected ErrNotConnected, got %v", err)
	}

	client.SetConnected(true)
	if err := client.Pause(ctx); err != nil {
		t.Errorf("Pause after connect: %v", err)
	}
	client.SetConnected(false)
	if client.Paused() {
		t.Error("disconnect should clear the pause")
	}
}

func TestPauseFreezesPhysics(t *testing.T) {
	client := NewClient(fastConfig())
	defer client.Close()
	client.SetConnected(true)

	waitForReq(t, func() bool { return client.Position().VelocityBodyZ > 0 }, 2*time.Second, "moving")

	if err := client.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	frozen := client.Position()
	time.Sleep(50 * time.Millisecond)
	if got := client.Position(); got != frozen {
		t.Errorf("position changed while paused: %+v -> %+v", frozen, got)
	}

	if err := client.Unpause(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForReq(t, func() bool { return client.Position() != frozen }, time.Second, "moving again")
}

func TestSetPositionTeleports(t *testing.T) {
	client := NewClient(fastConfig())
	defer client.Close()
	client.SetConnected(true)

	target := model.Position{Latitude: 46.5, Longitude: 7.5, Altitude: 8000, TrueHeading: 270, VelocityBodyZ: 200}
	if err := client.InitializePosition(context.Background(), target); err != nil {
		t.Fatal(err)
	}
	got := client.Position()
	if got.Latitude != 46.5 || got.Altitude != 8000 {
		t.Errorf("unexpected position %+v", got)
	}

	client.mu.Lock()
	stage := client.stage
	client.mu.Unlock()
	if stage != StageAirborne {
		t.Errorf("expected airborne stage, got %s", stage)
	}
}

func TestThresholdEventsAreCounted(t *testing.T) {
	client := NewClient(fastConfig())
	defer client.Close()

	live := model.Position{Latitude: 47, Longitude: 8, Altitude: 3000}
	if err := client.TriggerThresholdEvents(context.Background(), live, live); err != nil {
		t.Fatal(err)
	}
	if client.Crossings() != 0 {
		t.Errorf("expected no crossings, got %d", client.Crossings())
	}

	target := live
	target.Altitude = 3500
	target.TrueHeading = 45
	_ = client.TriggerThresholdEvents(context.Background(), live, target)
	if client.Crossings() != 2 {
		t.Errorf("expected 2 crossings, got %d", client.Crossings())
	}
}

func TestMockPhysics_Accuracy(t *testing.T) {
	cfg := fastConfig()
	cfg.ConnectDelay = time.Hour
	m := NewClient(cfg)
	defer m.Close()

	m.mu.Lock()
	m.stage = StageAirborne
	m.stageStart = time.Now()
	m.pos.Latitude = 51.5
	m.pos.Longitude = -0.12
	m.pos.TrueHeading = 90.0
	m.scenario = nil
	m.lastTurnTime = time.Now()
	m.update(time.Now(), 60)
	end := m.pos
	m.mu.Unlock()

	// At 120 kts, 1 minute should cover exactly 2.0 NM
	distNM := geo.Distance(geo.Point{Lat: 51.5, Lon: -0.12}, geo.Point{Lat: end.Latitude, Lon: end.Longitude}) / 1852.0
	if distNM < 1.99 || distNM > 2.01 {
		t.Errorf("Inaccurate physics: expected ~2.0 NM, got %.4f NM", distNM)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	client := NewClient(fastConfig())
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
}
