package sim

import (
	"context"
	"sync"

	"flightrec/pkg/model"
)

// Guarded serializes every command sent to the wrapped connector. Commands
// come from both the control path and the replay loop.
type Guarded struct {
	Connector
	mu sync.Mutex
}

// NewGuarded wraps c.
func NewGuarded(c Connector) *Guarded {
	return &Guarded{Connector: c}
}

func (g *Guarded) InitializePosition(ctx context.Context, p model.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Connector.InitializePosition(ctx, p)
}

func (g *Guarded) SetPosition(ctx context.Context, p model.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Connector.SetPosition(ctx, p)
}

func (g *Guarded) Pause(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Connector.Pause(ctx)
}

func (g *Guarded) Unpause(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Connector.Unpause(ctx)
}

func (g *Guarded) TriggerThresholdEvents(ctx context.Context, live, target model.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Connector.TriggerThresholdEvents(ctx, live, target)
}
