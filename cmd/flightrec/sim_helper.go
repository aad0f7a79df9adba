package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flightrec/pkg/config"
	"flightrec/pkg/sim"
	"flightrec/pkg/sim/mocksim"
)

func initializeSimClient(ctx context.Context, cfg *config.Config, settings config.Provider) (sim.Connector, error) {
	switch cfg.Sim.Provider {
	case "", "mock":
		slog.Info("Sim Source: Mock")
		m := cfg.Sim.Mock
		return mocksim.NewClient(mocksim.Config{
			TickRate:       time.Duration(m.TickRate),
			ConnectDelay:   time.Duration(m.ConnectDelay),
			DurationParked: time.Duration(m.DurationParked),
			DurationTaxi:   time.Duration(m.DurationTaxi),
			StartLat:       m.StartLat,
			StartLon:       m.StartLon,
			StartAlt:       m.StartAlt,
			StartHeading:   m.StartHeading,
			Thresholds:     settings.Thresholds(ctx),
		}), nil
	default:
		return nil, fmt.Errorf("unknown sim provider %q", cfg.Sim.Provider)
	}
}
