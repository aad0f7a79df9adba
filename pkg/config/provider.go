package config

import (
	"context"
	"strconv"
	"time"

	"flightrec/pkg/sim"
	"flightrec/pkg/store"
)

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	// Storage
	DefaultSaveFolder(ctx context.Context) (string, bool)
	SetDefaultSaveFolder(ctx context.Context, path string) error

	// Replay
	ReplayRate(ctx context.Context) float64
	SetReplayRate(ctx context.Context, rate float64) error
	ThrottleInterval(ctx context.Context) time.Duration
	SetThrottleInterval(ctx context.Context, d time.Duration) error
	StopTimeout(ctx context.Context) time.Duration

	// Sim
	Thresholds(ctx context.Context) sim.Thresholds

	// Dialog
	AutoConfirm(ctx context.Context) bool

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// --- Implementations ---

// DefaultSaveFolder returns the folder new recordings are saved to. ok is
// false when neither the store nor the config names one.
func (p *UnifiedProvider) DefaultSaveFolder(ctx context.Context) (string, bool) {
	folder := p.getString(ctx, KeySaveFolder, p.base.Storage.SaveFolder)
	return folder, folder != ""
}

func (p *UnifiedProvider) SetDefaultSaveFolder(ctx context.Context, path string) error {
	return p.setString(ctx, KeySaveFolder, path)
}

func (p *UnifiedProvider) ReplayRate(ctx context.Context) float64 {
	rate := p.getFloat64(ctx, KeyReplayRate, p.base.Replay.Rate)
	if rate <= 0 {
		return 1.0
	}
	return rate
}

func (p *UnifiedProvider) SetReplayRate(ctx context.Context, rate float64) error {
	return p.setString(ctx, KeyReplayRate, strconv.FormatFloat(rate, 'f', -1, 64))
}

func (p *UnifiedProvider) ThrottleInterval(ctx context.Context) time.Duration {
	return p.getDuration(ctx, KeyThrottleInterval, time.Duration(p.base.Replay.ThrottleInterval))
}

func (p *UnifiedProvider) SetThrottleInterval(ctx context.Context, d time.Duration) error {
	return p.setString(ctx, KeyThrottleInterval, d.String())
}

func (p *UnifiedProvider) StopTimeout(ctx context.Context) time.Duration {
	return time.Duration(p.base.Replay.StopTimeout)
}

func (p *UnifiedProvider) Thresholds(ctx context.Context) sim.Thresholds {
	t := p.base.Sim.Thresholds
	return sim.Thresholds{
		DistanceMeters: float64(t.Distance),
		AltitudeFeet:   t.Altitude,
		HeadingDegrees: t.Heading,
	}
}

func (p *UnifiedProvider) AutoConfirm(ctx context.Context) bool {
	return p.getBool(ctx, KeyAutoConfirm, p.base.Dialog.AutoConfirm)
}

// --- Helpers ---

func (p *UnifiedProvider) setString(ctx context.Context, key, val string) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetState(ctx, key, val)
}

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}

func (p *UnifiedProvider) getDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if dur, err := ParseDuration(val); err == nil {
				return dur
			}
		}
	}
	return fallback
}
