package sim

import (
	"math"

	"flightrec/pkg/geo"
	"flightrec/pkg/model"
)

// Kind names a compared quantity.
type Kind string

const (
	KindDistance Kind = "distance"
	KindAltitude Kind = "altitude"
	KindHeading  Kind = "heading"
	KindGround   Kind = "ground"
)

// Thresholds are the deviations between live and replayed aircraft that
// raise a simulator event.
type Thresholds struct {
	DistanceMeters float64 `yaml:"distance_meters"`
	AltitudeFeet   float64 `yaml:"altitude_feet"`
	HeadingDegrees float64 `yaml:"heading_degrees"`
}

// DefaultThresholds are tuned for a replay that is being flown along.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DistanceMeters: 100,
		AltitudeFeet:   50,
		HeadingDegrees: 10,
	}
}

// Crossing is one exceeded threshold.
type Crossing struct {
	Kind  Kind    `json:"kind"`
	Delta float64 `json:"delta"`
	Limit float64 `json:"limit"`
}

// Compare returns every threshold exceeded between live and target. A zero
// limit disables that check.
func (t Thresholds) Compare(live, target model.Position) []Crossing {
	var out []Crossing

	if t.DistanceMeters > 0 {
		d := geo.Distance(
			geo.Point{Lat: live.Latitude, Lon: live.Longitude},
			geo.Point{Lat: target.Latitude, Lon: target.Longitude},
		)
		if d > t.DistanceMeters {
			out = append(out, Crossing{Kind: KindDistance, Delta: d, Limit: t.DistanceMeters})
		}
	}
	if t.AltitudeFeet > 0 {
		if d := math.Abs(live.Altitude - target.Altitude); d > t.AltitudeFeet {
			out = append(out, Crossing{Kind: KindAltitude, Delta: d, Limit: t.AltitudeFeet})
		}
	}
	if t.HeadingDegrees > 0 {
		if d := geo.HeadingDelta(live.TrueHeading, target.TrueHeading); d > t.HeadingDegrees {
			out = append(out, Crossing{Kind: KindHeading, Delta: d, Limit: t.HeadingDegrees})
		}
	}
	if live.OnGround() != target.OnGround() {
		out = append(out, Crossing{Kind: KindGround, Delta: 1, Limit: 0})
	}
	return out
}
