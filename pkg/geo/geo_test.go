package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   Point{Lat: 51.5074, Lon: -0.1278},
			p2:   Point{Lat: 48.8566, Lon: 2.3522},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 1},
			want: 111319, // Approx 111km
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// Allow 1% margin of error due to float precision/earth radius var
			margin := tt.want * 0.01
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
			if tt.want == 0 && got > 1e-6 {
				t.Errorf("Distance() = %v, want 0", got)
			}
		})
	}
}

func TestDestinationPointRoundTrip(t *testing.T) {
	start := Point{Lat: 47.4647, Lon: 8.5492}
	for _, brg := range []float64{0, 45, 90, 180, 270, 359} {
		dest := DestinationPoint(start, 10000, brg)
		if d := Distance(start, dest); math.Abs(d-10000) > 10 {
			t.Errorf("bearing %v: distance %v, want ~10000", brg, d)
		}
		got := Bearing(start, dest)
		if HeadingDelta(got, brg) > 0.5 {
			t.Errorf("bearing %v: got %v", brg, got)
		}
		if got < 0 || got >= 360 {
			t.Errorf("bearing %v out of range", got)
		}
	}
}

func TestHeadingDelta(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 350, 20},
		{350, 10, 20},
		{90, 270, 180},
		{0, 0, 0},
		{45, 30, 15},
	}
	for _, tt := range tests {
		if got := HeadingDelta(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("HeadingDelta(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
