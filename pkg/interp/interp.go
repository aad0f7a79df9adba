// Package interp blends aircraft positions between two recorded samples.
package interp

import "flightrec/pkg/model"

// Lerp returns a*t + b*(1-t).
func Lerp(a, b, t float64) float64 {
	return a*t + b*(1-t)
}

// Wrap blends two values of a circular quantity bounded by [lo, hi),
// following the shorter way around. x1 carries weight t, x2 carries 1-t.
// When the direct and wrapped distances are equal the direct path wins.
func Wrap(x1, x2, t, lo, hi float64) float64 {
	span := hi - lo
	diff := x1 - x2
	if diff < 0 {
		diff = -diff
	}
	wrapDiff := span - diff
	if wrapDiff >= diff {
		return Lerp(x1, x2, t)
	}

	// Shift the smaller value by one period so both sit next to each other.
	if x1 < x2 {
		x1 += span
	} else {
		x2 += span
	}
	v := Lerp(x1, x2, t)
	if v >= hi {
		v -= span
	} else if v < lo {
		v += span
	}
	return v
}

// Positions interpolates a and b field by field: a carries weight t, b
// carries 1-t. Angular fields use Wrap with their declared range.
func Positions(a, b model.Position, t float64) model.Position {
	av := a.Values()
	bv := b.Values()
	out := make([]float64, len(av))
	for i := range av {
		if r, ok := model.CircularFields[i]; ok {
			out[i] = Wrap(av[i], bv[i], t, r.Min, r.Max)
			continue
		}
		out[i] = Lerp(av[i], bv[i], t)
	}
	return model.PositionFromValues(out)
}
