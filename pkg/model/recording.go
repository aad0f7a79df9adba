package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecording is returned when a recording violates its ordering
// or timestamp invariants.
var ErrInvalidRecording = errors.New("invalid recording")

// Recording is an append-ordered sequence of samples. It is treated as
// immutable once it leaves the recorder: consumers receive copies.
type Recording struct {
	StartMillis int64    `json:"start_ms" msgpack:"start"` // Unix millis when capture started
	EndMillis   int64    `json:"end_ms" msgpack:"end"`     // Unix millis when capture stopped
	Samples     []Sample `json:"samples" msgpack:"samples"`
}

// Len returns the number of samples.
func (r *Recording) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Samples)
}

// Empty reports whether the recording has no samples.
func (r *Recording) Empty() bool {
	return r.Len() == 0
}

// Duration returns the elapsed time covered by the samples.
func (r *Recording) Duration() time.Duration {
	if r.Empty() {
		return 0
	}
	first := r.Samples[0].ElapsedMillis
	last := r.Samples[len(r.Samples)-1].ElapsedMillis
	return time.Duration(last-first) * time.Millisecond
}

// Clone returns a deep copy.
func (r *Recording) Clone() *Recording {
	if r == nil {
		return nil
	}
	c := &Recording{StartMillis: r.StartMillis, EndMillis: r.EndMillis}
	if r.Samples != nil {
		c.Samples = make([]Sample, len(r.Samples))
		copy(c.Samples, r.Samples)
	}
	return c
}

// Validate checks that elapsed times are non-negative and non-decreasing.
func (r *Recording) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil recording", ErrInvalidRecording)
	}
	if r.EndMillis != 0 && r.EndMillis < r.StartMillis {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidRecording, r.EndMillis, r.StartMillis)
	}
	var prev int64
	for i, s := range r.Samples {
		if s.ElapsedMillis < 0 {
			return fmt.Errorf("%w: sample %d has negative elapsed time %d", ErrInvalidRecording, i, s.ElapsedMillis)
		}
		if i > 0 && s.ElapsedMillis < prev {
			return fmt.Errorf("%w: sample %d out of order (%d < %d)", ErrInvalidRecording, i, s.ElapsedMillis, prev)
		}
		prev = s.ElapsedMillis
	}
	return nil
}

// Trimmed returns a new recording holding samples [from, to] inclusive.
// Elapsed times are rebased so the first kept sample starts at zero and the
// start/end timestamps are shifted to match.
func (r *Recording) Trimmed(from, to int) (*Recording, error) {
	n := r.Len()
	if from < 0 || to >= n || from > to {
		return nil, fmt.Errorf("%w: trim range [%d, %d] outside [0, %d)", ErrInvalidRecording, from, to, n)
	}
	base := r.Samples[from].ElapsedMillis
	out := &Recording{
		StartMillis: r.StartMillis + base,
		EndMillis:   r.StartMillis + r.Samples[to].ElapsedMillis,
		Samples:     make([]Sample, 0, to-from+1),
	}
	for _, s := range r.Samples[from : to+1] {
		s.ElapsedMillis -= base
		out.Samples = append(out.Samples, s)
	}
	return out, nil
}
