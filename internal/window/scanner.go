// Package window places scan windows across a time range.
package window

import (
	"fmt"
	"iter"
	"time"

	"cardwatch/internal/core"
)

// Scanner yields windows centered at rng.Start + k*step for k = 1, 2, ...
// while the center is strictly before rng.End. The range start itself is
// never a center. It is a pure value and can be iterated any number of times.
type Scanner struct {
	rng  core.TimeRange
	step time.Duration
	n    int
}

// New validates the range and step and returns a scanner.
func New(rng core.TimeRange, step time.Duration) (Scanner, error) {
	if step <= 0 {
		return Scanner{}, &core.ConfigError{Field: "step", Reason: fmt.Sprintf("must be positive, got %v", step)}
	}
	if err := rng.Validate(); err != nil {
		return Scanner{}, err
	}
	// k*step < span  <=>  k <= (span-1)/step in whole nanoseconds
	span := rng.Duration()
	return Scanner{rng: rng, step: step, n: int((span - 1) / step)}, nil
}

// Len returns the number of windows.
func (s Scanner) Len() int {
	return s.n
}

// Step returns the distance between consecutive centers.
func (s Scanner) Step() time.Duration {
	return s.step
}

// Range returns the validated scan range.
func (s Scanner) Range() core.TimeRange {
	return s.rng
}

// At returns the i-th window, 0 <= i < Len().
func (s Scanner) At(i int) core.Window {
	return core.NewWindow(s.rng.Start.Add(time.Duration(i+1) * s.step))
}

// All yields every window in increasing center order.
func (s Scanner) All() iter.Seq[core.Window] {
	return func(yield func(core.Window) bool) {
		for i := 0; i < s.n; i++ {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}
