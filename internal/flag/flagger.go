// Package flag decides which entities exceed the threshold and collects them
// into a deduplicated set.
package flag

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cardwatch/internal/aggregate"
	"cardwatch/internal/core"
)

// Flagger compares window sums against a fixed threshold. A sum equal to the
// threshold is not flagged.
type Flagger struct {
	threshold decimal.Decimal
}

// New returns a flagger. A negative threshold is rejected.
func New(threshold decimal.Decimal) (*Flagger, error) {
	if threshold.IsNegative() {
		return nil, &core.ConfigError{Field: "threshold", Reason: fmt.Sprintf("must not be negative, got %s", threshold)}
	}
	return &Flagger{threshold: threshold}, nil
}

func (f *Flagger) Threshold() decimal.Decimal {
	return f.threshold
}

// Exceeds reports whether sum is strictly greater than the threshold.
func (f *Flagger) Exceeds(sum decimal.Decimal) bool {
	return sum.GreaterThan(f.threshold)
}

// Evaluate returns one flag per entity of sums that exceeds the threshold in
// w, ordered by entity key.
func (f *Flagger) Evaluate(w core.Window, sums aggregate.Sums) []core.Flag {
	var flags []core.Flag
	for _, key := range sums.Keys() {
		sum := sums.Get(key)
		if !f.Exceeds(sum) {
			continue
		}
		flags = append(flags, core.Flag{
			EntityKey:    key,
			WindowCenter: w.Center,
			Sum:          sum,
			Threshold:    f.threshold,
		})
	}
	return flags
}

// Observe evaluates w and adds every flagged entity to set.
func (f *Flagger) Observe(w core.Window, sums aggregate.Sums, set *Set) []core.Flag {
	flags := f.Evaluate(w, sums)
	for _, fl := range flags {
		set.Add(fl.EntityKey)
	}
	return flags
}
