package aggregate

import (
	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
)

// sumLinear is the full-rescan equivalent of Sum: every record is tested
// against w. It is O(len(records)) per window.
func sumLinear(records []core.Transaction, universe []string, w core.Window) Sums {
	sums := make(Sums, len(universe))
	for _, key := range universe {
		sums[key] = decimal.Zero
	}
	for _, r := range records {
		if !w.Contains(r.OccurredAt) {
			continue
		}
		sums[r.EntityKey] = sums[r.EntityKey].Add(r.Amount)
	}
	return sums
}

func equalSums(a, b Sums) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		o, ok := b[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}
