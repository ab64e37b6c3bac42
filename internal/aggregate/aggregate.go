// Package aggregate computes per-entity amount totals for a single window.
package aggregate

import (
	"slices"

	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
	"cardwatch/internal/index"
)

// Sums maps every entity key of the universe to its total inside one window.
// A fresh Sums is built for each window; nothing carries over.
type Sums map[string]decimal.Decimal

// Sum totals each entity's records inside w using the index. Entities with no
// qualifying record map to zero.
func Sum(idx *index.Index, w core.Window) Sums {
	lo, hi := w.Start(), w.End()
	sums := make(Sums, idx.Entities())
	for key := range idx.Universe() {
		sums[key] = idx.SumWithin(key, lo, hi)
	}
	return sums
}

// Get returns the sum for key, zero if absent.
func (s Sums) Get(key string) decimal.Decimal {
	if v, ok := s[key]; ok {
		return v
	}
	return decimal.Zero
}

// Keys returns the entity keys in sorted order.
func (s Sums) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
