// Package index groups transactions by entity and orders them by time so that
// a window sum costs two binary searches instead of a rescan of every record.
package index

import (
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
)

// series holds one entity's records in chronological order. prefix[i] is the
// sum of the first i amounts.
type series struct {
	records []core.Transaction
	prefix  []decimal.Decimal
}

// Index is read-only once built and safe for concurrent use.
type Index struct {
	keys   []string
	series map[string]*series
	total  int
	first  time.Time
	last   time.Time
}

// Build indexes records. The input slice is not modified and may be unsorted.
// Records sharing a timestamp keep their input order.
func Build(records []core.Transaction) *Index {
	grouped := make(map[string][]core.Transaction)
	for _, r := range records {
		grouped[r.EntityKey] = append(grouped[r.EntityKey], r)
	}

	idx := &Index{
		keys:   make([]string, 0, len(grouped)),
		series: make(map[string]*series, len(grouped)),
		total:  len(records),
	}
	for key, recs := range grouped {
		slices.SortStableFunc(recs, func(a, b core.Transaction) int {
			return a.OccurredAt.Compare(b.OccurredAt)
		})
		prefix := make([]decimal.Decimal, len(recs)+1)
		prefix[0] = decimal.Zero
		for i, r := range recs {
			prefix[i+1] = prefix[i].Add(r.Amount)
		}
		idx.series[key] = &series{records: recs, prefix: prefix}
		idx.keys = append(idx.keys, key)

		if idx.first.IsZero() || recs[0].OccurredAt.Before(idx.first) {
			idx.first = recs[0].OccurredAt
		}
		if recs[len(recs)-1].OccurredAt.After(idx.last) {
			idx.last = recs[len(recs)-1].OccurredAt
		}
	}
	slices.Sort(idx.keys)
	return idx
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	return x.total
}

// Entities returns the number of distinct entity keys.
func (x *Index) Entities() int {
	return len(x.keys)
}

// Keys returns the sorted universe of entity keys.
func (x *Index) Keys() []string {
	return slices.Clone(x.keys)
}

// Universe yields the sorted entity keys without copying them.
func (x *Index) Universe() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, k := range x.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Span returns the earliest and latest timestamps. ok is false when empty.
func (x *Index) Span() (first, last time.Time, ok bool) {
	if x.total == 0 {
		return time.Time{}, time.Time{}, false
	}
	return x.first, x.last, true
}

// SumWithin returns the total amount of the entity's records with
// lo <= OccurredAt <= hi, or zero if there are none.
func (x *Index) SumWithin(key string, lo, hi time.Time) decimal.Decimal {
	s, ok := x.series[key]
	if !ok {
		return decimal.Zero
	}
	i, j := s.bounds(lo, hi)
	if i >= j {
		return decimal.Zero
	}
	return s.prefix[j].Sub(s.prefix[i])
}

// bounds returns the half-open slice [i, j) of records inside [lo, hi].
func (s *series) bounds(lo, hi time.Time) (int, int) {
	n := len(s.records)
	i := sort.Search(n, func(k int) bool { return !s.records[k].OccurredAt.Before(lo) })
	j := sort.Search(n, func(k int) bool { return s.records[k].OccurredAt.After(hi) })
	return i, j
}
