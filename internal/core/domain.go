package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TimestampLayout is the external form of Transaction.OccurredAt.
	TimestampLayout = "2006-01-02T15:04:05"

	// HalfWidth is the distance from a window center to either of its bounds.
	HalfWidth = 12 * time.Hour
)

type (
	// Transaction is a single monetary event attributed to an entity.
	Transaction struct {
		EntityKey  string // Opaque, stable per entity (e.g. a card hash)
		OccurredAt time.Time
		Amount     decimal.Decimal
	}

	// TimeRange is the horizon over which windows are scanned.
	TimeRange struct {
		Start time.Time
		End   time.Time
	}

	// Window is a fixed-width interval centered on a scan point.
	Window struct {
		Center    time.Time
		HalfWidth time.Duration
	}
)

// NewTransaction builds a validated transaction. The timestamp is normalized
// to UTC and truncated to the second.
func NewTransaction(entityKey string, occurredAt time.Time, amount decimal.Decimal) (Transaction, error) {
	tx := Transaction{
		EntityKey:  strings.TrimSpace(entityKey),
		OccurredAt: occurredAt.UTC().Truncate(time.Second),
		Amount:     amount,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (t Transaction) Validate() error {
	if t.EntityKey == "" {
		return ErrEmptyEntityKey
	}
	if t.OccurredAt.IsZero() {
		return ErrZeroTimestamp
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// NewTimeRange returns a validated range.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start.UTC(), End: end.UTC()}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &ConfigError{Field: "range", Reason: "start and end are required"}
	}
	if !r.Start.Before(r.End) {
		return &ConfigError{Field: "range", Reason: "start must be before end"}
	}
	return nil
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Widen returns the range extended by d on both sides.
func (r TimeRange) Widen(d time.Duration) TimeRange {
	return TimeRange{Start: r.Start.Add(-d), End: r.End.Add(d)}
}

// NewWindow returns the window centered on center with the standard half width.
func NewWindow(center time.Time) Window {
	return Window{Center: center, HalfWidth: HalfWidth}
}

// Start returns the inclusive lower bound.
func (w Window) Start() time.Time {
	return w.Center.Add(-w.HalfWidth)
}

// End returns the inclusive upper bound.
func (w Window) End() time.Time {
	return w.Center.Add(w.HalfWidth)
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start()) && !t.After(w.End())
}

// ParseTimestamp parses a timestamp in exactly TimestampLayout as UTC.
// Fractional seconds are rejected: time.Parse accepts them after the seconds
// field even when the layout has none.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if FormatTimestamp(t) != s {
		return time.Time{}, fmt.Errorf("parsing time %q: want layout %s", s, TimestampLayout)
	}
	return t, nil
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
