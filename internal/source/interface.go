// Package source selects where scan input comes from: a CSV file or the
// SQLite ledger.
package source

import (
	"context"

	"cardwatch/internal/core"
)

// Source yields the transactions a scan over a range needs. Load returns every
// record that can fall inside a window of rng, which includes records up to
// core.HalfWidth outside its bounds.
type Source interface {
	Load(ctx context.Context, rng core.TimeRange) ([]core.Transaction, error)
	LoadAll(ctx context.Context) ([]core.Transaction, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the source and optional cleanup function
type Result struct {
	Source  Source
	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Config holds configuration for source creation
type Config struct {
	Type Type

	// CSV specific
	InputPath string

	// Ledger specific
	LedgerDBPath string
}

// Type represents the kind of source
type Type string

const (
	CSV    Type = "csv"
	Ledger Type = "ledger"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the source type is known
func (t Type) IsValid() bool {
	switch t {
	case CSV, Ledger:
		return true
	default:
		return false
	}
}
