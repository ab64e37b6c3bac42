// Package alerts defines where scan results are announced.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
	"cardwatch/internal/detect"
)

// ErrClosed is returned by publishers after Close.
var ErrClosed = errors.New("publisher closed")

// Publisher delivers flag events and scan summaries to downstream consumers.
type Publisher interface {
	PublishFlag(ctx context.Context, runID uuid.UUID, f core.Flag) error
	PublishSummary(ctx context.Context, s Summary) error
	Close() error
}

// Summary describes a finished scan.
type Summary struct {
	RunID     uuid.UUID
	Range     core.TimeRange
	Step      time.Duration
	Threshold decimal.Decimal
	Windows   int
	Records   int
	Entities  int
	Flags     int
	Flagged   []string // sorted
	Elapsed   time.Duration
}

func SummaryFromResult(res *detect.Result) Summary {
	return Summary{
		RunID:     res.RunID,
		Range:     res.Range,
		Step:      res.Step,
		Threshold: res.Threshold,
		Windows:   res.Windows,
		Records:   res.Records,
		Entities:  res.Entities,
		Flags:     len(res.Flags),
		Flagged:   res.Flagged.Keys(),
		Elapsed:   res.Elapsed,
	}
}

// Dispatch publishes every flag event of res in window order, then the
// summary. It keeps going after a failed flag and returns all failures joined.
func Dispatch(ctx context.Context, p Publisher, res *detect.Result) error {
	var errs []error
	for _, f := range res.Flags {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.PublishFlag(ctx, res.RunID, f); err != nil {
			errs = append(errs, fmt.Errorf("publish flag %s: %w", f.EntityKey, err))
		}
	}
	if err := p.PublishSummary(ctx, SummaryFromResult(res)); err != nil {
		errs = append(errs, fmt.Errorf("publish summary: %w", err))
	}
	return errors.Join(errs...)
}
