package source

import (
	"context"
	"fmt"
	"time"

	"cardwatch/internal/core"
	"cardwatch/internal/ingest"
	"cardwatch/internal/log"
	"cardwatch/internal/storage"
)

// Open creates the source described by cfg. The caller must Close the result.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSource)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case CSV:
		logger.InfoContext(ctx, "Initialized csv source", log.FieldPath, cfg.InputPath)
		return &Result{Source: &csvSource{path: cfg.InputPath}}, nil

	case Ledger:
		repo, err := storage.NewSQLiteRepository(cfg.LedgerDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
		logger.InfoContext(ctx, "Initialized ledger source", log.FieldPath, cfg.LedgerDBPath)
		return &Result{
			Source:  &ledgerSource{repo: repo},
			Cleanup: repo.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}

// csvSource rereads the file on every call.
type csvSource struct {
	path string
}

func (s *csvSource) Load(ctx context.Context, rng core.TimeRange) ([]core.Transaction, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return Within(all, rng), nil
}

func (s *csvSource) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ingest.ReadFile(s.path)
}

type ledgerSource struct {
	repo *storage.SQLiteRepository
}

func (s *ledgerSource) Load(ctx context.Context, rng core.TimeRange) ([]core.Transaction, error) {
	return s.repo.Load(ctx, rng.Widen(core.HalfWidth))
}

func (s *ledgerSource) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	return s.repo.LoadAll(ctx)
}

// Within keeps the records that can reach a window of rng, in input order.
func Within(records []core.Transaction, rng core.TimeRange) []core.Transaction {
	wide := rng.Widen(core.HalfWidth)
	out := make([]core.Transaction, 0, len(records))
	for _, r := range records {
		if r.OccurredAt.Before(wide.Start) || r.OccurredAt.After(wide.End) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SpanRange returns the range from one step before the earliest record to
// one step after the latest. The first window is then centered on the
// earliest record and the last one at or past the latest, so with a step of
// at most a day every record falls inside some window. ok is false for no
// records.
func SpanRange(records []core.Transaction, step time.Duration) (rng core.TimeRange, ok bool) {
	if len(records) == 0 {
		return core.TimeRange{}, false
	}
	lo, hi := records[0].OccurredAt, records[0].OccurredAt
	for _, r := range records[1:] {
		if r.OccurredAt.Before(lo) {
			lo = r.OccurredAt
		}
		if r.OccurredAt.After(hi) {
			hi = r.OccurredAt
		}
	}
	return core.TimeRange{
		Start: lo.UTC().Add(-step),
		End:   hi.UTC().Add(step),
	}, true
}
