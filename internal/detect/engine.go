// Package detect runs the sliding-window scan: index the records once, walk
// the windows, total each entity per window and collect the entities whose
// total exceeds the threshold.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cardwatch/internal/aggregate"
	"cardwatch/internal/core"
	"cardwatch/internal/flag"
	"cardwatch/internal/index"
	"cardwatch/internal/log"
	"cardwatch/internal/metrics"
	"cardwatch/internal/window"
)

// chunksPerWorker splits the window range finer than the worker count so
// that uneven chunks still keep every worker busy.
const chunksPerWorker = 4

// FlagHook is called once per flag event after the scan, in window order.
type FlagHook func(ctx context.Context, f core.Flag)

type Option func(*Engine)

// WithWorkers sets the number of goroutines scanning windows. Values below 1
// mean sequential.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.WithComponent(log.ComponentDetect)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithFlagHook(hook FlagHook) Option {
	return func(e *Engine) {
		e.onFlag = hook
	}
}

// Engine holds scan options only; every Run starts from scratch.
type Engine struct {
	workers int
	logger  *log.Logger
	metrics *metrics.Metrics
	onFlag  FlagHook
}

func New(opts ...Option) *Engine {
	e := &Engine{
		workers: 1,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one scan.
type Result struct {
	RunID     uuid.UUID
	Flagged   flag.Set
	Flags     []core.Flag // ordered by window center, then entity key
	Range     core.TimeRange
	Step      time.Duration
	Threshold decimal.Decimal
	Windows   int
	Records   int
	Entities  int
	Elapsed   time.Duration
}

type chunk struct {
	lo, hi int
}

type chunkResult struct {
	set   flag.Set
	flags []core.Flag
}

// Run scans records over rng. Range, step and threshold are validated before
// any work is done.
func (e *Engine) Run(ctx context.Context, records []core.Transaction, rng core.TimeRange, threshold decimal.Decimal, step time.Duration) (*Result, error) {
	started := time.Now()

	scanner, err := window.New(rng, step)
	if err != nil {
		e.observeFailure()
		return nil, err
	}
	flagger, err := flag.New(threshold)
	if err != nil {
		e.observeFailure()
		return nil, err
	}

	idx := index.Build(records)
	runID := uuid.New()
	logger := e.logger.With(log.FieldRunID, runID.String())

	logger.InfoContext(ctx, "Starting scan", log.NewFields().
		WithRange(scanner.Range()).
		WithOperation(log.OpScan).
		ToSlice()...)
	attrs := []any{
		log.FieldRecords, idx.Len(),
		log.FieldEntities, idx.Entities(),
		log.FieldWindows, scanner.Len(),
		log.FieldStep, scanner.Step().String(),
		log.FieldWorkers, e.workers,
	}
	if first, last, ok := idx.Span(); ok {
		attrs = append(attrs, "first_record", core.FormatTimestamp(first), "last_record", core.FormatTimestamp(last))
	}
	logger.DebugContext(ctx, "Index built", attrs...)

	chunks := partition(scanner.Len(), e.workers)
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, c := range chunks {
		g.Go(func() error {
			res, err := scanChunk(gctx, idx, scanner, flagger, c)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.observeFailure()
		logger.ErrorContext(ctx, "Scan aborted", log.FieldError, err)
		return nil, fmt.Errorf("scan windows: %w", err)
	}

	res := &Result{
		RunID:     runID,
		Range:     scanner.Range(),
		Step:      scanner.Step(),
		Threshold: threshold,
		Windows:   scanner.Len(),
		Records:   idx.Len(),
		Entities:  idx.Entities(),
	}
	for i := range results {
		res.Flagged.Merge(&results[i].set)
		res.Flags = append(res.Flags, results[i].flags...)
	}
	res.Elapsed = time.Since(started)

	for _, f := range res.Flags {
		logger.DebugContext(ctx, "Potential fraudulent activity flagged", log.NewFields().WithFlag(f).ToSlice()...)
		if e.onFlag != nil {
			e.onFlag(ctx, f)
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveScan(metrics.Scan{
			Windows:  res.Windows,
			Flags:    len(res.Flags),
			Flagged:  res.Flagged.Len(),
			Records:  res.Records,
			Entities: res.Entities,
			Elapsed:  res.Elapsed,
		})
	}

	logger.InfoContext(ctx, "Scan completed",
		log.FieldWindows, res.Windows,
		log.FieldFlagged, res.Flagged.Len(),
		log.FieldDuration, res.Elapsed.Milliseconds())

	return res, nil
}

func (e *Engine) observeFailure() {
	if e.metrics != nil {
		e.metrics.ObserveFailure()
	}
}

// scanChunk evaluates windows [c.lo, c.hi) into a private set.
func scanChunk(ctx context.Context, idx *index.Index, scanner window.Scanner, flagger *flag.Flagger, c chunk) (chunkResult, error) {
	var res chunkResult
	for i := c.lo; i < c.hi; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		w := scanner.At(i)
		sums := aggregate.Sum(idx, w)
		res.flags = append(res.flags, flagger.Observe(w, sums, &res.set)...)
	}
	return res, nil
}

// partition splits [0, n) into contiguous chunks in ascending order.
func partition(n, workers int) []chunk {
	if n <= 0 {
		return nil
	}
	parts := 1
	if workers > 1 {
		parts = min(workers*chunksPerWorker, n)
	}
	chunks := make([]chunk, 0, parts)
	size, rem := n/parts, n%parts
	lo := 0
	for p := 0; p < parts; p++ {
		hi := lo + size
		if p < rem {
			hi++
		}
		chunks = append(chunks, chunk{lo: lo, hi: hi})
		lo = hi
	}
	return chunks
}
