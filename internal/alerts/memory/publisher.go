// Package memory keeps published alerts in memory, for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"cardwatch/internal/alerts"
	"cardwatch/internal/core"
)

// Publisher implements alerts.Publisher.
type Publisher struct {
	mu        sync.RWMutex
	flags     []core.Flag
	runs      []uuid.UUID
	summaries []alerts.Summary
	closed    bool
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishFlag(ctx context.Context, runID uuid.UUID, f core.Flag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return alerts.ErrClosed
	}
	p.flags = append(p.flags, f)
	p.runs = append(p.runs, runID)
	return nil
}

func (p *Publisher) PublishSummary(ctx context.Context, s alerts.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return alerts.ErrClosed
	}
	p.summaries = append(p.summaries, s)
	return nil
}

// Flags returns a copy of the published flag events, in publish order.
func (p *Publisher) Flags() []core.Flag {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]core.Flag(nil), p.flags...)
}

// RunIDs returns the run id each flag event was published under.
func (p *Publisher) RunIDs() []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]uuid.UUID(nil), p.runs...)
}

func (p *Publisher) Summaries() []alerts.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]alerts.Summary(nil), p.summaries...)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
