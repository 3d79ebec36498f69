package report

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"solana-token-watch/internal/observability"
	"solana-token-watch/internal/storage"
)

// Sink receives watchlist snapshots.
type Sink interface {
	Publish(ctx context.Context, snapshot *storage.WatchlistSnapshot) error
}

type namedSink struct {
	name string
	sink Sink
}

// Multi publishes to every registered sink concurrently. One failing sink
// does not stop the others.
type Multi struct {
	sinks []namedSink
}

// NewMulti creates an empty fan-out.
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a sink under name, used in errors and metrics.
func (m *Multi) Add(name string, s Sink) *Multi {
	m.sinks = append(m.sinks, namedSink{name: name, sink: s})
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Publish sends the snapshot to all sinks and joins their errors.
func (m *Multi) Publish(ctx context.Context, snapshot *storage.WatchlistSnapshot) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sinks {
		g.Go(func() error {
			err := s.sink.Publish(ctx, snapshot)
			observability.RecordSnapshot(s.name, err)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
