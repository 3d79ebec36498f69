package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"solana-token-watch/internal/domain"
)

// Sink delivers alerts.
type Sink interface {
	Publish(ctx context.Context, a domain.Alert) error
}

// Multi sends every alert to all sinks concurrently.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over sinks. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish delivers a to every sink and joins their errors.
func (m *Multi) Publish(ctx context.Context, a domain.Alert) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, a); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
