package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"solana-token-watch/internal/discovery"
	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/observability"
)

// fetchAttributes looks up addresses in batches, concurrently. Failed batches
// are joined into the returned error; successful ones are still returned.
// Records for addresses that were not requested are ignored.
func (l *Loop) fetchAttributes(ctx context.Context, addresses []string) (map[string]*domain.LiveAttributes, error) {
	out := make(map[string]*domain.LiveAttributes, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	requested := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		requested[a] = struct{}{}
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(l.concurrency)

	for _, batch := range chunk(addresses, l.batchSize) {
		g.Go(func() error {
			records, err := l.provider.FetchLiveAttributes(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("fetch %d addresses: %w", len(batch), err))
			}
			for i := range records {
				r := records[i]
				if _, ok := requested[r.Address]; !ok {
					continue
				}
				if _, dup := out[r.Address]; dup {
					continue
				}
				out[r.Address] = &r
			}
			return nil
		})
	}
	_ = g.Wait()

	return out, errors.Join(errs...)
}

// discover fetches every source concurrently and merges them in priority order.
func (l *Loop) discover(ctx context.Context, res *TickResult) []domain.Candidate {
	sources := l.provider.Sources()
	results := make([][]domain.Candidate, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			cands, err := l.provider.FetchCandidates(ctx, src)
			if err != nil {
				errs[i] = fmt.Errorf("source %s: %w", src, err)
				return nil
			}
			results[i] = cands
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range sources {
		if errs[i] != nil {
			l.logger.Printf("Discovery source failed: feed=%s source=%s err=%v", l.feed, src, errs[i])
			res.warn(StageDiscovering, errs[i])
			continue
		}
		observability.RecordCandidates(string(l.feed), src, len(results[i]))
	}

	return discovery.Merge(results...)
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	return append(out, items)
}
