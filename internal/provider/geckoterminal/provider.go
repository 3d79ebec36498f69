// Package geckoterminal adapts the GeckoTerminal v2 API: newly created pools
// as candidates, multi-pool lookups as live attributes. Addresses are pool
// addresses; the base token mint is what gets traded.
package geckoterminal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/provider/httpx"
)

// DefaultBaseURL is the public GeckoTerminal API.
const DefaultBaseURL = "https://api.geckoterminal.com/api/v2"

// SourceNewPools is the only candidate source.
const SourceNewPools = "new_pools"

// Options configures a Provider.
type Options struct {
	Client  *httpx.Client // default: rate-limited client against DefaultBaseURL
	Network string        // default "solana"
	Now     func() time.Time
}

// Provider implements the candidate and attribute lookups for the GeckoTerminal feed.
type Provider struct {
	client  *httpx.Client
	network string
	now     func() time.Time
}

// New creates a provider.
func New(opts Options) *Provider {
	if opts.Client == nil {
		// Public tier: 30 calls per minute.
		opts.Client = httpx.New("geckoterminal", DefaultBaseURL, httpx.WithRateLimit(0.5, 3))
	}
	if opts.Network == "" {
		opts.Network = "solana"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{client: opts.Client, network: opts.Network, now: opts.Now}
}

// Sources returns the candidate sources.
func (p *Provider) Sources() []string {
	return []string{SourceNewPools}
}

// FetchCandidates returns newly created pools. DiscoveredAt is the pool
// creation time when the provider reports one, otherwise the fetch time.
func (p *Provider) FetchCandidates(ctx context.Context, source string) ([]domain.Candidate, error) {
	if source != SourceNewPools {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	var resp poolsResponse
	path := fmt.Sprintf("/networks/%s/new_pools", p.network)
	if err := p.client.Get(ctx, "new_pools", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("new pools: %w", err)
	}

	now := p.now().UTC()
	out := make([]domain.Candidate, 0, len(resp.Data))
	for i := range resp.Data {
		pl := &resp.Data[i]
		if pl.Attributes.Address == "" {
			continue
		}
		c := domain.Candidate{
			Address:      pl.Attributes.Address,
			Feed:         domain.FeedGeckoTerminal,
			Source:       source,
			DiscoveredAt: now,
			CreatedAt:    pl.createdAt(),
		}
		if c.CreatedAt != nil {
			c.DiscoveredAt = *c.CreatedAt
		}
		out = append(out, c)
	}
	return out, nil
}

// FetchLiveAttributes returns one record per known pool.
func (p *Provider) FetchLiveAttributes(ctx context.Context, addresses []string) ([]domain.LiveAttributes, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	var resp poolsResponse
	path := fmt.Sprintf("/networks/%s/pools/multi/%s", p.network, strings.Join(addresses, ","))
	if err := p.client.Get(ctx, "pools_multi", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("pools: %w", err)
	}

	out := make([]domain.LiveAttributes, 0, len(resp.Data))
	for i := range resp.Data {
		a := resp.Data[i].attributes()
		if a.Address == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Price returns the current USD price of a pool's base token.
func (p *Provider) Price(ctx context.Context, address string) (*domain.Price, error) {
	attrs, err := p.FetchLiveAttributes(ctx, []string{address})
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if a.Address == address {
			return a.PriceUSD, nil
		}
	}
	return nil, nil
}
