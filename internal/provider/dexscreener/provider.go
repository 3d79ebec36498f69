// Package dexscreener adapts the DexScreener public API to the reconciliation
// loop: token profiles and boosts as candidates, token pairs as live attributes.
package dexscreener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/provider/httpx"
)

// DefaultBaseURL is the public DexScreener API.
const DefaultBaseURL = "https://api.dexscreener.com"

// Candidate sources in merge priority order.
const (
	SourceLatestProfiles = "token-profiles/latest"
	SourceLatestBoosts   = "token-boosts/latest"
	SourceTopBoosts      = "token-boosts/top"
)

// DefaultSources returns every candidate source in priority order.
func DefaultSources() []string {
	return []string{SourceLatestProfiles, SourceLatestBoosts, SourceTopBoosts}
}

// Options configures a Provider.
type Options struct {
	Client  *httpx.Client // default: rate-limited client against DefaultBaseURL
	Chain   string        // default "solana"
	Sources []string      // default DefaultSources()
	Now     func() time.Time
}

// Provider implements the candidate and attribute lookups for the DexScreener feed.
type Provider struct {
	client  *httpx.Client
	chain   string
	sources []string
	now     func() time.Time
}

// New creates a provider.
func New(opts Options) *Provider {
	if opts.Client == nil {
		// DexScreener allows 60 requests per minute on the profile and boost endpoints.
		opts.Client = httpx.New("dexscreener", DefaultBaseURL, httpx.WithRateLimit(1, 5))
	}
	if opts.Chain == "" {
		opts.Chain = "solana"
	}
	if len(opts.Sources) == 0 {
		opts.Sources = DefaultSources()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{client: opts.Client, chain: opts.Chain, sources: opts.Sources, now: opts.Now}
}

// Sources returns the candidate sources in priority order.
func (p *Provider) Sources() []string {
	return p.sources
}

// FetchCandidates returns the tokens listed by source on the provider's chain.
func (p *Provider) FetchCandidates(ctx context.Context, source string) ([]domain.Candidate, error) {
	switch source {
	case SourceLatestProfiles, SourceLatestBoosts, SourceTopBoosts:
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}

	var listed []tokenListing
	if err := p.client.Get(ctx, source, "/"+source+"/v1", nil, &listed); err != nil {
		return nil, fmt.Errorf("list %s: %w", source, err)
	}

	now := p.now().UTC()
	out := make([]domain.Candidate, 0, len(listed))
	for _, t := range listed {
		if t.ChainID != p.chain || t.TokenAddress == "" {
			continue
		}
		out = append(out, domain.Candidate{
			Address:      t.TokenAddress,
			Feed:         domain.FeedDexScreener,
			Source:       source,
			DiscoveredAt: now,
		})
	}
	return out, nil
}

// FetchLiveAttributes returns one record per token that has a pair. Tokens
// with several pairs are reported by the first pair in the response.
func (p *Provider) FetchLiveAttributes(ctx context.Context, addresses []string) ([]domain.LiveAttributes, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	var pairs []pair
	path := fmt.Sprintf("/tokens/v1/%s/%s", p.chain, strings.Join(addresses, ","))
	if err := p.client.Get(ctx, "tokens", path, nil, &pairs); err != nil {
		return nil, fmt.Errorf("token pairs: %w", err)
	}

	seen := make(map[string]struct{}, len(pairs))
	out := make([]domain.LiveAttributes, 0, len(pairs))
	for i := range pairs {
		a := pairs[i].attributes()
		if a.Address == "" {
			continue
		}
		if _, dup := seen[a.Address]; dup {
			continue
		}
		seen[a.Address] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// Price returns the current USD price of a token, or nil if it has no pair.
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
