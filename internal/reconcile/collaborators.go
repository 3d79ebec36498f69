package reconcile

import (
	"context"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/storage"
)

// Provider is a feed's market-data source.
type Provider interface {
	// Sources lists the discovery sub-feeds in priority order.
	Sources() []string

	// FetchCandidates returns the current candidates of one source.
	FetchCandidates(ctx context.Context, source string) ([]domain.Candidate, error)

	// FetchLiveAttributes returns attributes for one batch of addresses.
	// Fewer records than addresses is not an error.
	FetchLiveAttributes(ctx context.Context, addresses []string) ([]domain.LiveAttributes, error)
}

// ReportSink receives the full ordered watchlist after every tick.
// Each call replaces whatever the sink showed before.
type ReportSink interface {
	Publish(ctx context.Context, snapshot *storage.WatchlistSnapshot) error
}

// AlertSink delivers alerts, best-effort.
type AlertSink interface {
	Publish(ctx context.Context, alert domain.Alert) error
}
