package reconcile

import (
	"errors"
	"time"

	"solana-token-watch/internal/domain"
)

// TickResult summarises one traversal of the loop.
type TickResult struct {
	ID         string
	Feed       domain.Feed
	StartedAt  time.Time
	FinishedAt time.Time

	Watchlist []domain.TrackedEntry // ordered state after the tick
	Refreshed int                   // watchlist entries with fresh attributes
	Exits     []string              // addresses handed to the dispatcher
	Removed   []string              // entries marked removed from confirmed exits

	Discovered int      // merged candidates fetched this tick
	Staged     int      // new sightings recorded
	Expired    []string // swept from the registry
	Registry   int      // registry size after persisting

	Promoted  []domain.TrackedEntry
	Rejected  map[string]string // address -> first failed criterion
	Persisted bool              // watchlist save succeeded

	// Warnings are failures that did not abort the tick, each a *StageError.
	Warnings []error
}

func (r *TickResult) warn(stage Stage, err error) {
	if err == nil {
		return
	}
	r.Warnings = append(r.Warnings, &StageError{Stage: stage, Err: err})
}

// Err joins all warnings, or returns nil.
func (r *TickResult) Err() error {
	return errors.Join(r.Warnings...)
}

// PromotedAddresses returns the addresses promoted this tick.
func (r *TickResult) PromotedAddresses() []string {
	out := make([]string, len(r.Promoted))
	for i, e := range r.Promoted {
		out[i] = e.Address
	}
	return out
}
