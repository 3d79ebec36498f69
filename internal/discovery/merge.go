// Package discovery combines candidate lists from a feed's sources.
package discovery

import "solana-token-watch/internal/domain"

// Merge deduplicates candidates by address. Sources are given in priority
// order; the first record seen for an address wins and keeps its position.
// Candidates with an empty address are dropped.
func Merge(sources ...[]domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{})
	out := make([]domain.Candidate, 0)

	for _, src := range sources {
		for _, c := range src {
			if c.Address == "" {
				continue
			}
			if _, ok := seen[c.Address]; ok {
				continue
			}
			seen[c.Address] = struct{}{}
			out = append(out, c)
		}
	}

	return out
}
