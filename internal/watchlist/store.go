// Package watchlist persists the ordered list of tracked entries for a feed.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/storage"
)

// Store loads and saves a feed's watchlist as one JSON blob.
type Store struct {
	kv  storage.KVStore
	key string
	ttl time.Duration
}

// NewStore creates a store for the blob under key. ttl <= 0 stores without expiry.
func NewStore(kv storage.KVStore, key string, ttl time.Duration) *Store {
	return &Store{kv: kv, key: key, ttl: ttl}
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted watchlist. A missing key yields an empty list.
func (s *Store) Load(ctx context.Context) ([]domain.TrackedEntry, error) {
	var entries []domain.TrackedEntry
	err := storage.GetJSON(ctx, s.kv, s.key, &entries)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.TrackedEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load watchlist %s: %w", s.key, err)
	}
	if entries == nil {
		entries = []domain.TrackedEntry{}
	}
	return entries, nil
}

// Save replaces the persisted watchlist.
func (s *Store) Save(ctx context.Context, entries []domain.TrackedEntry) error {
	if entries == nil {
		entries = []domain.TrackedEntry{}
	}
	if err := storage.SetJSON(ctx, s.kv, s.key, entries, s.ttl); err != nil {
		return fmt.Errorf("save watchlist %s: %w", s.key, err)
	}
	return nil
}

// Merge refreshes existing entries from refreshed (by address) and appends
// promoted entries, then stable-sorts ascending by AddedAt.
// Entries without a refreshed record keep their last-known values.
// Promoted entries whose address is already present are dropped.
// The inputs are not modified.
func Merge(existing []domain.TrackedEntry, refreshed map[string]*domain.LiveAttributes, promoted []domain.TrackedEntry) []domain.TrackedEntry {
	seen := make(map[string]struct{}, len(existing)+len(promoted))
	out := make([]domain.TrackedEntry, 0, len(existing)+len(promoted))

	for _, e := range existing {
		if _, ok := seen[e.Address]; ok {
			continue
		}
		seen[e.Address] = struct{}{}
		if a, ok := refreshed[e.Address]; ok {
			e.Refresh(a)
		}
		out = append(out, e)
	}

	for _, e := range promoted {
		if _, ok := seen[e.Address]; ok {
			continue
		}
		seen[e.Address] = struct{}{}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// MarkRemoved sets RemovedAt on the entries named in removals that are not
// already removed. Returns the addresses that changed.
func MarkRemoved(entries []domain.TrackedEntry, removals map[string]time.Time) []string {
	var changed []string
	for i := range entries {
		at, ok := removals[entries[i].Address]
		if !ok || entries[i].IsRemoved() {
			continue
		}
		t := at.UTC()
		entries[i].RemovedAt = &t
		changed = append(changed, entries[i].Address)
	}
	return changed
}

// Addresses returns the addresses of entries in order.
func Addresses(entries []domain.TrackedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Address
	}
	return out
}

// Active returns the addresses of entries that have not been removed.
func Active(entries []domain.TrackedEntry) []string {
	var out []string
	for _, e := range entries {
		if !e.IsRemoved() {
			out = append(out, e.Address)
		}
	}
	return out
}
