package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-token-watch/internal/storage"
)

// Store persists a registry as a JSON object of address to first-seen time.
type Store struct {
	kv  storage.KVStore
	key string
	ttl time.Duration
}

// NewStore creates a store for the blob under key. The blob ttl should exceed
// the registry's logical ttl so that SweepExpired governs entry lifetime.
func NewStore(kv storage.KVStore, key string, ttl time.Duration) *Store {
	return &Store{kv: kv, key: key, ttl: ttl}
}

// BlobTTL returns the storage ttl for a registry whose entries live for
// logical. The blob outlives every entry, so SweepExpired decides expiry.
func BlobTTL(logical time.Duration) time.Duration {
	return 2 * logical
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted registry. A missing key yields an empty registry.
func (s *Store) Load(ctx context.Context) (*Registry, error) {
	var snap map[string]time.Time
	err := storage.GetJSON(ctx, s.kv, s.key, &snap)
	if errors.Is(err, storage.ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load registry %s: %w", s.key, err)
	}
	return FromSnapshot(snap), nil
}

// Save replaces the persisted registry.
func (s *Store) Save(ctx context.Context, r *Registry) error {
	if err := storage.SetJSON(ctx, s.kv, s.key, r.Snapshot(), s.ttl); err != nil {
		return fmt.Errorf("save registry %s: %w", s.key, err)
	}
	return nil
}
