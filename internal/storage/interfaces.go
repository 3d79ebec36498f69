package storage

import (
	"context"
	"time"

	"solana-token-watch/internal/domain"
)

// KVStore is a durable key-value store with per-key expiry.
// Values are opaque bytes; callers use GetJSON / SetJSON for typed blobs.
type KVStore interface {
	// Get returns the value stored under key. Returns ErrNotFound if missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	// A ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// WatchlistSnapshot is one published state of a feed's watchlist.
type WatchlistSnapshot struct {
	ID      string
	Feed    domain.Feed
	TakenAt time.Time
	Entries []domain.TrackedEntry
}

// SnapshotStore keeps an append-only history of watchlist snapshots.
type SnapshotStore interface {
	// Insert appends a snapshot. Returns ErrInvalidInput if ID or Feed is empty.
	Insert(ctx context.Context, s *WatchlistSnapshot) error

	// GetLatest returns the most recent snapshot for feed. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, feed domain.Feed) (*WatchlistSnapshot, error)
}
