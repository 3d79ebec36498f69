package report

import (
	"context"

	"github.com/google/uuid"

	"solana-token-watch/internal/storage"
)

// History appends every published snapshot to a SnapshotStore.
type History struct {
	store storage.SnapshotStore
}

// NewHistory creates a history sink.
func NewHistory(store storage.SnapshotStore) *History {
	return &History{store: store}
}

// Publish inserts the snapshot. Snapshots without an ID get a fresh one.
func (h *History) Publish(ctx context.Context, snapshot *storage.WatchlistSnapshot) error {
	if snapshot.ID == "" {
		s := *snapshot
		s.ID = uuid.NewString()
		snapshot = &s
	}
	return h.store.Insert(ctx, snapshot)
}
