package memory

import (
	"context"
	"sync"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []*storage.WatchlistSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Insert appends a copy of s.
func (st *SnapshotStore) Insert(_ context.Context, s *storage.WatchlistSnapshot) error {
	if s == nil || s.ID == "" || s.Feed == "" {
		return storage.ErrInvalidInput
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.snapshots = append(st.snapshots, copySnapshot(s))
	return nil
}

// GetLatest returns the snapshot with the greatest TakenAt for feed.
func (st *SnapshotStore) GetLatest(_ context.Context, feed domain.Feed) (*storage.WatchlistSnapshot, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var latest *storage.WatchlistSnapshot
	for _, s := range st.snapshots {
		if s.Feed != feed {
			continue
		}
		if latest == nil || !s.TakenAt.Before(latest.TakenAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(latest), nil
}

// Len returns the number of stored snapshots.
func (st *SnapshotStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.snapshots)
}

func copySnapshot(s *storage.WatchlistSnapshot) *storage.WatchlistSnapshot {
	cp := *s
	cp.Entries = make([]domain.TrackedEntry, len(s.Entries))
	copy(cp.Entries, s.Entries)
	return &cp
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
