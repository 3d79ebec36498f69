package memory

import (
	"context"
	"sync"
	"time"

	"solana-token-watch/internal/storage"
)

type kvEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// KVStore is an in-memory implementation of storage.KVStore.
type KVStore struct {
	mu   sync.RWMutex
	data map[string]kvEntry
	now  func() time.Time
}

// NewKVStore creates a new in-memory key-value store.
func NewKVStore() *KVStore {
	return &KVStore{
		data: make(map[string]kvEntry),
		now:  time.Now,
	}
}

// SetClock replaces the clock used for expiry. Used by tests.
func (s *KVStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns a copy of the value stored under key.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || (!e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)) {
		return nil, storage.ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value under key.
func (s *KVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := kvEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

var _ storage.KVStore = (*KVStore)(nil)
