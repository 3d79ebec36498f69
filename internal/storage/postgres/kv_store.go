package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-token-watch/internal/storage"
)

// KVStore implements storage.KVStore on the kv_blobs table.
// Values must be valid JSON; they are stored as jsonb.
type KVStore struct {
	pool *Pool
	now  func() time.Time
}

// NewKVStore creates a new KVStore.
func NewKVStore(pool *Pool) *KVStore {
	return &KVStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)

// Get returns the value under key if it has not expired.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT value::text
		FROM kv_blobs
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	var value string
	err := s.pool.QueryRow(ctx, query, key, s.now().UTC()).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" || !json.Valid(value) {
		return storage.ErrInvalidInput
	}

	var expiresAt *time.Time
	now := s.now().UTC()
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	query := `
		INSERT INTO kv_blobs (key, value, expires_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, key, string(value), expiresAt, now); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *KVStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_blobs WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
