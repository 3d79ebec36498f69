package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"solana-token-watch/internal/storage"
)

// KVStore implements storage.KVStore on Redis strings (SET key value EX ttl).
type KVStore struct {
	client goredis.UniversalClient
}

// NewKVStore wraps an existing client.
func NewKVStore(client goredis.UniversalClient) *KVStore {
	return &KVStore{client: client}
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string) (*KVStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &KVStore{client: client}, nil
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)

// Get returns the value under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. ttl <= 0 keeps the key without expiry.
func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or a negative duration if it has none.
func (s *KVStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	return d, nil
}

// Close closes the underlying client.
func (s *KVStore) Close() error {
	return s.client.Close()
}
