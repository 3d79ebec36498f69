package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON loads key and decodes it into v. Returns ErrNotFound if the key is missing.
func GetJSON(ctx context.Context, kv KVStore, key string, v any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key with ttl.
func SetJSON(ctx context.Context, kv KVStore, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw, ttl)
}
