package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"solana-token-watch/internal/storage"
)

func TestKVStore_SetAndGet(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	if err := store.Set(ctx, "ds:tokenList", []byte(`[1,2]`), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "ds:tokenList")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[1,2]` {
		t.Errorf("value mismatch: got %s", got)
	}

	// Returned slice must not alias the stored value
	got[0] = 'x'
	again, _ := store.Get(ctx, "ds:tokenList")
	if string(again) != `[1,2]` {
		t.Errorf("stored value was mutated: %s", again)
	}
}

func TestKVStore_NotFound(t *testing.T) {
	store := NewKVStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestKVStore_Expiry(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("Expected key alive before ttl, got %v", err)
	}

	now = now.Add(time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after ttl, got %v", err)
	}
}

func TestKVStore_Delete(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	_ = store.Set(ctx, "k", []byte("v"), 0)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is fine
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestKVStore_EmptyKey(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	if err := store.Set(ctx, "", []byte("v"), 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestKVStore_JSONHelpers(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	in := map[string]time.Time{"A": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := storage.SetJSON(ctx, store, "gt:tempPoolAddresses", in, time.Hour); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out map[string]time.Time
	if err := storage.GetJSON(ctx, store, "gt:tempPoolAddresses", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !out["A"].Equal(in["A"]) {
		t.Errorf("round trip mismatch: got %v", out)
	}

	if err := storage.GetJSON(ctx, store, "absent", &out); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestKVStore_ConcurrentAccess(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(ctx, "shared", []byte{byte(i)}, 0)
			_, _ = store.Get(ctx, "shared")
		}(i)
	}
	wg.Wait()

	if _, err := store.Get(ctx, "shared"); err != nil {
		t.Errorf("Get after concurrent writes failed: %v", err)
	}
}
