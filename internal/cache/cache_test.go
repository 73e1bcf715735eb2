/**
 * Cache Store Tests
 *
 * Verifies the no-op degradation contract: a store without a backing
 * Redis client must miss on every read and drop every write without
 * erroring.
 */

package cache

import (
	"context"
	"testing"
	"time"
)

func TestNoopStoreWithoutClient(t *testing.T) {
	store := New(nil, time.Hour, 24*time.Hour, nil)
	ctx := context.Background()

	// Writes are silently dropped.
	store.PutResult(ctx, "job-1", []byte(`{"text":"hello"}`))
	store.PutFeatures(ctx, "abc123", []byte(`{"text":"hello"}`))

	if payload, ok := store.GetResult(ctx, "job-1"); ok || payload != nil {
		t.Errorf("GetResult = (%v, %v), want miss", payload, ok)
	}
	if payload, ok := store.GetFeatures(ctx, "abc123"); ok || payload != nil {
		t.Errorf("GetFeatures = (%v, %v), want miss", payload, ok)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close on no-op store returned %v", err)
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *Store
	ctx := context.Background()

	store.PutResult(ctx, "job-1", []byte("x"))
	if _, ok := store.GetResult(ctx, "job-1"); ok {
		t.Error("nil store reported a hit")
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close on nil store returned %v", err)
	}
}

func TestConnectRejectsMalformedURL(t *testing.T) {
	if _, err := Connect("not-a-redis-url"); err == nil {
		t.Error("expected error for malformed Redis URL")
	}
}
