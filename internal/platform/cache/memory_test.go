package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "sess-1", KeyCart, []byte(`{"items":[]}`), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, err := store.Get(ctx, "sess-1", KeyCart)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != `{"items":[]}` {
		t.Fatalf("unexpected value %q", value)
	}

	if _, err := store.Get(ctx, "sess-2", KeyCart); !IsNotFound(err) {
		t.Fatalf("expected not found for other scope, got %v", err)
	}
	if _, err := store.Get(ctx, "sess-1", KeyQuote); !IsNotFound(err) {
		t.Fatalf("expected not found for other key, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	if err := store.Set(ctx, "sess-1", KeyClientSession, []byte("token"), 10*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := store.Get(ctx, "sess-1", KeyClientSession); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	current = current.Add(11 * time.Minute)
	if _, err := store.Get(ctx, "sess-1", KeyClientSession); !IsNotFound(err) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestMemoryStoreDeleteAndPurge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "sess-1", KeyCart, []byte("a"), 0); err != nil {
		t.Fatalf("set cart: %v", err)
	}
	if err := store.Set(ctx, "sess-1", KeyQuote, []byte("b"), 0); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	if err := store.Set(ctx, "sess-2", KeyCart, []byte("c"), 0); err != nil {
		t.Fatalf("set other: %v", err)
	}

	if err := store.Delete(ctx, "sess-1", KeyCart); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1", KeyCart); !IsNotFound(err) {
		t.Fatalf("expected cart gone, got %v", err)
	}

	if err := store.Purge(ctx, "sess-1"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1", KeyQuote); !IsNotFound(err) {
		t.Fatalf("expected quote gone after purge, got %v", err)
	}
	if _, err := store.Get(ctx, "sess-2", KeyCart); err != nil {
		t.Fatalf("other scope should survive purge: %v", err)
	}

	// Deleting a missing slot stays silent.
	if err := store.Delete(ctx, "sess-1", KeyCart); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
