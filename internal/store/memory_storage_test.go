package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStorageAttrOps(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	count, err := storage.IncrAttr(ctx, "k", "fail_count", 1)
	if err != nil {
		t.Fatalf("IncrAttr failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	count, _ = storage.IncrAttr(ctx, "k", "fail_count", 2)
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	if err := storage.SetAttr(ctx, "k", "locked_until", int64(42)); err != nil {
		t.Fatalf("SetAttr failed: %v", err)
	}
	var lockedUntil int64
	if err := storage.GetAttr(ctx, "k", "locked_until", &lockedUntil); err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	if lockedUntil != 42 {
		t.Fatalf("expected 42, got %d", lockedUntil)
	}

	if err := storage.GetAttr(ctx, "k", "missing", &lockedUntil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing field, got %v", err)
	}
	if err := storage.GetAttr(ctx, "missing", "f", &lockedUntil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}

func TestMemoryStorageExpiry(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	now := time.Now()
	storage.SetNowFunc(func() time.Time { return now })

	if _, err := storage.IncrAttr(ctx, "k", "fail_count", 1); err != nil {
		t.Fatalf("IncrAttr failed: %v", err)
	}
	if err := storage.Expire(ctx, "k", now.Add(time.Minute)); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	var count int64
	if err := storage.GetAttr(ctx, "k", "fail_count", &count); err != nil {
		t.Fatalf("entry should still be live: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := storage.GetAttr(ctx, "k", "fail_count", &count); err != ErrNotFound {
		t.Fatalf("expected entry purged after expiry, got %v", err)
	}
}

func TestMemoryStorageBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := storage.Set(ctx, "r", record{Name: "a", Count: 2}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var got record
	if err := storage.Get(ctx, "r", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := storage.Delete(ctx, "r"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := storage.Get(ctx, "r", &got); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := storage.Delete(ctx, "r"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound deleting missing key, got %v", err)
	}
}
