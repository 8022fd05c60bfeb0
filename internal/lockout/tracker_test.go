package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/quantalab/labauth/internal/store"
)

func newTestTracker(maxAttempts int, lockoutDuration time.Duration) (*Tracker, *time.Time) {
	storage := store.NewMemoryStorage()
	tracker := NewTracker(storage, maxAttempts, lockoutDuration)
	now := time.Now()
	clock := func() time.Time { return now }
	storage.SetNowFunc(clock)
	tracker.SetNowFunc(clock)
	return tracker, &now
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(5, 15*time.Minute)

	for i := 1; i <= 4; i++ {
		locked, _, err := tracker.RecordFailure(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if locked {
			t.Fatalf("must not be locked after %d failures", i)
		}
		if isLocked, _ := tracker.IsLocked(ctx, "1.2.3.4"); isLocked {
			t.Fatalf("IsLocked must be false after %d failures", i)
		}
	}

	locked, until, err := tracker.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !locked {
		t.Fatal("expected lock after the fifth failure")
	}
	if until.IsZero() {
		t.Fatal("expected a lockout expiry time")
	}
	if isLocked, _ := tracker.IsLocked(ctx, "1.2.3.4"); !isLocked {
		t.Fatal("IsLocked must report true while the window is open")
	}

	// other keys are unaffected
	if isLocked, _ := tracker.IsLocked(ctx, "5.6.7.8"); isLocked {
		t.Fatal("unrelated key must not be locked")
	}
}

func TestLockoutExpires(t *testing.T) {
	ctx := context.Background()
	tracker, now := newTestTracker(3, 15*time.Minute)

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx, "k")
	}
	if isLocked, _ := tracker.IsLocked(ctx, "k"); !isLocked {
		t.Fatal("expected locked after reaching the maximum")
	}

	// exactly at the boundary the key counts as unlocked
	*now = now.Add(15 * time.Minute)
	if isLocked, _ := tracker.IsLocked(ctx, "k"); isLocked {
		t.Fatal("a lock expiring exactly now must count as expired")
	}

	// the record is purged, so the next failure starts from one
	locked, _, err := tracker.RecordFailure(ctx, "k")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if locked {
		t.Fatal("first failure after an expired lock must not lock again")
	}
}

func TestClearResetsCount(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		tracker.RecordFailure(ctx, "k")
	}
	if err := tracker.Clear(ctx, "k"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if isLocked, _ := tracker.IsLocked(ctx, "k"); isLocked {
		t.Fatal("cleared key must not be locked")
	}

	// counting restarts: four more failures still do not lock
	for i := 0; i < 4; i++ {
		locked, _, _ := tracker.RecordFailure(ctx, "k")
		if locked {
			t.Fatalf("unexpected lock on failure %d after clear", i+1)
		}
	}

	// clearing an unknown key is not an error
	if err := tracker.Clear(ctx, "unknown"); err != nil {
		t.Fatalf("Clear of unknown key failed: %v", err)
	}
}
