// Package lockout counts consecutive failed logins per client and locks the
// client out once a threshold is reached. Records are keyed by client IP so
// tracking works before any account identity is known, which also avoids
// leaking whether a login identifier exists.
package lockout

import (
	"context"
	"time"

	"github.com/quantalab/labauth/internal/store"
	"github.com/quantalab/labauth/params"
)

const (
	fieldFailCount   = "fail_count"
	fieldLastFailure = "last_failure"
	fieldLockedUntil = "locked_until"
)

// AttemptState mirrors the stored record, one per tracked key.
type AttemptState struct {
	FailCount   int64 `redis:"fail_count"`   // consecutive failures
	LastFailure int64 `redis:"last_failure"` // unix milli of the last failure
	LockedUntil int64 `redis:"locked_until"` // unix milli, zero while unlocked
}

type Tracker struct {
	store           store.Store[AttemptState]
	maxAttempts     int
	lockoutDuration time.Duration
	nowFunc         func() time.Time
}

func NewTracker(storage store.Storage, maxAttempts int, lockoutDuration time.Duration) *Tracker {
	if maxAttempts <= 0 {
		maxAttempts = params.DefaultMaxLoginAttempts
	}
	if lockoutDuration <= 0 {
		lockoutDuration = params.DefaultLockoutDuration
	}
	return &Tracker{
		store:           store.New[AttemptState](storage, params.LoginAttemptKeyPrefix),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		nowFunc:         time.Now,
	}
}

// SetNowFunc overrides the clock, for lockout-window tests.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	t.nowFunc = now
}

// RecordFailure increments the failure counter for key and, once the counter
// reaches the configured maximum, sets the lockout window. It returns whether
// the key is now locked and until when.
func (t *Tracker) RecordFailure(ctx context.Context, key string) (bool, time.Time, error) {
	now := t.nowFunc()
	count, err := t.store.IncrAttr(ctx, key, fieldFailCount, 1)
	if err != nil {
		return false, time.Time{}, err
	}
	if err := t.store.SetAttr(ctx, key, fieldLastFailure, now.UnixMilli()); err != nil {
		return false, time.Time{}, err
	}

	if count >= int64(t.maxAttempts) {
		until := now.Add(t.lockoutDuration)
		if err := t.store.SetAttr(ctx, key, fieldLockedUntil, until.UnixMilli()); err != nil {
			return false, time.Time{}, err
		}
		if err := t.store.Expire(ctx, key, until); err != nil {
			return false, time.Time{}, err
		}
		return true, until, nil
	}

	// counters without a lock decay after one lockout window of inactivity
	if err := t.store.Expire(ctx, key, now.Add(t.lockoutDuration)); err != nil {
		return false, time.Time{}, err
	}
	return false, time.Time{}, nil
}

// IsLocked reports whether key is inside a lockout window. A window ending
// exactly now counts as expired; expired records are purged lazily.
func (t *Tracker) IsLocked(ctx context.Context, key string) (bool, time.Time) {
	var lockedUntil int64
	if err := t.store.GetAttr(ctx, key, fieldLockedUntil, &lockedUntil); err != nil {
		return false, time.Time{}
	}
	if lockedUntil == 0 {
		return false, time.Time{}
	}
	until := time.UnixMilli(lockedUntil)
	if until.After(t.nowFunc()) {
		return true, until
	}
	t.store.Delete(ctx, key)
	return false, time.Time{}
}

// Clear removes the record for key entirely. Called on any successful
// authentication so the next failure starts counting from one.
func (t *Tracker) Clear(ctx context.Context, key string) error {
	if err := t.store.Delete(ctx, key); err != nil && err != store.ErrNotFound {
		return err
	}
	return nil
}
