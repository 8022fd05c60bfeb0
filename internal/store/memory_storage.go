package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	blob      []byte
	fields    map[string]int64
	strFields map[string]string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// MemoryStorage is a process-local Storage used for tests and single-instance
// deployments without redis. All operations run under one mutex, so the
// check-then-update sequences of the attempt tracker are race-free.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	nowFunc func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*memoryEntry),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, for expiry tests.
func (s *MemoryStorage) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

// getEntry returns the live entry for key, purging it if expired.
// Callers must hold s.mu.
func (s *MemoryStorage) getEntry(key string) (*memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(s.nowFunc()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry, true
}

func (s *MemoryStorage) getOrCreateEntry(key string) *memoryEntry {
	if entry, ok := s.getEntry(key); ok {
		return entry
	}
	entry := &memoryEntry{
		fields:    make(map[string]int64),
		strFields: make(map[string]string),
	}
	s.entries[key] = entry
	return entry
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.getEntry(key)
	if !ok || entry.blob == nil {
		return ErrNotFound
	}
	return json.Unmarshal(entry.blob, val)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	blob, err := json.Marshal(val)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getOrCreateEntry(key)
	entry.blob = blob
	if expiresIn > 0 {
		entry.expiresAt = s.nowFunc().Add(expiresIn)
	} else {
		entry.expiresAt = time.Time{}
	}
	return nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, 0)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getEntry(key); !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.getEntry(key)
	if !ok {
		return ErrNotFound
	}
	entry.expiresAt = expiresAt
	return nil
}

func (s *MemoryStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getOrCreateEntry(key)
	switch v := val.(type) {
	case int:
		entry.fields[field] = int64(v)
	case int64:
		entry.fields[field] = v
	case string:
		entry.strFields[field] = v
	default:
		return fmt.Errorf("unsupported attr type %T", val)
	}
	return nil
}

func (s *MemoryStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.getEntry(key)
	if !ok {
		return ErrNotFound
	}
	switch target := val.(type) {
	case *int64:
		v, ok := entry.fields[field]
		if !ok {
			return ErrNotFound
		}
		*target = v
	case *int:
		v, ok := entry.fields[field]
		if !ok {
			return ErrNotFound
		}
		*target = int(v)
	case *string:
		v, ok := entry.strFields[field]
		if !ok {
			return ErrNotFound
		}
		*target = v
	default:
		return fmt.Errorf("unsupported attr target %T", val)
	}
	return nil
}

func (s *MemoryStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.getOrCreateEntry(key)
	entry.fields[field] += delta
	return entry.fields[field], nil
}
