package audit

import (
	"context"
	"sync"
	"time"

	"github.com/quantalab/labauth/model"
	"github.com/quantalab/labauth/params"
	"gorm.io/gorm"
)

type EventRepository interface {
	RecordEvent(ctx context.Context, event *model.AuditEvent) error
	Recent(ctx context.Context, limit int) ([]*model.AuditEvent, error)
}

// memoryEventRepository is a capped ring: once maxEvents is exceeded the
// oldest entries are dropped.
type memoryEventRepository struct {
	mu        sync.Mutex
	events    []*model.AuditEvent
	nextID    uint64
	maxEvents int
}

func NewMemoryEventRepository(maxEvents int) EventRepository {
	if maxEvents <= 0 {
		maxEvents = params.AuditLogMaxEvents
	}
	return &memoryEventRepository{
		nextID:    1,
		maxEvents: maxEvents,
	}
}

func (r *memoryEventRepository) RecordEvent(ctx context.Context, event *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = r.nextID
	r.nextID++
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events = append(r.events, event)
	if overflow := len(r.events) - r.maxEvents; overflow > 0 {
		r.events = append([]*model.AuditEvent(nil), r.events[overflow:]...)
	}
	return nil
}

func (r *memoryEventRepository) Recent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]*model.AuditEvent, 0, limit)
	for i := len(r.events) - 1; i >= len(r.events)-limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

type gormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

func (r *gormEventRepository) RecordEvent(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormEventRepository) Recent(ctx context.Context, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = params.AuditLogMaxEvents
	}
	var events []*model.AuditEvent
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}
