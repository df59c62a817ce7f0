package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	vibration "vibration-monitor/internal/vibration/domain"
)

// ReadingRepository is an in-memory reading store for demos and tests.
type ReadingRepository struct {
	mu      sync.RWMutex
	data    map[vibration.ReadingKey]vibration.Reading
	now     func() time.Time
	publish func(vibration.ChangeEvent)
}

// Option configures the repository.
type Option func(*ReadingRepository)

// WithClock overrides the created_at clock.
func WithClock(now func() time.Time) Option {
	return func(r *ReadingRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithChangePublisher sends a change event after each successful upsert.
func WithChangePublisher(publish func(vibration.ChangeEvent)) Option {
	return func(r *ReadingRepository) {
		r.publish = publish
	}
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(opts ...Option) *ReadingRepository {
	r := &ReadingRepository{
		data: make(map[vibration.ReadingKey]vibration.Reading),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns matching readings, newest first.
func (r *ReadingRepository) List(ctx context.Context, filter vibration.ReadingFilter) ([]vibration.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	result := make([]vibration.Reading, 0, len(r.data))
	for _, reading := range r.data {
		if filter.Matches(reading) {
			result = append(result, reading.Clone())
		}
	}
	r.mu.RUnlock()

	vibration.SortNewestFirst(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Upsert replaces the reading stored under the same (unit, equipment, date).
func (r *ReadingRepository) Upsert(ctx context.Context, reading *vibration.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reading == nil {
		return errors.New("memory reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}
	reading.Date = vibration.Day(reading.Date)
	key := reading.Key()

	r.mu.Lock()
	previous, exists := r.data[key]
	if exists {
		reading.ID = previous.ID
	} else if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	reading.CreatedAt = r.now()
	r.data[key] = reading.Clone()
	r.mu.Unlock()

	if r.publish != nil {
		changeType := vibration.ChangeInsert
		if exists {
			changeType = vibration.ChangeUpdate
		}
		r.publish(vibration.ChangeEvent{
			Type:      changeType,
			Unit:      reading.Unit,
			Equipment: reading.Equipment,
			Date:      reading.DateString(),
		})
	}
	return nil
}

// Len returns the number of stored readings.
func (r *ReadingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
