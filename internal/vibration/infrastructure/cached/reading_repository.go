package cached

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"vibration-monitor/internal/cache"
	"vibration-monitor/internal/observability/metrics"
	vibration "vibration-monitor/internal/vibration/domain"
)

// Cache domains, each with its own TTL.
const (
	DomainReadings = "readings"
	DomainToday    = "today"
	DomainStats    = "stats"
)

const statsKeyPrefix = "stats?"

// TTLs holds the expiry per cache domain.
type TTLs struct {
	Readings time.Duration
	Today    time.Duration
	Stats    time.Duration
}

// DefaultTTLs returns the stock expiries.
func DefaultTTLs() TTLs {
	return TTLs{
		Readings: 5 * time.Minute,
		Today:    time.Minute,
		Stats:    10 * time.Minute,
	}
}

// ReadingRepository memoises List and unit statistics over another
// repository. Writes through it and change events drop affected entries.
type ReadingRepository struct {
	inner   vibration.ReadingRepository
	entries *cache.Cache[any]
	group   singleflight.Group
	ttls    TTLs
	now     func() time.Time
	loc     *time.Location

	// generation bumps on every invalidation so that a fetch started before
	// it does not repopulate the cache with stale rows.
	mu         sync.Mutex
	generation uint64
}

// Option configures the repository.
type Option func(*ReadingRepository)

// WithTTLs overrides the per-domain expiries. Non-positive values keep the default.
func WithTTLs(ttls TTLs) Option {
	return func(r *ReadingRepository) {
		if ttls.Readings > 0 {
			r.ttls.Readings = ttls.Readings
		}
		if ttls.Today > 0 {
			r.ttls.Today = ttls.Today
		}
		if ttls.Stats > 0 {
			r.ttls.Stats = ttls.Stats
		}
	}
}

// WithClock overrides time.Now for both the TTL check and the "today" domain.
func WithClock(now func() time.Time) Option {
	return func(r *ReadingRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLocation sets the zone that decides which day is today.
func WithLocation(loc *time.Location) Option {
	return func(r *ReadingRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewReadingRepository wraps inner.
func NewReadingRepository(inner vibration.ReadingRepository, opts ...Option) (*ReadingRepository, error) {
	if inner == nil {
		return nil, errors.New("cached reading repo: nil inner repository")
	}
	r := &ReadingRepository{
		inner: inner,
		ttls:  DefaultTTLs(),
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.entries = cache.New[any](cache.WithClock[any](r.now))
	return r, nil
}

// List serves from cache when fresh, otherwise loads through inner. Concurrent
// misses for the same filter and generation share one load.
func (r *ReadingRepository) List(ctx context.Context, filter vibration.ReadingFilter) ([]vibration.Reading, error) {
	key := filter.Key()
	domain, ttl := r.listDomain(filter)
	if value, ok := r.entries.Get(key); ok {
		metrics.IncCacheLookup(domain, true)
		return cloneReadings(value.([]vibration.Reading)), nil
	}
	metrics.IncCacheLookup(domain, false)

	generation := r.currentGeneration()
	value, err, _ := r.group.Do(flightKey(key, generation), func() (any, error) {
		readings, err := r.inner.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		r.store(generation, key, readings, ttl)
		return readings, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneReadings(value.([]vibration.Reading)), nil
}

// Upsert writes through and invalidates every cached result the reading could
// appear in. Invalidation also runs when the write fails, since the store may
// have applied it anyway.
func (r *ReadingRepository) Upsert(ctx context.Context, reading *vibration.Reading) error {
	if reading == nil {
		return errors.New("cached reading repo: nil reading")
	}
	err := r.inner.Upsert(ctx, reading)
	r.Invalidate(reading.Unit, reading.Equipment, reading.Date)
	return err
}

// UnitStatistics returns cached aggregates for unit.
func (r *ReadingRepository) UnitStatistics(ctx context.Context, unit vibration.Unit) (vibration.UnitStatistics, error) {
	key := statsKey(unit)
	if value, ok := r.entries.Get(key); ok {
		metrics.IncCacheLookup(DomainStats, true)
		return value.(vibration.UnitStatistics), nil
	}
	metrics.IncCacheLookup(DomainStats, false)

	generation := r.currentGeneration()
	value, err, _ := r.group.Do(flightKey(key, generation), func() (any, error) {
		readings, err := r.inner.List(ctx, vibration.ReadingFilter{Unit: unit})
		if err != nil {
			return nil, err
		}
		stats := vibration.ComputeUnitStatistics(unit, readings)
		r.store(generation, key, stats, r.ttls.Stats)
		return stats, nil
	})
	if err != nil {
		return vibration.UnitStatistics{}, err
	}
	return value.(vibration.UnitStatistics), nil
}

// Invalidate drops entries affected by a change to (unit, equipment, date).
// An event with neither unit nor date clears everything.
func (r *ReadingRepository) Invalidate(unit vibration.Unit, equipment string, date time.Time) {
	r.bumpGeneration()
	if unit == "" && date.IsZero() {
		removed := r.entries.Len()
		r.entries.Clear()
		metrics.AddCacheInvalidations("clear", removed)
		return
	}
	removed := r.entries.ClearMatching(func(key string) bool {
		if filter, ok := vibration.ParseFilterKey(key); ok {
			return filter.Covers(unit, equipment, date)
		}
		if strings.HasPrefix(key, statsKeyPrefix) {
			return unit == "" || statsKey(unit) == key
		}
		return true
	})
	metrics.AddCacheInvalidations("write", removed)
}

// Clear drops every entry.
func (r *ReadingRepository) Clear() {
	r.bumpGeneration()
	removed := r.entries.Len()
	r.entries.Clear()
	metrics.AddCacheInvalidations("clear", removed)
}

// HandleChange applies a backing-store change notification.
func (r *ReadingRepository) HandleChange(event vibration.ChangeEvent) {
	r.Invalidate(event.Unit, event.Equipment, event.Day())
}

// Watch subscribes HandleChange to source and returns the unsubscribe func.
func (r *ReadingRepository) Watch(source vibration.ChangeSource) func() {
	if source == nil {
		return func() {}
	}
	return source.Subscribe(r.HandleChange)
}

func (r *ReadingRepository) listDomain(filter vibration.ReadingFilter) (string, time.Duration) {
	if !filter.Date.IsZero() && vibration.Day(filter.Date).Equal(vibration.Today(r.now(), r.loc)) {
		return DomainToday, r.ttls.Today
	}
	return DomainReadings, r.ttls.Readings
}

func (r *ReadingRepository) store(generation uint64, key string, value any, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		return
	}
	r.entries.Set(key, value, ttl)
}

func (r *ReadingRepository) currentGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *ReadingRepository) bumpGeneration() {
	r.mu.Lock()
	r.generation++
	r.mu.Unlock()
}

// flightKey scopes shared loads to a generation so a caller arriving after an
// invalidation never joins a load that started before it.
func flightKey(key string, generation uint64) string {
	return key + "#" + strconv.FormatUint(generation, 10)
}

func statsKey(unit vibration.Unit) string {
	return statsKeyPrefix + url.Values{"unit": {string(unit)}}.Encode()
}

func cloneReadings(readings []vibration.Reading) []vibration.Reading {
	if readings == nil {
		return nil
	}
	out := make([]vibration.Reading, len(readings))
	for i, r := range readings {
		out[i] = r.Clone()
	}
	return out
}
