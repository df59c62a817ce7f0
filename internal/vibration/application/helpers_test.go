package application

import (
	"context"
	"errors"
	"sync"
	"time"

	vibration "vibration-monitor/internal/vibration/domain"
	"vibration-monitor/internal/vibration/infrastructure/memory"
	"vibration-monitor/internal/vibration/settings"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// flakyRepo wraps the memory repository and fails writes on demand.
type flakyRepo struct {
	*memory.ReadingRepository
	mu        sync.Mutex
	failWrite bool
	writes    int
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{ReadingRepository: memory.NewReadingRepository()}
}

func (r *flakyRepo) Upsert(ctx context.Context, reading *vibration.Reading) error {
	r.mu.Lock()
	fail := r.failWrite
	r.writes++
	r.mu.Unlock()
	if fail {
		return errors.Join(vibration.ErrStorageFailure, errors.New("disk full"))
	}
	return r.ReadingRepository.Upsert(ctx, reading)
}

func (r *flakyRepo) setFail(fail bool) {
	r.mu.Lock()
	r.failWrite = fail
	r.mu.Unlock()
}

var (
	testLoc     = time.UTC
	testCatalog = vibration.DefaultCatalog()
	operator    = Actor{ID: "u-1", Name: "Operator One", Role: "operator"}
)

func testDay(n int) time.Time {
	return time.Date(2026, 5, n, 0, 0, 0, 0, time.UTC)
}

func testSettings() *settings.Store {
	return settings.NewStore("", testCatalog)
}

// fullValues returns a valid value for every catalog parameter.
func fullValues() map[string]float64 {
	values := make(map[string]float64, len(testCatalog.Parameters))
	for _, parameter := range testCatalog.Parameters {
		values[parameter.ID] = 1.5
	}
	return values
}

func seed(repo vibration.ReadingRepository, readings ...vibration.Reading) {
	for i := range readings {
		if err := repo.Upsert(context.Background(), &readings[i]); err != nil {
			panic(err)
		}
	}
}
