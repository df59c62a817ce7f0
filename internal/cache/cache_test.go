package cache

import (
	"strings"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestCacheExpiresLazily(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](WithClock[string](clock.Now))

	c.Set("k", "v1", 100*time.Millisecond)
	if got, ok := c.Get("k"); !ok || got != "v1" {
		t.Fatalf("expected fresh hit, got %q %v", got, ok)
	}

	clock.Advance(150 * time.Millisecond)
	if c.Len() != 1 {
		t.Fatalf("expired entry should stay until looked up")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to be absent")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted on lookup")
	}

	c.Set("k", "v2", 100*time.Millisecond)
	if got, ok := c.Get("k"); !ok || got != "v2" {
		t.Fatalf("expected re-set value, got %q %v", got, ok)
	}
}

func TestCacheRealClockExpiry(t *testing.T) {
	c := New[int]()
	c.Set("k", 1, 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected entry to expire")
	}
	c.Set("k", 2, time.Minute)
	if got, ok := c.Get("k"); !ok || got != 2 {
		t.Fatalf("expected clean re-set, got %d %v", got, ok)
	}
}

func TestCachePerEntryTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[int](WithClock[int](clock.Now))
	c.Set("short", 1, time.Minute)
	c.Set("long", 2, 10*time.Minute)
	clock.Advance(5 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Fatalf("short entry should have expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Fatalf("long entry should still be cached")
	}
}

func TestCacheClearMatching(t *testing.T) {
	c := New[int]()
	c.Set("readings?unit=DRI1&date=2026-01-01", 1, time.Minute)
	c.Set("readings?unit=DRI2&date=2026-01-01", 2, time.Minute)
	c.Set("stats?unit=DRI1", 3, time.Minute)

	removed := c.ClearMatching(func(key string) bool {
		return strings.Contains(key, "DRI1") && strings.Contains(key, "2026-01-01")
	})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, ok := c.Get("readings?unit=DRI2&date=2026-01-01"); !ok {
		t.Fatalf("unrelated entry removed")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear")
	}
}

func TestCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := New[int]()
	c.Set("k", 1, 0)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("zero ttl must not store")
	}
}
