package audit

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 1000

// MemoryLogger keeps the most recent entries in memory. It serves the
// non-Postgres storage drivers.
type MemoryLogger struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

// NewMemoryLogger constructs a logger holding at most capacity entries.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryLogger{capacity: capacity, now: time.Now}
}

// Log appends entry, dropping the oldest entry when full.
func (m *MemoryLogger) Log(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry = complete(entry, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *MemoryLogger) Recent(limit int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out
}
