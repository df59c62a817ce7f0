package interfaces

import (
	"sort"
	"sync"

	"vibration-monitor/internal/observability/metrics"
	vibration "vibration-monitor/internal/vibration/domain"
)

// ChangeBus is an in-process fan-out of reading change events.
type ChangeBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(vibration.ChangeEvent)
}

// NewChangeBus constructs a new bus.
func NewChangeBus() *ChangeBus {
	return &ChangeBus{handlers: make(map[int]func(vibration.ChangeEvent))}
}

// Subscribe registers a handler. The returned func removes it.
func (b *ChangeBus) Subscribe(handler func(vibration.ChangeEvent)) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers event to every handler registered at call time.
func (b *ChangeBus) Publish(event vibration.ChangeEvent) {
	if b == nil {
		return
	}
	metrics.IncChangeEvent(string(event.Type))

	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]func(vibration.ChangeEvent), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Len returns the number of subscribers.
func (b *ChangeBus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
