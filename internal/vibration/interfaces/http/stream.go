package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
)

// Stream event names.
const (
	EventChange    = "change"
	EventFrame     = "frame"
	EventAnomalies = "anomalies"
)

type streamMessage struct {
	event   string
	payload []byte
}

// SSEBroker fans out change events, slideshow frames and scan reports to
// connected clients. Slow clients drop messages.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan streamMessage]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan streamMessage]struct{})}
}

// PublishChange forwards a reading change.
func (b *SSEBroker) PublishChange(event vibration.ChangeEvent) {
	b.publish(EventChange, event)
}

// PublishFrame forwards a slideshow frame.
func (b *SSEBroker) PublishFrame(frame vibration.Frame) {
	b.publish(EventFrame, frame)
}

// NotifyScan implements application.ScanNotifier.
func (b *SSEBroker) NotifyScan(_ context.Context, report application.ScanReport) error {
	b.publish(EventAnomalies, report)
	return nil
}

func (b *SSEBroker) subscribe() chan streamMessage {
	if b == nil {
		return nil
	}
	ch := make(chan streamMessage, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) unsubscribe(ch chan streamMessage) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *SSEBroker) publish(event string, v any) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	msg := streamMessage{event: event, payload: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// StreamHandler serves the SSE stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/vibration/changes/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.subscribe()
	defer h.broker.unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: " + msg.event + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg.payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
