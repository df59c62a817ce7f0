package http

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
)

func TestBrokerDropsWhenNoClients(t *testing.T) {
	broker := NewSSEBroker()
	broker.PublishChange(vibration.ChangeEvent{Type: vibration.ChangeInsert})
	if broker.Clients() != 0 {
		t.Fatalf("expected no clients")
	}
	var nilBroker *SSEBroker
	nilBroker.PublishFrame(vibration.Frame{})
}

func TestBrokerUnsubscribeTwice(t *testing.T) {
	broker := NewSSEBroker()
	ch := broker.subscribe()
	broker.unsubscribe(ch)
	broker.unsubscribe(ch)
	if broker.Clients() != 0 {
		t.Fatalf("expected client removed")
	}
	broker.PublishFrame(vibration.Frame{Date: "2026-05-01"})
}

func TestStreamHandlerDeliversEvents(t *testing.T) {
	broker := NewSSEBroker()
	server := httptest.NewServer(NewStreamHandler(broker))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	if event, _ := readEvent(); event != "ready" {
		t.Fatalf("expected ready event, got %q", event)
	}

	broker.PublishChange(vibration.ChangeEvent{Type: vibration.ChangeInsert, Unit: vibration.UnitDRI1, Date: "2026-05-01"})
	event, data := readEvent()
	if event != EventChange || !strings.Contains(data, `"unit":"DRI1"`) {
		t.Fatalf("unexpected change event %q %s", event, data)
	}

	if err := broker.NotifyScan(ctx, application.ScanReport{Date: "2026-05-02", Anomalies: []vibration.Anomaly{}}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	event, data = readEvent()
	if event != EventAnomalies || !strings.Contains(data, `"date":"2026-05-02"`) {
		t.Fatalf("unexpected anomalies event %q %s", event, data)
	}
}

func TestStreamHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(NewSSEBroker()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
