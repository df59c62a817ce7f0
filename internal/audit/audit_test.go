package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMemoryLoggerKeepsNewest(t *testing.T) {
	logger := NewMemoryLogger(2)
	for _, action := range []string{"a", "b", "c"} {
		if err := logger.Log(context.Background(), Entry{Action: action, Metadata: []byte(`{"k":1}`)}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	recent := logger.Recent(0)
	if len(recent) != 2 || recent[0].Action != "c" || recent[1].Action != "b" {
		t.Fatalf("unexpected entries %+v", recent)
	}
	entry := recent[0]
	if !strings.HasPrefix(entry.ID, "audit-") || entry.CreatedAt.IsZero() || len(entry.PayloadDigest) != 64 {
		t.Fatalf("expected generated fields, got %+v", entry)
	}
}

func TestMemoryLoggerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryLogger(0).Log(ctx, Entry{}); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
}

func TestMiddlewareRecordsClient(t *testing.T) {
	var info RequestInfo
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info = RequestInfoFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration/readings", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	req.Header.Set("User-Agent", "tablet/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if info.IP != "10.0.0.7" || info.UserAgent != "tablet/1.0" {
		t.Fatalf("unexpected request info %+v", info)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	if ip := ClientIP(req); ip != "192.168.1.5" {
		t.Fatalf("expected remote host, got %q", ip)
	}
}
