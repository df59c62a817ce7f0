package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vibration-monitor/internal/audit"
	"vibration-monitor/internal/auth"
	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
	"vibration-monitor/internal/vibration/infrastructure/memory"
	"vibration-monitor/internal/vibration/settings"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	handler *Handler
	repo    *memory.ReadingRepository
	audit   *audit.MemoryLogger
	player  *application.Player
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	catalog := vibration.DefaultCatalog()
	repo := memory.NewReadingRepository()
	store := settings.NewStore("", catalog)
	auditLog := audit.NewMemoryLogger(0)
	clock := fixedClock(testNow)

	readings, err := application.NewReadingService(repo, catalog, application.WithAuditLogger(auditLog))
	if err != nil {
		t.Fatalf("reading service: %v", err)
	}
	entry, err := application.NewEntryService(readings, repo, catalog, store,
		application.WithEntryClock(clock), application.WithEntryLocation(time.UTC))
	if err != nil {
		t.Fatalf("entry service: %v", err)
	}
	analysis, err := application.NewAnalysisService(repo, catalog, store,
		application.WithAnalysisClock(clock), application.WithAnalysisLocation(time.UTC))
	if err != nil {
		t.Fatalf("analysis service: %v", err)
	}
	player, err := application.NewPlayer(repo, catalog, store)
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	t.Cleanup(player.Stop)

	handler, err := NewHandler(Deps{
		Catalog:  catalog,
		Readings: readings,
		Entry:    entry,
		Analysis: analysis,
		Player:   player,
		Settings: store,
		Audit:    auditLog,
		Location: time.UTC,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return &testEnv{handler: handler, repo: repo, audit: auditLog, player: player}
}

func (e *testEnv) do(t *testing.T, role auth.Role, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "u-" + string(role), Name: "User " + string(role), Role: role}))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, readings ...vibration.Reading) {
	t.Helper()
	for i := range readings {
		if err := e.repo.Upsert(context.Background(), &readings[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func allParams(value float64) map[string]float64 {
	params := make(map[string]float64)
	for _, p := range vibration.DefaultCatalog().Parameters {
		params[p.ID] = value
	}
	return params
}

func date(day int) time.Time {
	return time.Date(2026, 5, day, 0, 0, 0, 0, time.UTC)
}

func TestNewHandlerRequiresServices(t *testing.T) {
	if _, err := NewHandler(Deps{}); err == nil {
		t.Fatalf("expected error for missing services")
	}
}

func TestSaveAndListReadings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/readings",
		`{"unit":"DRI2","equipment":"CP-cp51","date":"2026-05-06","parameters":{"V1":1.2,"GV1":0.4}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status %d: %s", rec.Code, rec.Body.String())
	}
	var saved vibration.Reading
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if saved.ID == "" || saved.RecordedBy != "u-operator" {
		t.Fatalf("unexpected saved reading %+v", saved)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/readings?unit=DRI2&date=2026-05-06", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var listed []vibration.Reading
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].Parameters["V1"] != 1.2 {
		t.Fatalf("unexpected list %+v", listed)
	}
	if got := env.audit.Recent(10); len(got) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(got))
	}
}

func TestSaveReadingErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		role auth.Role
		body string
		want int
	}{
		{"viewer denied", auth.RoleViewer, `{"unit":"DRI1","equipment":"CP-cp51","date":"2026-05-06","parameters":{"V1":1}}`, http.StatusForbidden},
		{"bad json", auth.RoleOperator, `{"unit":`, http.StatusBadRequest},
		{"bad date", auth.RoleOperator, `{"unit":"DRI1","equipment":"CP-cp51","date":"06/05/2026","parameters":{"V1":1}}`, http.StatusBadRequest},
		{"unknown unit", auth.RoleOperator, `{"unit":"DRI9","equipment":"CP-cp51","date":"2026-05-06","parameters":{"V1":1}}`, http.StatusBadRequest},
		{"over ceiling", auth.RoleOperator, `{"unit":"DRI1","equipment":"CP-cp51","date":"2026-05-06","parameters":{"V1":25}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.role, http.MethodPost, "/api/v1/vibration/readings", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListRejectsBadFilter(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/readings?from=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodDelete, "/api/v1/vibration/readings", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEntryFlow(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/submit", `{"value":"1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a session, got %d", rec.Code)
	}

	rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/select", `{"unit":"DRI1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status %d: %s", rec.Code, rec.Body.String())
	}
	var view application.EntryView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Unit != vibration.UnitDRI1 || view.Date != "2026-05-10" || view.Slot == nil {
		t.Fatalf("unexpected view %+v", view)
	}

	rec = env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/submit", `{"value":1.25}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("numeric submit status %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/submit", `{"value":"0.5"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("string submit status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/submit", `{"value":"abc"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid value, got %d", rec.Code)
	}

	rec = env.do(t, auth.RoleOperator, http.MethodGet, "/api/v1/vibration/entry", "")
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode current: %v", err)
	}
	if view.Filled != 2 {
		t.Fatalf("expected 2 filled slots, got %+v", view)
	}

	if rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/back", ""); rec.Code != http.StatusOK {
		t.Fatalf("back status %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/note", `{"note":"bearing noise"}`); rec.Code != http.StatusOK {
		t.Fatalf("note status %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/save", ""); rec.Code != http.StatusOK {
		t.Fatalf("save status %d: %s", rec.Code, rec.Body.String())
	}
	stored, err := env.repo.List(context.Background(), vibration.ReadingFilter{Unit: vibration.UnitDRI1, Date: date(10)})
	if err != nil || len(stored) != 1 || stored[0].Notes != "bearing noise" {
		t.Fatalf("expected saved partial reading, got %+v %v", stored, err)
	}

	if rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/close", ""); rec.Code != http.StatusOK {
		t.Fatalf("close status %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/entry/select", `{"unit":"DRI1"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected viewer to be denied, got %d", rec.Code)
	}
}

func TestEntryEditMissingReading(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/vibration/entry/edit",
		`{"unit":"DRI1","equipment":"GB-cp48A","date":"2026-05-01","parameter":"V1","value":"1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnomaliesAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "CP-cp51", Date: date(8), Parameters: map[string]float64{"V1": 1}},
		vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "CP-cp51", Date: date(9), Parameters: map[string]float64{"V1": 2}},
	)

	rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/anomalies?threshold=20&days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("anomalies status %d: %s", rec.Code, rec.Body.String())
	}
	var report application.ScanReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Anomalies) != 1 || report.Anomalies[0].Parameter != "V1" {
		t.Fatalf("unexpected anomalies %+v", report.Anomalies)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/anomalies?threshold=20&format=pdf", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf status %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Fatalf("expected pdf body")
	}

	if rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/anomalies?threshold=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad threshold, got %d", rec.Code)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/stats?unit=DRI1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/stats?unit=DRI7", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown unit, got %d", rec.Code)
	}
}

func TestExports(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, vibration.Reading{Unit: vibration.UnitDRI2, Equipment: "FN-fnESF", Date: date(9), Parameters: allParams(0.7)})

	rec := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/export.csv?unit=DRI2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="vibration-data-2026-05-10.csv"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !strings.Contains(rec.Body.String(), "2026-05-09") {
		t.Fatalf("csv missing reading date: %q", rec.Body.String())
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/export.xlsx", "")
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("xlsx status %d len %d", rec.Code, rec.Body.Len())
	}
}

func TestSlideshowControls(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/start", `{"date":"2026-05-09"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without data, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/pause", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when not running, got %d", rec.Code)
	}

	env.seed(t, vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "GB-cp48A", Date: date(9), Parameters: allParams(0.3)})
	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/interval", `{"interval_ms":60000}`); rec.Code != http.StatusOK {
		t.Fatalf("interval status %d: %s", rec.Code, rec.Body.String())
	}
	rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/start", `{"date":"2026-05-09"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status %d: %s", rec.Code, rec.Body.String())
	}
	var status application.PlayerStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Date != "2026-05-09" || status.IntervalMS != 60000 {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/step", "")
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode step: %v", err)
	}
	if status.Position != (vibration.SlidePosition{EquipmentIndex: 0, ParameterIndex: 1}) {
		t.Fatalf("expected position (0,1), got %+v", status.Position)
	}

	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/interval", `{"interval_ms":0}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for zero interval, got %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/vibration/slideshow/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop status %d", rec.Code)
	}
	if env.player.Status().Running {
		t.Fatalf("expected player to stop")
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, auth.RoleOperator, http.MethodPut, "/api/v1/vibration/settings", `{"theme":"dark"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected operator to be denied, got %d", rec.Code)
	}
	rec := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/v1/vibration/settings", `{"theme":"dark"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status %d: %s", rec.Code, rec.Body.String())
	}
	var saved settings.Settings
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if saved.Theme != "dark" {
		t.Fatalf("expected dark theme, got %q", saved.Theme)
	}
	if rec := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/v1/vibration/settings", `{"display":{"parameter_mode":"sideways"}}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid mode, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/vibration/settings/reset", "")
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("decode reset: %v", err)
	}
	if saved.Theme == "dark" {
		t.Fatalf("expected reset to restore the default theme")
	}

	rec = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/vibration/catalog", "")
	var catalog catalogResponse
	if err := json.NewDecoder(rec.Body).Decode(&catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(catalog.EntryEquipment[vibration.UnitDRI1]) != 12 || len(catalog.DisplayParameters) != 12 {
		t.Fatalf("unexpected catalog response %+v", catalog)
	}
}

func TestAuditEndpoint(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, auth.RoleOperator, http.MethodGet, "/api/v1/vibration/audit", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec := env.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/vibration/audit?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status %d", rec.Code)
	}
	if rec := env.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/vibration/audit?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}
