package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vibration-monitor/internal/audit"
	"vibration-monitor/internal/auth"
	"vibration-monitor/internal/observability/metrics"
	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
	"vibration-monitor/internal/vibration/interfaces/export"
	"vibration-monitor/internal/vibration/settings"
)

// Prefix is the path prefix served by Handler.
const Prefix = "/api/v1/vibration/"

const maxBodyBytes = 1 << 20

// AuditReader lists recent audit entries.
type AuditReader interface {
	Recent(limit int) []audit.Entry
}

// Deps are the collaborators of Handler. Audit is optional.
type Deps struct {
	Catalog  vibration.Catalog
	Readings *application.ReadingService
	Entry    *application.EntryService
	Analysis *application.AnalysisService
	Player   *application.Player
	Settings *settings.Store
	Audit    AuditReader
	Location *time.Location
	Now      func() time.Time
}

// Handler provides the vibration HTTP endpoints.
type Handler struct {
	deps Deps
}

// NewHandler constructs a handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Readings == nil:
		return nil, errors.New("vibration handler: nil reading service")
	case deps.Entry == nil:
		return nil, errors.New("vibration handler: nil entry service")
	case deps.Analysis == nil:
		return nil, errors.New("vibration handler: nil analysis service")
	case deps.Player == nil:
		return nil, errors.New("vibration handler: nil player")
	case deps.Settings == nil:
		return nil, errors.New("vibration handler: nil settings")
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps}, nil
}

// ServeHTTP handles /api/v1/vibration/ and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, Prefix)
	switch {
	case path == "catalog":
		if allow(w, r, http.MethodGet) {
			h.handleCatalog(w, r)
		}
	case path == "readings":
		switch r.Method {
		case http.MethodGet:
			h.handleListReadings(w, r)
		case http.MethodPost:
			h.handleSaveReading(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case path == "entry" || strings.HasPrefix(path, "entry/"):
		h.handleEntry(w, r, strings.TrimPrefix(strings.TrimPrefix(path, "entry"), "/"))
	case path == "anomalies":
		if allow(w, r, http.MethodGet) {
			h.handleAnomalies(w, r)
		}
	case path == "stats":
		if allow(w, r, http.MethodGet) {
			h.handleStats(w, r)
		}
	case path == "export.csv" || path == "export.xlsx":
		if allow(w, r, http.MethodGet) {
			h.handleExport(w, r, strings.TrimPrefix(path, "export."))
		}
	case path == "slideshow" || strings.HasPrefix(path, "slideshow/"):
		h.handleSlideshow(w, r, strings.TrimPrefix(strings.TrimPrefix(path, "slideshow"), "/"))
	case path == "settings" || path == "settings/reset":
		h.handleSettings(w, r, path == "settings/reset")
	case path == "audit":
		if allow(w, r, http.MethodGet) {
			h.handleAudit(w, r)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type catalogResponse struct {
	Catalog           vibration.Catalog                           `json:"catalog"`
	EntryEquipment    map[vibration.Unit][]vibration.EquipmentDef `json:"entry_equipment"`
	EntryParameters   []vibration.ParameterDef                    `json:"entry_parameters"`
	DisplayEquipment  []vibration.ScopedEquipment                 `json:"display_equipment"`
	DisplayParameters []vibration.ParameterDef                    `json:"display_parameters"`
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	current := h.deps.Settings.Get()
	catalog := h.deps.Catalog
	resp := catalogResponse{
		Catalog:           catalog,
		EntryEquipment:    make(map[vibration.Unit][]vibration.EquipmentDef, len(catalog.Units)),
		EntryParameters:   current.EntryParameterOrder(catalog),
		DisplayEquipment:  current.DisplayEquipmentOrder(catalog),
		DisplayParameters: current.DisplayParameterOrder(catalog),
	}
	for _, unit := range catalog.Units {
		resp.EntryEquipment[unit.ID] = current.EntryEquipmentOrder(unit.ID, catalog)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListReadings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	readings, err := h.deps.Readings.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	if readings == nil {
		readings = []vibration.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) handleSaveReading(w http.ResponseWriter, r *http.Request) {
	if err := authorize(r, auth.RoleOperator); err != nil {
		respondError(w, err)
		return
	}
	var reading vibration.Reading
	if err := decodeJSON(r, &reading); err != nil {
		respondError(w, err)
		return
	}
	saved, err := h.deps.Readings.Save(r.Context(), actorFrom(r), reading)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type entryRequest struct {
	Unit      vibration.Unit  `json:"unit"`
	Equipment string          `json:"equipment"`
	Date      string          `json:"date"`
	Parameter string          `json:"parameter"`
	Value     json.RawMessage `json:"value"`
	Note      string          `json:"note"`
}

func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request, action string) {
	if err := authorize(r, auth.RoleOperator); err != nil {
		respondError(w, err)
		return
	}
	if action == "" {
		if allow(w, r, http.MethodGet) {
			view, err := h.deps.Entry.Current(actorFrom(r))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		}
		return
	}
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req entryRequest
	if action != "back" && action != "save" && action != "close" {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	ctx := r.Context()
	actor := actorFrom(r)

	var (
		result any
		err    error
	)
	switch action {
	case "select":
		result, err = h.deps.Entry.SelectUnit(ctx, actor, req.Unit)
	case "submit":
		result, err = h.deps.Entry.Submit(ctx, actor, rawValue(req.Value))
	case "back":
		result, err = h.deps.Entry.Back(actor)
	case "note":
		result, err = h.deps.Entry.SetNote(actor, req.Note)
	case "save":
		result, err = h.deps.Entry.SaveCurrent(ctx, actor)
	case "edit":
		var date time.Time
		date, err = vibration.ParseDate(req.Date)
		if err == nil {
			result, err = h.deps.Entry.EditValue(ctx, actor, req.Unit, req.Equipment, date, req.Parameter, rawValue(req.Value))
		}
	case "close":
		h.deps.Entry.Close(actor)
		result, err = h.deps.Entry.Current(actor)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	query, err := parseAnomalyQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := h.deps.Analysis.FindAnomalies(r.Context(), query)
	if err != nil {
		respondError(w, err)
		return
	}
	if r.URL.Query().Get("format") != "pdf" {
		writeJSON(w, http.StatusOK, report)
		return
	}

	start := time.Now()
	data, err := export.AnomalyReportPDF(report, h.deps.Catalog)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		http.Error(w, "render report failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
	writeAttachment(w, "application/pdf", "vibration-anomalies-"+report.Date+".pdf", data)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	unit := vibration.Unit(r.URL.Query().Get("unit"))
	if unit == "" {
		http.Error(w, "unit is required", http.StatusBadRequest)
		return
	}
	stats, err := h.deps.Analysis.UnitStatistics(r.Context(), unit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()
	readings, err := h.deps.Readings.List(r.Context(), filter)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondError(w, err)
		return
	}

	name := "vibration-data-" + vibration.FormatDate(vibration.Today(h.deps.Now(), h.deps.Location)) + "." + format
	switch format {
	case "csv":
		data := export.ToCSV(readings, h.deps.Catalog, h.deps.Location)
		metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
		writeAttachment(w, "text/csv; charset=utf-8", name, []byte(data))
	case "xlsx":
		data, err := export.ReadingsXLSX(readings, h.deps.Catalog, h.deps.Location)
		if err != nil {
			metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
			http.Error(w, "render workbook failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
		writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", name, data)
	}
}

type slideshowRequest struct {
	Date       string `json:"date"`
	IntervalMS int64  `json:"interval_ms"`
}

func (h *Handler) handleSlideshow(w http.ResponseWriter, r *http.Request, action string) {
	player := h.deps.Player
	if action == "" {
		if allow(w, r, http.MethodGet) {
			writeJSON(w, http.StatusOK, player.Status())
		}
		return
	}
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req slideshowRequest
	if action == "start" || action == "interval" {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}

	var err error
	switch action {
	case "start":
		date := vibration.Today(h.deps.Now(), h.deps.Location)
		if req.Date != "" {
			date, err = vibration.ParseDate(req.Date)
		}
		if err == nil {
			err = player.Start(r.Context(), date)
		}
	case "pause":
		err = player.Pause()
	case "resume":
		err = player.Resume()
	case "stop":
		player.Stop()
	case "step":
		_, err = player.Step()
	case "interval":
		err = player.SetInterval(time.Duration(req.IntervalMS) * time.Millisecond)
		if err != nil {
			err = errors.Join(vibration.ErrValidationRejected, err)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player.Status())
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request, reset bool) {
	store := h.deps.Settings
	if reset {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if err := authorize(r, auth.RoleAdmin); err != nil {
			respondError(w, err)
			return
		}
		current, err := store.Reset()
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, current)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, store.Get())
	case http.MethodPut:
		if err := authorize(r, auth.RoleAdmin); err != nil {
			respondError(w, err)
			return
		}
		next := store.Get()
		if err := decodeJSON(r, &next); err != nil {
			respondError(w, err)
			return
		}
		saved, err := store.Save(next)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if err := authorize(r, auth.RoleAdmin); err != nil {
		respondError(w, err)
		return
	}
	if h.deps.Audit == nil {
		http.Error(w, "audit listing unavailable", http.StatusNotImplemented)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, h.deps.Audit.Recent(limit))
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func authorize(r *http.Request, required auth.Role) error {
	if !auth.RoleAtLeast(auth.RoleFromContext(r.Context()), required) {
		return vibration.ErrPermissionDenied
	}
	return nil
}

func actorFrom(r *http.Request) application.Actor {
	identity := auth.IdentityFromContext(r.Context())
	return application.Actor{ID: identity.Subject, Name: identity.Name, Role: string(identity.Role)}
}

// rawValue accepts a JSON number or string.
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func parseFilter(r *http.Request) (vibration.ReadingFilter, error) {
	q := r.URL.Query()
	filter := vibration.ReadingFilter{
		Unit:      vibration.Unit(q.Get("unit")),
		Equipment: q.Get("equipment"),
	}
	for name, dst := range map[string]*time.Time{"date": &filter.Date, "from": &filter.DateFrom, "to": &filter.DateTo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := vibration.ParseDate(raw)
		if err != nil {
			return vibration.ReadingFilter{}, errors.New(name + " must be YYYY-MM-DD")
		}
		*dst = parsed
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return vibration.ReadingFilter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseAnomalyQuery(r *http.Request) (application.AnomalyQuery, error) {
	q := r.URL.Query()
	var query application.AnomalyQuery
	if raw := q.Get("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold <= 0 {
			return query, errors.New("threshold must be a positive number")
		}
		query.ThresholdPct = threshold
	}
	for name, dst := range map[string]*int{"days": &query.WindowDays, "offset": &query.ComparisonOffset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return query, errors.New(name + " must be a positive integer")
		}
		*dst = value
	}
	return query, nil
}

var errBadBody = errors.New("invalid json body")

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, vibration.ErrInvalidDate) {
			return err
		}
		return errBadBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// respondError maps core errors to status codes.
func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, vibration.ErrValidationRejected), errors.Is(err, settings.ErrInvalidSettings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vibration.ErrUnknownUnit), errors.Is(err, vibration.ErrUnknownEquipment),
		errors.Is(err, vibration.ErrUnknownParameter), errors.Is(err, vibration.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, vibration.ErrNoDataForDate), errors.Is(err, vibration.ErrReadingNotFound):
		return http.StatusNotFound
	case errors.Is(err, vibration.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, vibration.ErrNoSession), errors.Is(err, vibration.ErrDayChanged),
		errors.Is(err, vibration.ErrSlideshowNotRunning):
		return http.StatusConflict
	case errors.Is(err, vibration.ErrStorageFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
