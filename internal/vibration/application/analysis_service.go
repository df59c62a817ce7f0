package application

import (
	"context"
	"errors"
	"time"

	"vibration-monitor/internal/observability/metrics"
	vibration "vibration-monitor/internal/vibration/domain"
)

// Scan triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// AnomalyQuery selects a scan. Zero fields fall back to the stored analysis
// settings.
type AnomalyQuery struct {
	ThresholdPct     float64
	WindowDays       int
	ComparisonOffset int
}

// AnalysisService runs anomaly scans and unit statistics over the repository.
type AnalysisService struct {
	repo     vibration.ReadingRepository
	catalog  vibration.Catalog
	settings SettingsSource
	clock    Clock
	loc      *time.Location
}

// AnalysisOption configures the service.
type AnalysisOption func(*AnalysisService)

// WithAnalysisClock overrides the clock.
func WithAnalysisClock(clock Clock) AnalysisOption {
	return func(s *AnalysisService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAnalysisLocation sets the zone that decides the current day.
func WithAnalysisLocation(loc *time.Location) AnalysisOption {
	return func(s *AnalysisService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewAnalysisService constructs an analysis service.
func NewAnalysisService(repo vibration.ReadingRepository, catalog vibration.Catalog, settings SettingsSource, opts ...AnalysisOption) (*AnalysisService, error) {
	if repo == nil {
		return nil, errors.New("analysis service: nil repository")
	}
	if settings == nil {
		return nil, errors.New("analysis service: nil settings")
	}
	s := &AnalysisService{
		repo:     repo,
		catalog:  catalog,
		settings: settings,
		clock:    systemClock{},
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindAnomalies scans [today-windowDays, today].
func (s *AnalysisService) FindAnomalies(ctx context.Context, query AnomalyQuery) (ScanReport, error) {
	return s.scan(ctx, query, TriggerManual)
}

// Scan runs a scan with the stored defaults.
func (s *AnalysisService) Scan(ctx context.Context, trigger string) (ScanReport, error) {
	return s.scan(ctx, AnomalyQuery{}, trigger)
}

func (s *AnalysisService) scan(ctx context.Context, query AnomalyQuery, trigger string) (ScanReport, error) {
	defaults := s.settings.Get().Analysis
	if query.ThresholdPct <= 0 {
		query.ThresholdPct = defaults.ThresholdPct
	}
	if query.WindowDays <= 0 {
		query.WindowDays = defaults.TimeRangeDays
	}
	if query.ComparisonOffset <= 0 {
		query.ComparisonOffset = defaults.ComparisonDays
	}

	start := time.Now()
	today := vibration.Today(s.clock.Now(), s.loc)
	from, to := vibration.AnalysisWindow(today, query.WindowDays)
	readings, err := s.repo.List(ctx, vibration.ReadingFilter{DateFrom: from, DateTo: to})
	if err != nil {
		metrics.ObserveAnomalyScan(trigger, metrics.ResultError, 0, time.Since(start))
		return ScanReport{}, err
	}
	params := vibration.AnomalyParams{ThresholdPct: query.ThresholdPct, ComparisonOffset: query.ComparisonOffset}
	anomalies := vibration.FindAnomalies(readings, s.catalog, params)
	metrics.ObserveAnomalyScan(trigger, metrics.ResultSuccess, len(anomalies), time.Since(start))

	if anomalies == nil {
		anomalies = []vibration.Anomaly{}
	}
	return ScanReport{
		Trigger:    trigger,
		Date:       vibration.FormatDate(today),
		From:       vibration.FormatDate(from),
		To:         vibration.FormatDate(to),
		Params:     params,
		WindowDays: query.WindowDays,
		Anomalies:  anomalies,
	}, nil
}

// UnitStatistics summarises the stored readings of unit.
func (s *AnalysisService) UnitStatistics(ctx context.Context, unit vibration.Unit) (vibration.UnitStatistics, error) {
	if !s.catalog.HasUnit(unit) {
		return vibration.UnitStatistics{}, vibration.ErrUnknownUnit
	}
	if reader, ok := s.repo.(statisticsReader); ok {
		return reader.UnitStatistics(ctx, unit)
	}
	readings, err := s.repo.List(ctx, vibration.ReadingFilter{Unit: unit})
	if err != nil {
		return vibration.UnitStatistics{}, err
	}
	return vibration.ComputeUnitStatistics(unit, readings), nil
}
