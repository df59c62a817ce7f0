package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"vibration-monitor/internal/audit"
	"vibration-monitor/internal/observability/metrics"
	vibration "vibration-monitor/internal/vibration/domain"
)

// Save sources, used as metric and audit labels.
const (
	SourceEntry = "entry"
	SourceEdit  = "edit"
	SourceAPI   = "api"
)

const auditResourceReading = "vibration_reading"

// ReadingService validates and persists readings and serves history queries.
type ReadingService struct {
	repo    vibration.ReadingRepository
	catalog vibration.Catalog
	audit   audit.Logger
	logger  *log.Logger
}

// ReadingOption configures the service.
type ReadingOption func(*ReadingService)

// WithAuditLogger records every save.
func WithAuditLogger(logger audit.Logger) ReadingOption {
	return func(s *ReadingService) {
		s.audit = logger
	}
}

// WithReadingLogger sets the service logger.
func WithReadingLogger(logger *log.Logger) ReadingOption {
	return func(s *ReadingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReadingService constructs a reading service.
func NewReadingService(repo vibration.ReadingRepository, catalog vibration.Catalog, opts ...ReadingOption) (*ReadingService, error) {
	if repo == nil {
		return nil, errors.New("reading service: nil repository")
	}
	s := &ReadingService{repo: repo, catalog: catalog, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns readings matching filter, newest first.
func (s *ReadingService) List(ctx context.Context, filter vibration.ReadingFilter) ([]vibration.Reading, error) {
	if filter.Unit != "" && !s.catalog.HasUnit(filter.Unit) {
		return nil, vibration.ErrUnknownUnit
	}
	return s.repo.List(ctx, filter)
}

// EquipmentHistory returns one equipment's readings in [from, to], oldest first.
func (s *ReadingService) EquipmentHistory(ctx context.Context, unit vibration.Unit, equipmentID string, from, to time.Time) ([]vibration.Reading, error) {
	if !s.catalog.HasUnit(unit) {
		return nil, vibration.ErrUnknownUnit
	}
	if _, ok := s.catalog.Equipment(equipmentID); !ok {
		return nil, vibration.ErrUnknownEquipment
	}
	readings, err := s.repo.List(ctx, vibration.ReadingFilter{Unit: unit, Equipment: equipmentID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

// Save validates a complete reading against the catalog and upserts it.
func (s *ReadingService) Save(ctx context.Context, actor Actor, reading vibration.Reading) (vibration.Reading, error) {
	if err := s.checkReading(reading); err != nil {
		return vibration.Reading{}, err
	}
	return s.persist(ctx, actor, reading, SourceAPI)
}

// EditValue replaces one parameter of a stored reading and upserts the full
// reading.
func (s *ReadingService) EditValue(ctx context.Context, actor Actor, unit vibration.Unit, equipmentID string, date time.Time, parameterID, raw string) (vibration.Reading, error) {
	if !s.catalog.HasUnit(unit) {
		return vibration.Reading{}, vibration.ErrUnknownUnit
	}
	if _, ok := s.catalog.Equipment(equipmentID); !ok {
		return vibration.Reading{}, vibration.ErrUnknownEquipment
	}
	if date.IsZero() {
		return vibration.Reading{}, vibration.ErrInvalidDate
	}
	value, err := s.catalog.ValidateValue(raw, parameterID)
	if err != nil {
		s.countRejection(parameterID)
		return vibration.Reading{}, err
	}

	existing, err := s.repo.List(ctx, vibration.ReadingFilter{Unit: unit, Equipment: equipmentID, Date: date, Limit: 1})
	if err != nil {
		return vibration.Reading{}, err
	}
	if len(existing) == 0 {
		return vibration.Reading{}, vibration.ErrReadingNotFound
	}
	reading := existing[0].Clone()
	if reading.Parameters == nil {
		reading.Parameters = map[string]float64{}
	}
	reading.Parameters[parameterID] = value
	return s.persist(ctx, actor, reading, SourceEdit)
}

func (s *ReadingService) checkReading(reading vibration.Reading) error {
	if !s.catalog.HasUnit(reading.Unit) {
		return vibration.ErrUnknownUnit
	}
	if _, ok := s.catalog.Equipment(reading.Equipment); !ok {
		return vibration.ErrUnknownEquipment
	}
	if reading.Date.IsZero() {
		return vibration.ErrInvalidDate
	}
	for id, value := range reading.Parameters {
		if err := s.catalog.CheckValue(value, id); err != nil {
			s.countRejection(id)
			return fmt.Errorf("parameter %s: %w", id, err)
		}
	}
	return nil
}

func (s *ReadingService) countRejection(parameterID string) {
	parameterType := "unknown"
	if parameter, ok := s.catalog.Parameter(parameterID); ok {
		parameterType = string(parameter.Type)
	}
	metrics.IncValidationRejected(parameterType)
}

func (s *ReadingService) persist(ctx context.Context, actor Actor, reading vibration.Reading, source string) (vibration.Reading, error) {
	reading.Date = vibration.Day(reading.Date)
	if actor.ID != "" {
		reading.RecordedBy = actor.ID
		reading.RecordedByName = actor.Name
	}

	start := time.Now()
	err := s.repo.Upsert(ctx, &reading)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveReadingSave(source, result, time.Since(start))
	if err != nil {
		return vibration.Reading{}, err
	}
	s.logAudit(ctx, actor, reading, source)
	return reading, nil
}

func (s *ReadingService) logAudit(ctx context.Context, actor Actor, reading vibration.Reading, source string) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(reading)
	if err != nil {
		return
	}
	client := audit.RequestInfoFromContext(ctx)
	entry := audit.Entry{
		Actor:        actor.ID,
		Role:         actor.Role,
		Action:       "vibration.reading." + source,
		ResourceType: auditResourceReading,
		ResourceID:   string(reading.Unit) + "/" + reading.Equipment + "/" + reading.DateString(),
		Metadata:     payload,
		IP:           client.IP,
		UserAgent:    client.UserAgent,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Printf("audit write failed: resource=%s err=%v", entry.ResourceID, err)
	}
}
