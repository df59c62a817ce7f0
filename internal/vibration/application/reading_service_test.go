package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"vibration-monitor/internal/audit"
	vibration "vibration-monitor/internal/vibration/domain"
)

func TestReadingServiceSaveAudits(t *testing.T) {
	repo := newFlakyRepo()
	auditLog := audit.NewMemoryLogger(10)
	svc, err := NewReadingService(repo, testCatalog, WithAuditLogger(auditLog))
	if err != nil {
		t.Fatalf("reading service: %v", err)
	}
	ctx := audit.WithRequestInfo(context.Background(), audit.RequestInfo{IP: "10.1.1.1", UserAgent: "tablet"})

	saved, err := svc.Save(ctx, operator, vibration.Reading{
		Unit:       vibration.UnitDRI2,
		Equipment:  "CP-cp51",
		Date:       testDay(6).Add(13 * time.Hour),
		Parameters: map[string]float64{"V1": 3.2, "GV1": 0.4},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" || !saved.Date.Equal(testDay(6)) || saved.RecordedByName != operator.Name {
		t.Fatalf("unexpected saved reading %+v", saved)
	}

	entries := auditLog.Recent(0)
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Action != "vibration.reading.api" || entry.ResourceID != "DRI2/CP-cp51/2026-05-06" || entry.Actor != operator.ID {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.IP != "10.1.1.1" || entry.UserAgent != "tablet" || entry.PayloadDigest == "" {
		t.Fatalf("expected client details and digest, got %+v", entry)
	}
}

func TestReadingServiceSaveValidates(t *testing.T) {
	repo := newFlakyRepo()
	svc, _ := NewReadingService(repo, testCatalog)
	ctx := context.Background()
	tests := []struct {
		name    string
		reading vibration.Reading
		want    error
	}{
		{"unknown unit", vibration.Reading{Unit: "DRI7", Equipment: "CP-cp51", Date: testDay(1)}, vibration.ErrUnknownUnit},
		{"unknown equipment", vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "XX", Date: testDay(1)}, vibration.ErrUnknownEquipment},
		{"missing date", vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "CP-cp51"}, vibration.ErrInvalidDate},
		{"over ceiling", vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "CP-cp51", Date: testDay(1), Parameters: map[string]float64{"GA2": 2.5}}, vibration.ErrValidationRejected},
		{"unknown parameter", vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "CP-cp51", Date: testDay(1), Parameters: map[string]float64{"Z9": 1}}, vibration.ErrUnknownParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Save(ctx, operator, tt.reading); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if repo.Len() != 0 {
		t.Fatalf("rejected readings must not be stored")
	}
}

func TestEquipmentHistoryOldestFirst(t *testing.T) {
	repo := newFlakyRepo()
	svc, _ := NewReadingService(repo, testCatalog)
	seed(repo,
		vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "FN-fnMAB", Date: testDay(3), Parameters: map[string]float64{"V1": 3}},
		vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "FN-fnMAB", Date: testDay(1), Parameters: map[string]float64{"V1": 1}},
		vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "FN-fnMAB", Date: testDay(9), Parameters: map[string]float64{"V1": 9}},
		vibration.Reading{Unit: vibration.UnitDRI2, Equipment: "FN-fnMAB", Date: testDay(2), Parameters: map[string]float64{"V1": 2}},
	)
	history, err := svc.EquipmentHistory(context.Background(), vibration.UnitDRI1, "FN-fnMAB", testDay(1), testDay(5))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Parameters["V1"] != 1 || history[1].Parameters["V1"] != 3 {
		t.Fatalf("unexpected history %+v", history)
	}
	if _, err := svc.List(context.Background(), vibration.ReadingFilter{Unit: "DRI5"}); !errors.Is(err, vibration.ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
}
