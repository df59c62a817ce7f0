package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	vibration "vibration-monitor/internal/vibration/domain"
	readingrepo "vibration-monitor/internal/vibration/infrastructure/postgres"
	"vibration-monitor/internal/vibration/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestReadingUpsertAndNotify_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := readingrepo.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	const equipment = "it-equipment"
	date := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	_, _ = db.ExecContext(ctx, "DELETE FROM vibration_readings WHERE equipment = $1", equipment)

	bus := interfaces.NewChangeBus()
	events := make(chan vibration.ChangeEvent, 8)
	bus.Subscribe(func(e vibration.ChangeEvent) {
		if e.Equipment == equipment {
			events <- e
		}
	})
	listener, err := readingrepo.NewChangeListener(dsn, bus.Publish, nil)
	if err != nil {
		t.Fatalf("listener: %v", err)
	}
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go listener.Run(listenCtx)
	time.Sleep(500 * time.Millisecond)

	repo := readingrepo.NewReadingRepository(db)
	first := &vibration.Reading{Unit: vibration.UnitDRI1, Equipment: equipment, Date: date, Parameters: map[string]float64{"V1": 1.25}}
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &vibration.Reading{Unit: vibration.UnitDRI1, Equipment: equipment, Date: date, Parameters: map[string]float64{"V1": 2.5}, Notes: "again"}
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected conflict to keep id %s, got %s", first.ID, second.ID)
	}

	got, err := repo.List(ctx, vibration.ReadingFilter{Equipment: equipment})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Parameters["V1"] != 2.5 || got[0].Notes != "again" || !got[0].Date.Equal(date) {
		t.Fatalf("unexpected rows %+v", got)
	}

	for _, want := range []vibration.ChangeType{vibration.ChangeInsert, vibration.ChangeUpdate} {
		select {
		case e := <-events:
			if e.Type != want || e.Date != "2026-05-01" || e.Unit != vibration.UnitDRI1 {
				t.Fatalf("unexpected event %+v, want %s", e, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s notification", want)
		}
	}
}
