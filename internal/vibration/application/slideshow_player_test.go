package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	vibration "vibration-monitor/internal/vibration/domain"
)

func newPlayerFixture(t *testing.T, frames chan vibration.Frame) (*Player, *flakyRepo) {
	t.Helper()
	repo := newFlakyRepo()
	opts := []PlayerOption{}
	if frames != nil {
		opts = append(opts, WithFrameListener(func(frame vibration.Frame) {
			select {
			case frames <- frame:
			default:
			}
		}))
	}
	player, err := NewPlayer(repo, testCatalog, testSettings(), opts...)
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	return player, repo
}

func TestPlayerStartWithoutData(t *testing.T) {
	defer goleak.VerifyNone(t)
	player, _ := newPlayerFixture(t, nil)
	if err := player.Start(context.Background(), testDay(3)); !errors.Is(err, vibration.ErrNoDataForDate) {
		t.Fatalf("expected ErrNoDataForDate, got %v", err)
	}
	if status := player.Status(); status.Running {
		t.Fatalf("player must stay stopped, got %+v", status)
	}
	if _, err := player.Step(); !errors.Is(err, vibration.ErrSlideshowNotRunning) {
		t.Fatalf("expected ErrSlideshowNotRunning, got %v", err)
	}
	if err := player.Pause(); !errors.Is(err, vibration.ErrSlideshowNotRunning) {
		t.Fatalf("expected ErrSlideshowNotRunning, got %v", err)
	}
}

func TestPlayerStepAndSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	player, repo := newPlayerFixture(t, nil)
	seed(repo, vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "GB-cp48A", Date: testDay(3), Parameters: map[string]float64{"V1": 4.2, "GV1": 0.8}})
	if err := player.SetInterval(time.Hour); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	if err := player.Start(context.Background(), testDay(3)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer player.Stop()

	status := player.Status()
	if !status.Running || status.Date != "2026-05-03" || status.Frame == nil {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.IntervalMS != time.Hour.Milliseconds() {
		t.Fatalf("interval set before Start must apply, got %d", status.IntervalMS)
	}
	first := *status.Frame
	if first.Unit != vibration.UnitDRI1 || first.Equipment.ID != "GB-cp48A" || !first.HasValue || first.Value != 4.2 {
		t.Fatalf("unexpected first frame %+v", first)
	}

	// Writes after Start must not show up in the frozen snapshot.
	seed(repo, vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "GB-cp48A", Date: testDay(3), Parameters: map[string]float64{"V1": 9, "GV1": 1.9}})
	frame, err := player.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if frame.Position != (vibration.SlidePosition{EquipmentIndex: 0, ParameterIndex: 1}) || frame.Value != 0.8 {
		t.Fatalf("unexpected stepped frame %+v", frame)
	}

	for i := 0; i < len(testCatalog.Parameters)-1; i++ {
		if frame, err = player.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if frame.Position != (vibration.SlidePosition{EquipmentIndex: 1, ParameterIndex: 0}) {
		t.Fatalf("expected wrap to next equipment, got %+v", frame.Position)
	}
}

func TestPlayerPauseAndTicks(t *testing.T) {
	defer goleak.VerifyNone(t)
	frames := make(chan vibration.Frame, 16)
	player, repo := newPlayerFixture(t, frames)
	seed(repo, vibration.Reading{Unit: vibration.UnitDRI2, Equipment: "FN-fnAUX", Date: testDay(4), Parameters: map[string]float64{"A1": 3}})
	if err := player.Start(context.Background(), testDay(4)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer player.Stop()

	if err := player.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := player.SetInterval(5 * time.Millisecond); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if got := player.Status().Position; got != (vibration.SlidePosition{}) {
		t.Fatalf("paused player must not move, got %+v", got)
	}

	if err := player.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	select {
	case frame := <-frames:
		if frame.Date != "2026-05-04" {
			t.Fatalf("unexpected frame %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a tick after resume")
	}
}

func TestPlayerStopResetsState(t *testing.T) {
	defer goleak.VerifyNone(t)
	player, repo := newPlayerFixture(t, nil)
	seed(repo, vibration.Reading{Unit: vibration.UnitDRI1, Equipment: "CP-cpSGC", Date: testDay(5), Parameters: map[string]float64{"H2": 1}})
	if err := player.SetInterval(time.Hour); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := player.Start(context.Background(), testDay(5)); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if _, err := player.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	player.Stop()
	player.Stop()
	status := player.Status()
	if status.Running || status.Paused || status.Frame != nil || status.Position != (vibration.SlidePosition{}) {
		t.Fatalf("expected reset status, got %+v", status)
	}
	if status.IntervalMS != time.Hour.Milliseconds() {
		t.Fatalf("interval should survive Stop, got %d", status.IntervalMS)
	}
	if _, err := player.Frame(); !errors.Is(err, vibration.ErrSlideshowNotRunning) {
		t.Fatalf("expected ErrSlideshowNotRunning, got %v", err)
	}
}
