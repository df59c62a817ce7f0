package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"vibration-monitor/internal/observability/metrics"
)

// Scanner runs an anomaly scan.
type Scanner interface {
	Scan(ctx context.Context, trigger string) (ScanReport, error)
}

// Scheduler triggers the daily anomaly scan and forwards its report.
type Scheduler struct {
	scanner  Scanner
	notifier ScanNotifier
	dailyAt  string
	loc      *time.Location
	logger   *log.Logger

	mu      sync.Mutex
	lastRun string
}

// NewScheduler constructs a Scheduler. dailyAt is HH:MM in loc.
func NewScheduler(scanner Scanner, notifier ScanNotifier, dailyAt string, loc *time.Location, logger *log.Logger) (*Scheduler, error) {
	if scanner == nil {
		return nil, errors.New("anomaly scheduler: nil scanner")
	}
	if _, _, err := parseDailyAt(dailyAt); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		scanner:  scanner,
		notifier: notifier,
		dailyAt:  dailyAt,
		loc:      loc,
		logger:   logger,
	}, nil
}

// Start runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now) {
				continue
			}
			s.RunOnce(ctx, now)
		}
	}
}

// RunOnce scans and notifies, at most once per local calendar day.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	day := now.In(s.loc).Format("2006-01-02")
	s.mu.Lock()
	if s.lastRun == day {
		s.mu.Unlock()
		return
	}
	s.lastRun = day
	s.mu.Unlock()

	report, err := s.scanner.Scan(ctx, TriggerSchedule)
	if err != nil {
		s.logger.Printf("anomaly schedule error: day=%s err=%v", day, err)
		return
	}
	s.logger.Printf("anomaly scan done: day=%s anomalies=%d", day, len(report.Anomalies))
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyScan(ctx, report); err != nil {
		metrics.IncAnomalyNotification(metrics.ResultError)
		s.logger.Printf("anomaly notify error: day=%s err=%v", day, err)
		return
	}
	metrics.IncAnomalyNotification(metrics.ResultSuccess)
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	local := now.In(s.loc)
	return local.Hour() == hour && local.Minute() == minute
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
