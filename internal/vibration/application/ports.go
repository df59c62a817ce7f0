package application

import (
	"context"
	"time"

	vibration "vibration-monitor/internal/vibration/domain"
	"vibration-monitor/internal/vibration/settings"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SettingsSource exposes the current operator settings.
type SettingsSource interface {
	Get() settings.Settings
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string
	Name string
	Role string
}

// statisticsReader is implemented by repositories that can serve unit
// statistics themselves, such as the caching decorator.
type statisticsReader interface {
	UnitStatistics(ctx context.Context, unit vibration.Unit) (vibration.UnitStatistics, error)
}

// ScanReport is the outcome of one anomaly scan.
type ScanReport struct {
	Trigger    string                  `json:"trigger"`
	Date       string                  `json:"date"`
	From       string                  `json:"from"`
	To         string                  `json:"to"`
	Params     vibration.AnomalyParams `json:"params"`
	WindowDays int                     `json:"window_days"`
	Anomalies  []vibration.Anomaly     `json:"anomalies"`
}

// ScanNotifier receives scan reports.
type ScanNotifier interface {
	NotifyScan(ctx context.Context, report ScanReport) error
}
