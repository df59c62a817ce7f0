package main

import (
	"os"
	"testing"
)

func TestLoadConfigScanSchedule(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("STORAGE_DRIVER", "memory")

	t.Setenv("ANOMALY_SCAN_DAILY_AT", "")
	if got := loadConfig().AnomalyScanDailyAt; got != "" {
		t.Fatalf("empty ANOMALY_SCAN_DAILY_AT must disable the scan, got %q", got)
	}

	t.Setenv("ANOMALY_SCAN_DAILY_AT", "06:30")
	if got := loadConfig().AnomalyScanDailyAt; got != "06:30" {
		t.Fatalf("expected 06:30, got %q", got)
	}

	if err := os.Unsetenv("ANOMALY_SCAN_DAILY_AT"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}
	if got := loadConfig().AnomalyScanDailyAt; got != "07:00" {
		t.Fatalf("expected default 07:00 when unset, got %q", got)
	}
}

func TestGetenvDefaultTreatsEmptyAsUnset(t *testing.T) {
	t.Setenv("VIBRATION_TEST_VALUE", "")
	if got := getenvDefault("VIBRATION_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := getenvUnlessSet("VIBRATION_TEST_VALUE", "fallback"); got != "" {
		t.Fatalf("expected empty value to be kept, got %q", got)
	}
}
