package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "vibration_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	readingsSaved      *prometheus.CounterVec
	readingSaveLatency *prometheus.HistogramVec
	validationRejected *prometheus.CounterVec

	anomalyScanTotal   *prometheus.CounterVec
	anomalyScanLatency *prometheus.HistogramVec
	anomaliesFound     prometheus.Gauge

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	cacheLookups       *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	slideshowTicks prometheus.Counter
	changeEvents   *prometheus.CounterVec
	notifyTotal    *prometheus.CounterVec
)

// Init registers collectors and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		readingsSaved = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_saved_total",
				Help: "Total reading upserts by source and result",
			},
			[]string{"source", "result"},
		)
		readingSaveLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reading_save_latency_seconds",
				Help:    "Reading upsert latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		validationRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_rejected_total",
				Help: "Values rejected by the validator, by parameter type",
			},
			[]string{"type"},
		)

		anomalyScanTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomaly_scans_total",
				Help: "Total anomaly scans by trigger and result",
			},
			[]string{"trigger", "result"},
		)
		anomalyScanLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "anomaly_scan_latency_seconds",
				Help:    "Anomaly scan latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		)
		anomaliesFound = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "anomalies_last_scan",
				Help: "Anomalies flagged by the most recent scan",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_lookups_total",
				Help: "Result cache lookups by domain and outcome",
			},
			[]string{"domain", "outcome"},
		)
		cacheInvalidations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_invalidations_total",
				Help: "Cache entries dropped by reason",
			},
			[]string{"reason"},
		)

		slideshowTicks = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "slideshow_ticks_total",
				Help: "Slideshow cursor advances",
			},
		)
		changeEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "change_events_total",
				Help: "Backing-store change notifications by type",
			},
			[]string{"type"},
		)
		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomaly_notifications_total",
				Help: "Anomaly notifications by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			readingsSaved,
			readingSaveLatency,
			validationRejected,
			anomalyScanTotal,
			anomalyScanLatency,
			anomaliesFound,
			exportTotal,
			exportLatency,
			cacheLookups,
			cacheInvalidations,
			slideshowTicks,
			changeEvents,
			notifyTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReadingSave records an upsert and its latency.
func ObserveReadingSave(source, result string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if readingsSaved != nil {
		readingsSaved.WithLabelValues(source, result).Inc()
	}
	if readingSaveLatency != nil {
		readingSaveLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncValidationRejected counts a rejected value.
func IncValidationRejected(parameterType string) {
	if parameterType == "" {
		parameterType = "unknown"
	}
	if validationRejected != nil {
		validationRejected.WithLabelValues(parameterType).Inc()
	}
}

// ObserveAnomalyScan records a detector run.
func ObserveAnomalyScan(trigger, result string, found int, duration time.Duration) {
	if trigger == "" {
		trigger = "manual"
	}
	if result == "" {
		result = resultSuccess
	}
	if anomalyScanTotal != nil {
		anomalyScanTotal.WithLabelValues(trigger, result).Inc()
	}
	if anomalyScanLatency != nil {
		anomalyScanLatency.WithLabelValues(trigger).Observe(duration.Seconds())
	}
	if anomaliesFound != nil && result == resultSuccess {
		anomaliesFound.Set(float64(found))
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncCacheLookup counts a cache hit or miss.
func IncCacheLookup(domain string, hit bool) {
	if domain == "" {
		domain = "unknown"
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(domain, outcome).Inc()
	}
}

// AddCacheInvalidations counts dropped cache entries.
func AddCacheInvalidations(reason string, count int) {
	if count <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	if cacheInvalidations != nil {
		cacheInvalidations.WithLabelValues(reason).Add(float64(count))
	}
}

// IncSlideshowTick counts a slideshow advance.
func IncSlideshowTick() {
	if slideshowTicks != nil {
		slideshowTicks.Inc()
	}
}

// IncChangeEvent counts a change notification.
func IncChangeEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if changeEvents != nil {
		changeEvents.WithLabelValues(eventType).Inc()
	}
}

// IncAnomalyNotification counts an anomaly notification attempt.
func IncAnomalyNotification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
