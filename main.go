package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"vibration-monitor/internal/audit"
	"vibration-monitor/internal/auth"
	"vibration-monitor/internal/observability/metrics"
	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
	"vibration-monitor/internal/vibration/infrastructure/cached"
	"vibration-monitor/internal/vibration/infrastructure/memory"
	"vibration-monitor/internal/vibration/infrastructure/postgres"
	"vibration-monitor/internal/vibration/infrastructure/sqlite"
	"vibration-monitor/internal/vibration/interfaces"
	vibrationhttp "vibration-monitor/internal/vibration/interfaces/http"
	"vibration-monitor/internal/vibration/notify"
	"vibration-monitor/internal/vibration/settings"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
	driverMemory   = "memory"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("timezone error: %v", err)
	}
	catalog := vibration.DefaultCatalog()
	bus := interfaces.NewChangeBus()
	broker := vibrationhttp.NewSSEBroker()
	bus.Subscribe(broker.PublishChange)

	group, groupCtx := errgroup.WithContext(ctx)

	var (
		db          *sql.DB
		repo        vibration.ReadingRepository
		auditLogger audit.Logger
		auditReader vibrationhttp.AuditReader
	)
	switch cfg.StorageDriver {
	case driverPostgres:
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatalf("db migrate error: %v", err)
		}
		repo = postgres.NewReadingRepository(db)
		auditLogger = audit.NewRepository(db)

		listener, err := postgres.NewChangeListener(cfg.DatabaseURL, bus.Publish, logger)
		if err != nil {
			logger.Fatalf("change listener error: %v", err)
		}
		group.Go(func() error {
			listener.Run(groupCtx)
			return nil
		})
	case driverSQLite:
		db, err = sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatalf("sqlite open error: %v", err)
		}
		repo = sqlite.NewReadingRepository(db, sqlite.WithChangePublisher(bus.Publish))
		memoryAudit := audit.NewMemoryLogger(cfg.AuditCapacity)
		auditLogger, auditReader = memoryAudit, memoryAudit
	case driverMemory:
		repo = memory.NewReadingRepository(memory.WithChangePublisher(bus.Publish))
		memoryAudit := audit.NewMemoryLogger(cfg.AuditCapacity)
		auditLogger, auditReader = memoryAudit, memoryAudit
	default:
		logger.Fatalf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if db != nil {
		defer db.Close()
	}

	metrics.Init(db, logger)

	cachedRepo, err := cached.NewReadingRepository(repo,
		cached.WithTTLs(cached.TTLs{Readings: cfg.CacheTTLReadings, Today: cfg.CacheTTLToday, Stats: cfg.CacheTTLStats}),
		cached.WithLocation(loc),
	)
	if err != nil {
		logger.Fatalf("cache error: %v", err)
	}
	defer cachedRepo.Watch(bus)()

	settingsStore := settings.NewStore(cfg.SettingsPath, catalog)
	if _, err := settingsStore.Load(); err != nil {
		logger.Fatalf("settings load error: %v", err)
	}
	if cfg.SettingsPath != "" {
		watcher, err := settings.NewWatcher(settingsStore, logger)
		if err != nil {
			logger.Fatalf("settings watcher error: %v", err)
		}
		group.Go(func() error {
			if err := watcher.Run(groupCtx); err != nil {
				logger.Printf("settings watcher stopped: err=%v", err)
			}
			return nil
		})
	}

	readingService, err := application.NewReadingService(cachedRepo, catalog,
		application.WithAuditLogger(auditLogger),
		application.WithReadingLogger(logger),
	)
	if err != nil {
		logger.Fatalf("reading service error: %v", err)
	}
	entryService, err := application.NewEntryService(readingService, cachedRepo, catalog, settingsStore,
		application.WithEntryLocation(loc))
	if err != nil {
		logger.Fatalf("entry service error: %v", err)
	}
	analysisService, err := application.NewAnalysisService(cachedRepo, catalog, settingsStore,
		application.WithAnalysisLocation(loc))
	if err != nil {
		logger.Fatalf("analysis service error: %v", err)
	}
	player, err := application.NewPlayer(cachedRepo, catalog, settingsStore,
		application.WithFrameListener(broker.PublishFrame))
	if err != nil {
		logger.Fatalf("slideshow player error: %v", err)
	}
	defer player.Stop()

	scanNotifiers := []application.ScanNotifier{broker}
	if cfg.AnomalyWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.AnomalyWebhookURL,
			notify.WithHTTPClient(&http.Client{Timeout: cfg.AnomalyNotifyTimeout}))
		if err != nil {
			logger.Fatalf("anomaly webhook error: %v", err)
		}
		tpl, err := notify.NewTemplate(cfg.AnomalyNotifyTemplate)
		if err != nil {
			logger.Fatalf("anomaly template error: %v", err)
		}
		anomalyNotifier, err := notify.NewAnomalyNotifier(channel, tpl,
			notify.WithMaxLines(cfg.AnomalyNotifyMaxLines),
			notify.WithNotifyWhenClean(cfg.AnomalyNotifyWhenClean),
		)
		if err != nil {
			logger.Fatalf("anomaly notifier error: %v", err)
		}
		scanNotifiers = append(scanNotifiers, anomalyNotifier)
	}
	if cfg.AnomalyScanDailyAt != "" {
		scheduler, err := application.NewScheduler(analysisService, notify.NewMultiNotifier(scanNotifiers...), cfg.AnomalyScanDailyAt, loc, logger)
		if err != nil {
			logger.Fatalf("anomaly scheduler error: %v", err)
		}
		group.Go(func() error {
			scheduler.Start(groupCtx)
			return nil
		})
	}

	handler, err := vibrationhttp.NewHandler(vibrationhttp.Deps{
		Catalog:  catalog,
		Readings: readingService,
		Entry:    entryService,
		Analysis: analysisService,
		Player:   player,
		Settings: settingsStore,
		Audit:    auditReader,
		Location: loc,
	})
	if err != nil {
		logger.Fatalf("vibration handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle(vibrationhttp.Prefix+"changes/stream", vibrationhttp.NewStreamHandler(broker))
	mux.Handle(vibrationhttp.Prefix, handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(audit.Middleware(authMiddleware.Wrap(mux)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	group.Go(func() error {
		logger.Printf("http listening on %s storage=%s", cfg.HTTPAddr, cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Printf("server stopped: err=%v", err)
	}
}

type config struct {
	StorageDriver          string
	DatabaseURL            string
	SQLitePath             string
	HTTPAddr               string
	Timezone               string
	JWTSecret              string
	SettingsPath           string
	AuditCapacity          int
	CacheTTLReadings       time.Duration
	CacheTTLToday          time.Duration
	CacheTTLStats          time.Duration
	AnomalyWebhookURL      string
	AnomalyNotifyTemplate  string
	AnomalyNotifyTimeout   time.Duration
	AnomalyNotifyMaxLines  int
	AnomalyNotifyWhenClean bool
	AnomalyScanDailyAt     string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:            getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SQLitePath:             getenvDefault("SQLITE_PATH", "vibration.db"),
		HTTPAddr:               getenvDefault("HTTP_ADDR", ":8080"),
		Timezone:               getenvDefault("TIMEZONE", "Asia/Tehran"),
		JWTSecret:              getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		SettingsPath:           getenvDefault("SETTINGS_PATH", ""),
		AuditCapacity:          getenvIntDefault("AUDIT_MEMORY_CAPACITY", 1000),
		CacheTTLReadings:       getenvDuration("CACHE_TTL_READINGS", 5*time.Minute),
		CacheTTLToday:          getenvDuration("CACHE_TTL_TODAY", time.Minute),
		CacheTTLStats:          getenvDuration("CACHE_TTL_STATS", 10*time.Minute),
		AnomalyWebhookURL:      getenvDefault("ANOMALY_WEBHOOK_URL", ""),
		AnomalyNotifyTemplate:  getenvDefault("ANOMALY_NOTIFY_TEMPLATE", ""),
		AnomalyNotifyTimeout:   getenvDuration("ANOMALY_NOTIFY_TIMEOUT", 5*time.Second),
		AnomalyNotifyMaxLines:  getenvIntDefault("ANOMALY_NOTIFY_MAX_LINES", 20),
		AnomalyNotifyWhenClean: getenvBoolDefault("ANOMALY_NOTIFY_WHEN_CLEAN", false),
		AnomalyScanDailyAt:     getenvUnlessSet("ANOMALY_SCAN_DAILY_AT", "07:00"),
	}
	driver := driverMemory
	if cfg.DatabaseURL != "" {
		driver = driverPostgres
	}
	cfg.StorageDriver = getenvDefault("STORAGE_DRIVER", driver)
	if cfg.StorageDriver == driverPostgres && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required for the postgres driver")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// getenvUnlessSet returns fallback only when key is unset, so an empty value
// can switch a feature off.
func getenvUnlessSet(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE working through the wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
