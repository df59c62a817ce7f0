package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	vibration "vibration-monitor/internal/vibration/domain"
	"vibration-monitor/internal/vibration/infrastructure/postgres"
	"vibration-monitor/internal/vibration/infrastructure/sqlite"
)

type config struct {
	driver     string
	dsn        string
	sqlitePath string
	startDate  string
	days       int
	spikeUnit  string
	spikeEquip string
	spikePct   float64
	recordedBy string
}

func main() {
	cfg := parseConfig()
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	start, err := parseStartDate(cfg.startDate, cfg.days)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	ctx := context.Background()
	repo, closeDB, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeDB()

	catalog := vibration.DefaultCatalog()
	log.Printf("seeding vibration_readings: driver=%s days=%d start=%s", cfg.driver, cfg.days, vibration.FormatDate(start))
	count := 0
	for day := 0; day < cfg.days; day++ {
		date := start.AddDate(0, 0, day)
		spike := day == cfg.days-1
		for unitIdx, unit := range catalog.Units {
			for equipIdx, equipment := range catalog.Equipments {
				reading := vibration.Reading{
					Unit:           unit.ID,
					Equipment:      equipment.ID,
					Date:           date,
					Parameters:     seedValues(catalog, unitIdx, equipIdx, day),
					RecordedBy:     cfg.recordedBy,
					RecordedByName: cfg.recordedBy,
				}
				if spike && string(unit.ID) == cfg.spikeUnit && equipment.ID == cfg.spikeEquip {
					applySpike(catalog, reading.Parameters, cfg.spikePct)
				}
				if err := repo.Upsert(ctx, &reading); err != nil {
					log.Fatalf("seed %s/%s/%s: %v", unit.ID, equipment.ID, vibration.FormatDate(date), err)
				}
				count++
			}
		}
	}
	log.Printf("seed completed: readings=%d", count)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.driver, "driver", envOrDefault("STORAGE_DRIVER", "postgres"), "postgres or sqlite")
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.sqlitePath, "sqlite-path", envOrDefault("SQLITE_PATH", "vibration.db"), "SQLite database file")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "first day to seed (YYYY-MM-DD)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 14), "number of days to seed")
	flag.StringVar(&cfg.spikeUnit, "spike-unit", envOrDefault("SPIKE_UNIT", string(vibration.UnitDRI1)), "unit that gets an anomaly on the last day")
	flag.StringVar(&cfg.spikeEquip, "spike-equipment", envOrDefault("SPIKE_EQUIPMENT", "CP-cp51"), "equipment that gets an anomaly on the last day")
	flag.Float64Var(&cfg.spikePct, "spike-pct", envOrFloat("SPIKE_PCT", 40), "increase applied on the last day, in percent")
	flag.StringVar(&cfg.recordedBy, "recorded-by", envOrDefault("SEED_USER", "seed"), "recorded_by value")
	flag.Parse()
	return cfg
}

func openRepository(ctx context.Context, cfg config) (vibration.ReadingRepository, func(), error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.driver {
	case "sqlite":
		db, err = sqlite.Open(ctx, cfg.sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewReadingRepository(db), func() { _ = db.Close() }, nil
	default:
		if cfg.dsn == "" {
			log.Fatal("PG_DSN or DATABASE_URL is required")
		}
		db, err = sql.Open("pgx", cfg.dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewReadingRepository(db), func() { _ = db.Close() }, nil
	}
}

// seedValues produces a gentle deterministic wave under each type's ceiling.
func seedValues(catalog vibration.Catalog, unitIdx, equipIdx, day int) map[string]float64 {
	values := make(map[string]float64, len(catalog.Parameters))
	for paramIdx, param := range catalog.Parameters {
		ceiling := param.MaxValue()
		phase := float64(unitIdx*7+equipIdx*3+paramIdx) + float64(day)*0.4
		values[param.ID] = round2(ceiling * (0.15 + 0.05*math.Sin(phase)))
	}
	return values
}

func applySpike(catalog vibration.Catalog, values map[string]float64, pct float64) {
	for id, value := range values {
		param, ok := catalog.Parameter(id)
		if !ok {
			continue
		}
		values[id] = math.Min(round2(value*(1+pct/100)), param.MaxValue())
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func parseStartDate(value string, days int) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return vibration.Today(time.Now(), time.UTC).AddDate(0, 0, -(days - 1)), nil
	}
	return vibration.ParseDate(value)
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
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

func envOrFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
