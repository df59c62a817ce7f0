package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	vibration "vibration-monitor/internal/vibration/domain"
)

// createdAtLayout is fixed width so text ordering matches time ordering.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS vibration_readings (
	id TEXT PRIMARY KEY,
	unit TEXT NOT NULL,
	equipment TEXT NOT NULL,
	reading_date TEXT NOT NULL,
	parameters TEXT NOT NULL DEFAULT '{}',
	notes TEXT NOT NULL DEFAULT '',
	recorded_by TEXT NOT NULL DEFAULT '',
	recorded_by_name TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (unit, equipment, reading_date)
);
CREATE INDEX IF NOT EXISTS vibration_readings_date_idx ON vibration_readings (reading_date DESC, created_at DESC);
`

// Open opens (creating if needed) a SQLite database file and its schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite reading repo: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite reading repo: init: %w", err)
		}
	}
	return db, nil
}

// ReadingRepository is a SQLite reading store for single-node installs.
type ReadingRepository struct {
	db      *sql.DB
	now     func() time.Time
	publish func(vibration.ChangeEvent)
}

// Option configures the repository.
type Option func(*ReadingRepository)

// WithClock overrides the created_at clock.
func WithClock(now func() time.Time) Option {
	return func(r *ReadingRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithChangePublisher sends a change event after each successful upsert.
// SQLite has no notification channel of its own.
func WithChangePublisher(publish func(vibration.ChangeEvent)) Option {
	return func(r *ReadingRepository) {
		r.publish = publish
	}
}

// NewReadingRepository constructs a repository over a database from Open.
func NewReadingRepository(db *sql.DB, opts ...Option) *ReadingRepository {
	r := &ReadingRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns matching readings, newest date first, newest created_at first.
func (r *ReadingRepository) List(ctx context.Context, filter vibration.ReadingFilter) ([]vibration.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sqlite reading repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	if filter.Unit != "" {
		clauses = append(clauses, "unit = ?")
		args = append(args, string(filter.Unit))
	}
	if filter.Equipment != "" {
		clauses = append(clauses, "equipment = ?")
		args = append(args, filter.Equipment)
	}
	if !filter.Date.IsZero() {
		clauses = append(clauses, "reading_date = ?")
		args = append(args, vibration.FormatDate(vibration.Day(filter.Date)))
	}
	if !filter.DateFrom.IsZero() {
		clauses = append(clauses, "reading_date >= ?")
		args = append(args, vibration.FormatDate(vibration.Day(filter.DateFrom)))
	}
	if !filter.DateTo.IsZero() {
		clauses = append(clauses, "reading_date <= ?")
		args = append(args, vibration.FormatDate(vibration.Day(filter.DateTo)))
	}
	query := `SELECT id, unit, equipment, reading_date, parameters, notes, recorded_by, recorded_by_name, created_at
FROM vibration_readings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY reading_date DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list readings: %v", vibration.ErrStorageFailure, err)
	}
	defer rows.Close()

	var result []vibration.Reading
	for rows.Next() {
		var (
			reading             vibration.Reading
			unit, date, created string
			params              string
		)
		if err := rows.Scan(&reading.ID, &unit, &reading.Equipment, &date, &params,
			&reading.Notes, &reading.RecordedBy, &reading.RecordedByName, &created); err != nil {
			return nil, fmt.Errorf("%w: scan reading: %v", vibration.ErrStorageFailure, err)
		}
		reading.Unit = vibration.Unit(unit)
		if reading.Date, err = vibration.ParseDate(date); err != nil {
			return nil, fmt.Errorf("%w: bad stored date %q", vibration.ErrStorageFailure, date)
		}
		if reading.CreatedAt, err = time.Parse(createdAtLayout, created); err != nil {
			return nil, fmt.Errorf("%w: bad stored created_at %q", vibration.ErrStorageFailure, created)
		}
		reading.Parameters = map[string]float64{}
		if err := json.Unmarshal([]byte(params), &reading.Parameters); err != nil {
			return nil, fmt.Errorf("%w: decode parameters: %v", vibration.ErrStorageFailure, err)
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list readings: %v", vibration.ErrStorageFailure, err)
	}
	return result, nil
}

// Upsert inserts the reading or replaces the row with the same key.
func (r *ReadingRepository) Upsert(ctx context.Context, reading *vibration.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("sqlite reading repo: nil db")
	}
	if reading == nil {
		return errors.New("sqlite reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}
	reading.Date = vibration.Day(reading.Date)
	reading.CreatedAt = r.now().UTC()
	params := reading.Parameters
	if params == nil {
		params = map[string]float64{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", vibration.ErrStorageFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	date := reading.DateString()
	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM vibration_readings WHERE unit = ? AND equipment = ? AND reading_date = ?`,
		string(reading.Unit), reading.Equipment, date).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if reading.ID == "" {
			reading.ID = uuid.NewString()
		}
	case err != nil:
		return fmt.Errorf("%w: lookup reading: %v", vibration.ErrStorageFailure, err)
	default:
		reading.ID = existingID
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO vibration_readings (
	id, unit, equipment, reading_date, parameters, notes, recorded_by, recorded_by_name, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (unit, equipment, reading_date) DO UPDATE SET
	parameters = excluded.parameters,
	notes = excluded.notes,
	recorded_by = excluded.recorded_by,
	recorded_by_name = excluded.recorded_by_name,
	created_at = excluded.created_at`,
		reading.ID, string(reading.Unit), reading.Equipment, date, string(encoded),
		reading.Notes, reading.RecordedBy, reading.RecordedByName, reading.CreatedAt.Format(createdAtLayout)); err != nil {
		return fmt.Errorf("%w: upsert reading: %v", vibration.ErrStorageFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", vibration.ErrStorageFailure, err)
	}

	if r.publish != nil {
		changeType := vibration.ChangeUpdate
		if existingID == "" {
			changeType = vibration.ChangeInsert
		}
		r.publish(vibration.ChangeEvent{Type: changeType, Unit: reading.Unit, Equipment: reading.Equipment, Date: date})
	}
	return nil
}
