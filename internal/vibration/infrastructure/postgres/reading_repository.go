package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	vibration "vibration-monitor/internal/vibration/domain"
)

// ReadingRepository is a Postgres reading store.
type ReadingRepository struct {
	db  *sql.DB
	now func() time.Time
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

// NewReadingRepository constructs a repository.
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
		return nil, errors.New("reading repo: nil db")
	}
	where, args := buildWhere(filter)
	query := `
SELECT id, unit, equipment, reading_date, parameters, notes, recorded_by, recorded_by_name, created_at
FROM vibration_readings` + where + `
ORDER BY reading_date DESC, created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list readings: %v", vibration.ErrStorageFailure, err)
	}
	defer rows.Close()

	var result []vibration.Reading
	for rows.Next() {
		var (
			reading vibration.Reading
			unit    string
			params  []byte
		)
		if err := rows.Scan(
			&reading.ID,
			&unit,
			&reading.Equipment,
			&reading.Date,
			&params,
			&reading.Notes,
			&reading.RecordedBy,
			&reading.RecordedByName,
			&reading.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan reading: %v", vibration.ErrStorageFailure, err)
		}
		reading.Unit = vibration.Unit(unit)
		reading.Date = vibration.Day(reading.Date)
		reading.CreatedAt = reading.CreatedAt.UTC()
		reading.Parameters = map[string]float64{}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &reading.Parameters); err != nil {
				return nil, fmt.Errorf("%w: decode parameters: %v", vibration.ErrStorageFailure, err)
			}
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list readings: %v", vibration.ErrStorageFailure, err)
	}
	return result, nil
}

// Upsert inserts the reading or replaces the row with the same
// (unit, equipment, reading_date).
func (r *ReadingRepository) Upsert(ctx context.Context, reading *vibration.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading == nil {
		return errors.New("reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}
	reading.Date = vibration.Day(reading.Date)
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	reading.CreatedAt = r.now()
	params, err := json.Marshal(nonNil(reading.Parameters))
	if err != nil {
		return err
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO vibration_readings (
	id, unit, equipment, reading_date, parameters, notes, recorded_by, recorded_by_name, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (unit, equipment, reading_date) DO UPDATE SET
	parameters = EXCLUDED.parameters,
	notes = EXCLUDED.notes,
	recorded_by = EXCLUDED.recorded_by,
	recorded_by_name = EXCLUDED.recorded_by_name,
	created_at = EXCLUDED.created_at
RETURNING id`, reading.ID, string(reading.Unit), reading.Equipment, reading.Date, params,
		reading.Notes, reading.RecordedBy, reading.RecordedByName, reading.CreatedAt)
	if err := row.Scan(&reading.ID); err != nil {
		return fmt.Errorf("%w: upsert reading: %v", vibration.ErrStorageFailure, err)
	}
	return nil
}

func buildWhere(filter vibration.ReadingFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Unit != "" {
		add("unit = $%d", string(filter.Unit))
	}
	if filter.Equipment != "" {
		add("equipment = $%d", filter.Equipment)
	}
	if !filter.Date.IsZero() {
		add("reading_date = $%d", vibration.Day(filter.Date))
	}
	if !filter.DateFrom.IsZero() {
		add("reading_date >= $%d", vibration.Day(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		add("reading_date <= $%d", vibration.Day(filter.DateTo))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args
}

func nonNil(params map[string]float64) map[string]float64 {
	if params == nil {
		return map[string]float64{}
	}
	return params
}
