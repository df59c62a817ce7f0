package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ChangeChannel is the NOTIFY channel fed by the readings trigger.
const ChangeChannel = "vibration_readings"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vibration_readings (
	id TEXT PRIMARY KEY,
	unit TEXT NOT NULL,
	equipment TEXT NOT NULL,
	reading_date DATE NOT NULL,
	parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
	notes TEXT NOT NULL DEFAULT '',
	recorded_by TEXT NOT NULL DEFAULT '',
	recorded_by_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (unit, equipment, reading_date)
)`,
	`CREATE INDEX IF NOT EXISTS vibration_readings_date_idx ON vibration_readings (reading_date DESC, created_at DESC)`,
	`CREATE OR REPLACE FUNCTION vibration_readings_notify() RETURNS trigger AS $$
DECLARE
	rec RECORD;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := OLD;
	ELSE
		rec := NEW;
	END IF;
	PERFORM pg_notify('vibration_readings', json_build_object(
		'type', lower(TG_OP),
		'unit', rec.unit,
		'equipment', rec.equipment,
		'date', to_char(rec.reading_date, 'YYYY-MM-DD')
	)::text);
	RETURN rec;
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS vibration_readings_notify ON vibration_readings`,
	`CREATE TRIGGER vibration_readings_notify
AFTER INSERT OR UPDATE OR DELETE ON vibration_readings
FOR EACH ROW EXECUTE FUNCTION vibration_readings_notify()`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	metadata JSONB,
	payload_digest TEXT NOT NULL DEFAULT '',
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`,
}

// Migrate creates the readings table, its change trigger and the audit table.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("vibration schema: nil db")
	}
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vibration schema step %d: %w", i+1, err)
		}
	}
	return nil
}
