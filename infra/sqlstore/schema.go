package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order. Each entry is one schema version. Types
// are chosen to be valid in both dialects; times are unix nanoseconds and
// list or map fields are JSON text.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS hospitals (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			sla_rules TEXT NOT NULL DEFAULT '{}',
			max_cases_per_specialist INTEGER NOT NULL DEFAULT 5,
			max_cases_per_general INTEGER NOT NULL DEFAULT 6,
			working_hours TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			age INTEGER NOT NULL DEFAULT 0,
			gender TEXT NOT NULL DEFAULT '',
			medical_history TEXT NOT NULL DEFAULT '[]',
			symptoms TEXT NOT NULL DEFAULT '[]',
			urgency_level TEXT NOT NULL DEFAULT '',
			preferred_doctor TEXT NOT NULL DEFAULT '',
			arrival_time BIGINT NOT NULL DEFAULT 0,
			triage_score DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS doctors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			specialty TEXT NOT NULL DEFAULT '',
			hospital_id TEXT NOT NULL,
			availability BOOLEAN NOT NULL DEFAULT TRUE,
			working_hours TEXT NOT NULL DEFAULT '{}',
			current_workload INTEGER NOT NULL DEFAULT 0 CHECK (current_workload >= 0),
			max_daily_cases INTEGER NOT NULL DEFAULT 0,
			experience_years INTEGER NOT NULL DEFAULT 0,
			patient_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			specialization_tags TEXT NOT NULL DEFAULT '[]',
			success_rate DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS doctors_hospital_idx ON doctors (hospital_id, availability)`,
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			hospital_id TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			urgency_level TEXT NOT NULL DEFAULT '',
			assigned_doctor_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			priority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			ml_priority_score DOUBLE PRECISION,
			created_at BIGINT NOT NULL,
			last_updated BIGINT NOT NULL,
			sla_deadline BIGINT NOT NULL,
			assignment_history TEXT NOT NULL DEFAULT '[]',
			predicted_duration DOUBLE PRECISION,
			complexity_score DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS cases_hospital_status_idx ON cases (hospital_id, status)`,
		`CREATE TABLE IF NOT EXISTS case_outcomes (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL UNIQUE,
			final_status TEXT NOT NULL,
			actual_duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			patient_satisfaction DOUBLE PRECISION,
			was_reassigned BOOLEAN NOT NULL DEFAULT FALSE,
			met_sla BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
	},
}

// SchemaVersion is the version reached after Migrate.
func SchemaVersion() int { return len(migrations) }

// Migrate brings the schema to the latest version and returns the version
// found before running.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if _, err := s.exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	var current int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return 0, fmt.Errorf("sqlstore: read schema version: %w", mapErr(err))
	}
	for v := current; v < len(migrations); v++ {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range migrations[v] {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return mapErr(err)
				}
			}
			_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), v+1)
			return mapErr(err)
		})
		if err != nil {
			return current, fmt.Errorf("sqlstore: migration %d: %w", v+1, err)
		}
		s.log.Infof("schema migrated to version %d", v+1)
	}
	return current, nil
}
