package store

import (
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS model_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    issued_at DATETIME NOT NULL,
    resolution TEXT,
    ingested_at DATETIME NOT NULL,
    UNIQUE(source, issued_at)
);

-- Time-first key ordering: evaluation and blending scan by valid_time
-- range, then narrow by cell.
CREATE TABLE IF NOT EXISTS normalized_points (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_run_id INTEGER NOT NULL REFERENCES model_runs(id),
    source TEXT NOT NULL,
    issued_at DATETIME NOT NULL,
    cell TEXT NOT NULL,
    valid_time DATETIME NOT NULL,
    variable TEXT NOT NULL,
    value REAL NOT NULL,
    unit TEXT NOT NULL,
    ingested_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_normalized_points_time_cell
    ON normalized_points(valid_time, cell, variable);
CREATE INDEX IF NOT EXISTS idx_normalized_points_source
    ON normalized_points(source, cell, variable, valid_time);

CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    station_id TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    cell TEXT NOT NULL,
    observed_at DATETIME NOT NULL,
    variable TEXT NOT NULL,
    value REAL NOT NULL,
    quality TEXT NOT NULL,
    station_dist_km REAL NOT NULL,
    ingested_at DATETIME NOT NULL,
    UNIQUE(station_id, observed_at, variable)
);
CREATE INDEX IF NOT EXISTS idx_observations_time_cell
    ON observations(observed_at, cell, variable);

CREATE TABLE IF NOT EXISTS performance_profiles (
    source TEXT NOT NULL,
    cell TEXT NOT NULL,
    bucket TEXT NOT NULL,
    variable TEXT NOT NULL,
    window_start DATETIME NOT NULL,
    window_end DATETIME NOT NULL,
    mae REAL NOT NULL,
    rmse REAL NOT NULL,
    bias REAL NOT NULL,
    correlation REAL NOT NULL,
    sample_count INTEGER NOT NULL,
    low_confidence BOOLEAN NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (source, cell, bucket, variable)
);

CREATE TABLE IF NOT EXISTS blended_points (
    cell TEXT NOT NULL,
    valid_time DATETIME NOT NULL,
    variable TEXT NOT NULL,
    value REAL NOT NULL,
    unit TEXT NOT NULL,
    confidence REAL NOT NULL,
    sources_json TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (cell, valid_time, variable)
);
CREATE INDEX IF NOT EXISTS idx_blended_points_time
    ON blended_points(valid_time, cell, variable);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
