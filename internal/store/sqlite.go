// Package store is the SQLite-backed persistence layer. Normalized points
// and observations are append-only and indexed time-first for window scans;
// profiles and blended points use replace-on-write keyed by their natural
// composite key. Every failure of the underlying database is reported as
// models.ErrDependency so callers can separate dependency faults from
// data-level conditions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/oneweather/oneweather/internal/models"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open opens the database at path with the pragmas the service runs with.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return New(db, logger), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return depErr("ping", err)
	}
	return nil
}

func depErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrDependency, op, err)
}
