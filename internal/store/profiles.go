package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oneweather/oneweather/internal/models"
)

// UpsertProfile replaces the current profile for its (source, cell, bucket,
// variable) key. No historical versions are retained.
func (s *Store) UpsertProfile(ctx context.Context, p models.PerformanceProfile, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_profiles (source, cell, bucket, variable, window_start, window_end, mae, rmse, bias, correlation, sample_count, low_confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, cell, bucket, variable) DO UPDATE SET
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			mae = excluded.mae,
			rmse = excluded.rmse,
			bias = excluded.bias,
			correlation = excluded.correlation,
			sample_count = excluded.sample_count,
			low_confidence = excluded.low_confidence,
			updated_at = excluded.updated_at
	`, p.Source, p.Cell.String(), p.Bucket, string(p.Variable), p.WindowStart.UTC(), p.WindowEnd.UTC(),
		p.MAE, p.RMSE, p.Bias, p.Correlation, p.SampleCount, p.LowConfidence, now.UTC())
	if err != nil {
		return depErr("upsert profile", err)
	}
	return nil
}

// GetProfile returns the current profile for the key, or nil if none has
// been computed.
func (s *Store) GetProfile(ctx context.Context, source string, cell models.CellID, bucket string, variable models.Variable) (*models.PerformanceProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, cell, bucket, variable, window_start, window_end, mae, rmse, bias, correlation, sample_count, low_confidence
		FROM performance_profiles
		WHERE source = ? AND cell = ? AND bucket = ? AND variable = ?
	`, source, cell.String(), bucket, string(variable))

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, depErr("select profile", err)
	}
	return p, nil
}

// ProfileFilter narrows QueryProfiles; zero values mean "any".
type ProfileFilter struct {
	Source   string
	Cell     models.CellID
	Bucket   string
	Variable models.Variable
}

func (s *Store) QueryProfiles(ctx context.Context, f ProfileFilter) ([]models.PerformanceProfile, error) {
	q := `
		SELECT source, cell, bucket, variable, window_start, window_end, mae, rmse, bias, correlation, sample_count, low_confidence
		FROM performance_profiles
		WHERE 1=1`
	var args []any
	if f.Source != "" {
		q += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.Cell != 0 {
		q += " AND cell = ?"
		args = append(args, f.Cell.String())
	}
	if f.Bucket != "" {
		q += " AND bucket = ?"
		args = append(args, f.Bucket)
	}
	if f.Variable != "" {
		q += " AND variable = ?"
		args = append(args, string(f.Variable))
	}
	q += " ORDER BY source, cell, bucket, variable"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, depErr("query profiles", err)
	}
	defer rows.Close()

	var out []models.PerformanceProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, depErr("scan profile", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.PerformanceProfile, error) {
	var p models.PerformanceProfile
	var cell, variable string
	if err := row.Scan(&p.Source, &cell, &p.Bucket, &variable, &p.WindowStart, &p.WindowEnd,
		&p.MAE, &p.RMSE, &p.Bias, &p.Correlation, &p.SampleCount, &p.LowConfidence); err != nil {
		return nil, err
	}
	c, err := models.ParseCellID(cell)
	if err != nil {
		return nil, err
	}
	p.Cell = c
	p.Variable = models.Variable(variable)
	return &p, nil
}
