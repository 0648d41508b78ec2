package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/oneweather/oneweather/internal/models"
)

// UpsertModelRun records a run if it is new and returns the stored row.
// Runs are immutable: a second ingestion of the same (source, issued_at)
// keeps the original row.
func (s *Store) UpsertModelRun(ctx context.Context, run models.ModelRun) (models.ModelRun, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_runs (source, issued_at, resolution, ingested_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source, issued_at) DO NOTHING
	`, run.Source, run.IssuedAt.UTC(), run.Resolution, run.IngestedAt.UTC())
	if err != nil {
		return models.ModelRun{}, depErr("insert model run", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, issued_at, resolution, ingested_at
		FROM model_runs WHERE source = ? AND issued_at = ?
	`, run.Source, run.IssuedAt.UTC())

	var out models.ModelRun
	if err := row.Scan(&out.ID, &out.Source, &out.IssuedAt, &out.Resolution, &out.IngestedAt); err != nil {
		return models.ModelRun{}, depErr("select model run", err)
	}
	return out, nil
}

// InsertNormalizedPoints appends a batch of points in one transaction.
// Existing rows are never updated; supersession is by ingested_at on read.
func (s *Store) InsertNormalizedPoints(ctx context.Context, points []models.NormalizedForecastPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return depErr("begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO normalized_points (model_run_id, source, issued_at, cell, valid_time, variable, value, unit, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return depErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.ModelRunID, p.Source, p.IssuedAt.UTC(), p.Cell.String(), p.ValidTime.UTC(),
			string(p.Variable), p.Value, p.Unit, p.IngestedAt.UTC(),
		); err != nil {
			return depErr("insert normalized point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return depErr("commit points", err)
	}
	return nil
}

// PointsForEvaluation returns the current (most recently ingested) point per
// (run, valid time) for one source, cell and variable, ordered by valid time
// then issuance.
func (s *Store) PointsForEvaluation(ctx context.Context, source string, cell models.CellID, variable models.Variable, start, end time.Time) ([]models.NormalizedForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_run_id, source, issued_at, cell, valid_time, variable, value, unit, ingested_at
		FROM (
			SELECT p.*, ROW_NUMBER() OVER (
				PARTITION BY p.model_run_id, p.valid_time
				ORDER BY p.ingested_at DESC, p.id DESC
			) AS rn
			FROM normalized_points p
			WHERE p.source = ? AND p.cell = ? AND p.variable = ?
			  AND p.valid_time >= ? AND p.valid_time < ?
		)
		WHERE rn = 1
		ORDER BY valid_time ASC, issued_at ASC
	`, source, cell.String(), string(variable), start.UTC(), end.UTC())
	if err != nil {
		return nil, depErr("query evaluation points", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

// LatestPointsBySource returns, for one (cell, valid time, variable), the
// freshest non-superseded point from each source: newest issuance first,
// newest ingestion breaking ties.
func (s *Store) LatestPointsBySource(ctx context.Context, cell models.CellID, validTime time.Time, variable models.Variable) ([]models.NormalizedForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_run_id, source, issued_at, cell, valid_time, variable, value, unit, ingested_at
		FROM (
			SELECT p.*, ROW_NUMBER() OVER (
				PARTITION BY p.source
				ORDER BY p.issued_at DESC, p.ingested_at DESC, p.id DESC
			) AS rn
			FROM normalized_points p
			WHERE p.cell = ? AND p.valid_time = ? AND p.variable = ?
		)
		WHERE rn = 1
		ORDER BY source ASC
	`, cell.String(), validTime.UTC(), string(variable))
	if err != nil {
		return nil, depErr("query latest points", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

func scanPoints(rows *sql.Rows) ([]models.NormalizedForecastPoint, error) {
	var out []models.NormalizedForecastPoint
	for rows.Next() {
		var p models.NormalizedForecastPoint
		var cell, variable string
		if err := rows.Scan(&p.ModelRunID, &p.Source, &p.IssuedAt, &cell, &p.ValidTime, &variable, &p.Value, &p.Unit, &p.IngestedAt); err != nil {
			return nil, depErr("scan point", err)
		}
		c, err := models.ParseCellID(cell)
		if err != nil {
			return nil, depErr("decode cell", err)
		}
		p.Cell = c
		p.Variable = models.Variable(variable)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, depErr("iterate points", err)
	}
	return out, nil
}

// EvalKey identifies one unit of evaluation work.
type EvalKey struct {
	Source   string
	Cell     models.CellID
	Variable models.Variable
}

// ListEvaluationKeys enumerates the (source, cell, variable) tuples with
// forecast data in the window.
func (s *Store) ListEvaluationKeys(ctx context.Context, start, end time.Time) ([]EvalKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT source, cell, variable
		FROM normalized_points
		WHERE valid_time >= ? AND valid_time < ?
		ORDER BY source, cell, variable
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, depErr("list evaluation keys", err)
	}
	defer rows.Close()

	var out []EvalKey
	for rows.Next() {
		var k EvalKey
		var cell, variable string
		if err := rows.Scan(&k.Source, &cell, &variable); err != nil {
			return nil, depErr("scan evaluation key", err)
		}
		c, err := models.ParseCellID(cell)
		if err != nil {
			return nil, depErr("decode cell", err)
		}
		k.Cell = c
		k.Variable = models.Variable(variable)
		out = append(out, k)
	}
	return out, rows.Err()
}

// BlendKey identifies one unit of blending work.
type BlendKey struct {
	Cell      models.CellID
	ValidTime time.Time
	Variable  models.Variable
}

// ListBlendKeys enumerates the (cell, valid time, variable) tuples with
// forecast data in the window.
func (s *Store) ListBlendKeys(ctx context.Context, start, end time.Time) ([]BlendKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT cell, valid_time, variable
		FROM normalized_points
		WHERE valid_time >= ? AND valid_time < ?
		ORDER BY valid_time, cell, variable
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, depErr("list blend keys", err)
	}
	defer rows.Close()

	var out []BlendKey
	for rows.Next() {
		var k BlendKey
		var cell, variable string
		if err := rows.Scan(&cell, &k.ValidTime, &variable); err != nil {
			return nil, depErr("scan blend key", err)
		}
		c, err := models.ParseCellID(cell)
		if err != nil {
			return nil, depErr("decode cell", err)
		}
		k.Cell = c
		k.Variable = models.Variable(variable)
		out = append(out, k)
	}
	return out, rows.Err()
}

// SourceStatus summarizes one source's stored data for the status API.
type SourceStatus struct {
	Source       string    `json:"source"`
	LatestIssued time.Time `json:"latest_issued_at"`
	RunCount     int       `json:"run_count"`
	PointCount   int       `json:"point_count"`
}

func (s *Store) SourceStatuses(ctx context.Context) ([]SourceStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, issued_at, run_count,
		       (SELECT COUNT(*) FROM normalized_points p WHERE p.source = q.source)
		FROM (
			SELECT r.source AS source, r.issued_at AS issued_at,
			       ROW_NUMBER() OVER (PARTITION BY r.source ORDER BY r.issued_at DESC) AS rn,
			       COUNT(*) OVER (PARTITION BY r.source) AS run_count
			FROM model_runs r
		) q
		WHERE rn = 1
		ORDER BY source
	`)
	if err != nil {
		return nil, depErr("query source statuses", err)
	}
	defer rows.Close()

	var out []SourceStatus
	for rows.Next() {
		var st SourceStatus
		if err := rows.Scan(&st.Source, &st.LatestIssued, &st.RunCount, &st.PointCount); err != nil {
			return nil, depErr("scan source status", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SweepExpired deletes normalized points, observations and blended points
// older than cutoff. Returns the number of rows removed.
func (s *Store) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		"DELETE FROM normalized_points WHERE valid_time < ?",
		"DELETE FROM observations WHERE observed_at < ?",
		"DELETE FROM blended_points WHERE valid_time < ?",
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff.UTC())
		if err != nil {
			return total, depErr("sweep expired", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
