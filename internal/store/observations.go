package store

import (
	"context"
	"time"

	"github.com/oneweather/oneweather/internal/models"
)

// InsertObservations appends a batch of observations in one transaction.
// Duplicate (station, time, variable) rows are ignored: observations are
// immutable once ingested.
func (s *Store) InsertObservations(ctx context.Context, obs []models.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return depErr("begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (station_id, latitude, longitude, cell, observed_at, variable, value, quality, station_dist_km, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at, variable) DO NOTHING
	`)
	if err != nil {
		return depErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx,
			o.StationID, o.Latitude, o.Longitude, o.Cell.String(), o.ObservedAt.UTC(),
			string(o.Variable), o.Value, string(o.Quality), o.StationDistKm, o.IngestedAt.UTC(),
		); err != nil {
			return depErr("insert observation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return depErr("commit observations", err)
	}
	return nil
}

// ObservationsForPairing returns good-quality observations for a cell and
// variable in [start, end), ordered by time then station distance so
// pairing tie-breaks are stable.
func (s *Store) ObservationsForPairing(ctx context.Context, cell models.CellID, variable models.Variable, start, end time.Time) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, latitude, longitude, cell, observed_at, variable, value, quality, station_dist_km, ingested_at
		FROM observations
		WHERE cell = ? AND variable = ? AND quality = ?
		  AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at ASC, station_dist_km ASC, station_id ASC
	`, cell.String(), string(variable), string(models.QualityGood), start.UTC(), end.UTC())
	if err != nil {
		return nil, depErr("query observations", err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var o models.Observation
		var cellStr, variableStr, quality string
		if err := rows.Scan(&o.ID, &o.StationID, &o.Latitude, &o.Longitude, &cellStr, &o.ObservedAt, &variableStr, &o.Value, &quality, &o.StationDistKm, &o.IngestedAt); err != nil {
			return nil, depErr("scan observation", err)
		}
		c, err := models.ParseCellID(cellStr)
		if err != nil {
			return nil, depErr("decode cell", err)
		}
		o.Cell = c
		o.Variable = models.Variable(variableStr)
		o.Quality = models.QualityFlag(quality)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, depErr("iterate observations", err)
	}
	return out, nil
}
