package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oneweather/oneweather/internal/models"
)

// UpsertBlendedPoint replaces the blended value for its (cell, valid time,
// variable) key. Blended points are derived data; nothing here is a source
// of truth.
func (s *Store) UpsertBlendedPoint(ctx context.Context, p models.BlendedForecastPoint, now time.Time) error {
	sources, err := json.Marshal(p.Sources)
	if err != nil {
		return depErr("encode sources", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blended_points (cell, valid_time, variable, value, unit, confidence, sources_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell, valid_time, variable) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit,
			confidence = excluded.confidence,
			sources_json = excluded.sources_json,
			updated_at = excluded.updated_at
	`, p.Cell.String(), p.ValidTime.UTC(), string(p.Variable), p.Value, p.Unit, p.Confidence, string(sources), now.UTC())
	if err != nil {
		return depErr("upsert blended point", err)
	}
	return nil
}

// BlendedRange returns blended points for a cell and variable in
// [start, end), ordered by valid time.
func (s *Store) BlendedRange(ctx context.Context, cell models.CellID, variable models.Variable, start, end time.Time) ([]models.BlendedForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cell, valid_time, variable, value, unit, confidence, sources_json
		FROM blended_points
		WHERE cell = ? AND variable = ? AND valid_time >= ? AND valid_time < ?
		ORDER BY valid_time ASC
	`, cell.String(), string(variable), start.UTC(), end.UTC())
	if err != nil {
		return nil, depErr("query blended points", err)
	}
	defer rows.Close()

	var out []models.BlendedForecastPoint
	for rows.Next() {
		var p models.BlendedForecastPoint
		var cellStr, variableStr, sourcesJSON string
		if err := rows.Scan(&cellStr, &p.ValidTime, &variableStr, &p.Value, &p.Unit, &p.Confidence, &sourcesJSON); err != nil {
			return nil, depErr("scan blended point", err)
		}
		c, err := models.ParseCellID(cellStr)
		if err != nil {
			return nil, depErr("decode cell", err)
		}
		p.Cell = c
		p.Variable = models.Variable(variableStr)
		if err := json.Unmarshal([]byte(sourcesJSON), &p.Sources); err != nil {
			return nil, depErr("decode sources", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
