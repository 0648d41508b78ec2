package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/oneweather/oneweather/internal/models"
	"github.com/oneweather/oneweather/internal/store"
)

// ForecastPoint is one blended point as served to clients. Source
// attribution is part of the contract: consumers render per-source weights.
type ForecastPoint struct {
	ValidTime  time.Time             `json:"valid_time"`
	Value      float64               `json:"value"`
	Unit       string                `json:"unit"`
	Confidence float64               `json:"confidence"`
	Sources    []models.SourceWeight `json:"sources"`
}

type ForecastResponse struct {
	Cell     string          `json:"cell"`
	Variable string          `json:"variable"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Points   []ForecastPoint `json:"points"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	variable := models.Variable(q.Get("variable"))
	if variable.CanonicalUnit() == "" {
		badRequest(w, "unknown or missing variable")
		return
	}

	cell, ok := s.resolveCell(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	from, to := now, now.Add(48*time.Hour)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(w, "invalid from timestamp")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			badRequest(w, "invalid to timestamp")
			return
		}
	}
	if !to.After(from) {
		badRequest(w, "to must be after from")
		return
	}

	points, err := s.store.BlendedRange(r.Context(), cell, variable, from, to)
	if err != nil {
		s.logger.Error("forecast query failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	// Distinguish "nothing computed yet" from a malformed query: the
	// latter already returned 400 above.
	if len(points) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status": "no_data",
			"cell":   cell.String(),
		})
		return
	}

	resp := ForecastResponse{
		Cell:     cell.String(),
		Variable: string(variable),
		From:     from.UTC(),
		To:       to.UTC(),
	}
	for _, p := range points {
		resp.Points = append(resp.Points, ForecastPoint{
			ValidTime:  p.ValidTime,
			Value:      p.Value,
			Unit:       p.Unit,
			Confidence: p.Confidence,
			Sources:    p.Sources,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveCell accepts either an explicit cell id or a lat/lon pair. Writes
// a 400 and returns false on malformed input.
func (s *Server) resolveCell(w http.ResponseWriter, r *http.Request) (models.CellID, bool) {
	q := r.URL.Query()

	if cellStr := q.Get("cell"); cellStr != "" {
		cell, err := models.ParseCellID(cellStr)
		if err != nil {
			badRequest(w, "invalid cell id")
			return 0, false
		}
		return cell, true
	}

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" || lonStr == "" {
		badRequest(w, "cell or lat/lon required")
		return 0, false
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	if err1 != nil || err2 != nil {
		badRequest(w, "invalid lat/lon")
		return 0, false
	}
	cell, err := s.idx.CellOf(lat, lon)
	if err != nil {
		badRequest(w, "coordinate out of range")
		return 0, false
	}
	return cell, true
}

type ProfileResponse struct {
	Source        string    `json:"source"`
	Cell          string    `json:"cell"`
	Bucket        string    `json:"bucket"`
	Variable      string    `json:"variable"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	MAE           float64   `json:"mae"`
	RMSE          float64   `json:"rmse"`
	Bias          float64   `json:"bias"`
	Correlation   float64   `json:"correlation"`
	SampleCount   int       `json:"sample_count"`
	LowConfidence bool      `json:"low_confidence"`
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ProfileFilter{
		Source: q.Get("source"),
		Bucket: q.Get("bucket"),
	}
	if v := q.Get("variable"); v != "" {
		variable := models.Variable(v)
		if variable.CanonicalUnit() == "" {
			badRequest(w, "unknown variable")
			return
		}
		filter.Variable = variable
	}
	if v := q.Get("cell"); v != "" {
		cell, err := models.ParseCellID(v)
		if err != nil {
			badRequest(w, "invalid cell id")
			return
		}
		filter.Cell = cell
	}

	profiles, err := s.store.QueryProfiles(r.Context(), filter)
	if err != nil {
		s.logger.Error("performance query failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProfileResponse{
			Source:        p.Source,
			Cell:          p.Cell.String(),
			Bucket:        p.Bucket,
			Variable:      string(p.Variable),
			WindowStart:   p.WindowStart,
			WindowEnd:     p.WindowEnd,
			MAE:           p.MAE,
			RMSE:          p.RMSE,
			Bias:          p.Bias,
			Correlation:   p.Correlation,
			SampleCount:   p.SampleCount,
			LowConfidence: p.LowConfidence,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.store.SourceStatuses(r.Context())
	if err != nil {
		s.logger.Error("sources query failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
