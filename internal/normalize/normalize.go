// Package normalize converts raw per-source gridded values into canonical
// per-cell records: unit conversion, spatial indexing, area-weighted
// aggregation of sub-cell samples, and plausibility checks. Defective points
// are dropped and counted, never fatal to the batch.
package normalize

import (
	"log/slog"
	"sort"
	"time"

	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/geo"
	"github.com/oneweather/oneweather/internal/metrics"
	"github.com/oneweather/oneweather/internal/models"
)

// Rejection reasons reported in Result.Rejected and on the rejection
// counter.
const (
	ReasonInvalidCoordinate = "invalid_coordinate"
	ReasonUnknownUnit       = "unknown_unit"
	ReasonRangeViolation    = "range_violation"
)

type Normalizer struct {
	idx    *geo.Index
	bounds map[models.Variable]config.Bounds
	logger *slog.Logger
}

func New(idx *geo.Index, bounds map[models.Variable]config.Bounds, logger *slog.Logger) *Normalizer {
	return &Normalizer{idx: idx, bounds: bounds, logger: logger}
}

// Result is the outcome of normalizing one batch. Partial success is the
// normal case: Points holds what survived, Rejected counts what did not.
type Result struct {
	Points   []models.NormalizedForecastPoint
	Rejected map[string]int
}

func (r Result) TotalRejected() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// Normalize converts a batch of raw points belonging to one model run.
// Samples that land in the same (cell, valid time, variable) are combined by
// area-weighted mean. Output order is deterministic.
func (n *Normalizer) Normalize(raw []models.RawPoint, run models.ModelRun, ingestedAt time.Time) Result {
	res := Result{Rejected: make(map[string]int)}

	type key struct {
		cell      models.CellID
		validTime time.Time
		variable  models.Variable
	}
	type acc struct {
		weightedSum float64
		weightSum   float64
	}
	groups := make(map[key]*acc)
	var order []key

	for _, rp := range raw {
		value, err := Convert(rp.Value, rp.Unit, rp.Variable)
		if err != nil {
			n.reject(&res, run.Source, ReasonUnknownUnit)
			continue
		}

		bounds, ok := n.bounds[rp.Variable]
		if !ok || value < bounds.Min || value > bounds.Max {
			n.reject(&res, run.Source, ReasonRangeViolation)
			continue
		}

		cell, err := n.idx.CellOf(rp.Latitude, rp.Longitude)
		if err != nil {
			n.reject(&res, run.Source, ReasonInvalidCoordinate)
			continue
		}

		weight := rp.Weight
		if weight <= 0 {
			weight = 1
		}

		k := key{cell: cell, validTime: rp.ValidTime.UTC(), variable: rp.Variable}
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
			order = append(order, k)
		}
		g.weightedSum += value * weight
		g.weightSum += weight
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if !a.validTime.Equal(b.validTime) {
			return a.validTime.Before(b.validTime)
		}
		if a.cell != b.cell {
			return a.cell < b.cell
		}
		return a.variable < b.variable
	})

	for _, k := range order {
		g := groups[k]
		res.Points = append(res.Points, models.NormalizedForecastPoint{
			ModelRunID: run.ID,
			Source:     run.Source,
			IssuedAt:   run.IssuedAt.UTC(),
			Cell:       k.cell,
			ValidTime:  k.validTime,
			Variable:   k.variable,
			Value:      g.weightedSum / g.weightSum,
			Unit:       k.variable.CanonicalUnit(),
			IngestedAt: ingestedAt.UTC(),
		})
		metrics.PointsNormalized.WithLabelValues(run.Source, string(k.variable)).Inc()
	}

	if total := res.TotalRejected(); total > 0 {
		n.logger.Warn("normalization dropped points",
			"source", run.Source, "dropped", total, "kept", len(res.Points))
	}
	return res
}

func (n *Normalizer) reject(res *Result, source, reason string) {
	res.Rejected[reason]++
	metrics.PointsRejected.WithLabelValues(source, reason).Inc()
}
