// Package blend combines the current per-source forecasts for a cell into a
// single estimate, weighted by each source's historical accuracy for the
// matching horizon bucket. Blended points are fully derived: recomputing
// with the same stored inputs yields the same output.
package blend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/metrics"
	"github.com/oneweather/oneweather/internal/models"
)

// minRMSE keeps inverse-RMSE weights finite for near-perfect sources.
const minRMSE = 0.1

// Store is the persistence contract blending reads and writes through.
type Store interface {
	LatestPointsBySource(ctx context.Context, cell models.CellID, validTime time.Time, variable models.Variable) ([]models.NormalizedForecastPoint, error)
	GetProfile(ctx context.Context, source string, cell models.CellID, bucket string, variable models.Variable) (*models.PerformanceProfile, error)
	UpsertBlendedPoint(ctx context.Context, p models.BlendedForecastPoint, now time.Time) error
}

type Engine struct {
	store  Store
	cfg    config.Config
	clock  clockwork.Clock
	logger *slog.Logger
}

func New(store Store, cfg config.Config, clock clockwork.Clock, logger *slog.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, clock: clock, logger: logger}
}

// contributor is one source's forecast plus its accuracy for the matching
// bucket.
type contributor struct {
	source        string
	value         float64
	rmse          float64
	lowConfidence bool
}

// Blend computes and stores the blended point for one (cell, valid time,
// variable). With no contributing sources it returns models.ErrNoData and
// writes nothing.
func (e *Engine) Blend(ctx context.Context, cell models.CellID, validTime time.Time, variable models.Variable) (models.BlendedForecastPoint, error) {
	points, err := e.store.LatestPointsBySource(ctx, cell, validTime, variable)
	if err != nil {
		return models.BlendedForecastPoint{}, fmt.Errorf("load forecasts: %w", err)
	}
	if len(points) == 0 {
		metrics.Blends.WithLabelValues("no_data").Inc()
		return models.BlendedForecastPoint{}, fmt.Errorf("%w: cell=%s %s at %s",
			models.ErrNoData, cell, variable, validTime.UTC().Format(time.RFC3339))
	}

	contributors := make([]contributor, 0, len(points))
	for _, p := range points {
		c := contributor{source: p.Source, value: p.Value, rmse: e.defaultRMSE(variable)}

		if bucket, ok := e.cfg.BucketFor(p.Horizon()); ok {
			profile, err := e.store.GetProfile(ctx, p.Source, cell, bucket.Name, variable)
			if err != nil {
				return models.BlendedForecastPoint{}, fmt.Errorf("load profile: %w", err)
			}
			if profile != nil {
				c.rmse = profile.RMSE
				c.lowConfidence = profile.LowConfidence
			}
		}
		contributors = append(contributors, c)
	}

	weights := computeWeights(contributors, e.cfg.FloorWeight)

	var value, weightedRMSE float64
	sources := make([]models.SourceWeight, len(contributors))
	for i, c := range contributors {
		value += weights[i] * c.value
		weightedRMSE += weights[i] * c.rmse
		sources[i] = models.SourceWeight{Source: c.source, Weight: weights[i], Value: c.value}
	}

	blended := models.BlendedForecastPoint{
		Cell:       cell,
		ValidTime:  validTime.UTC(),
		Variable:   variable,
		Value:      value,
		Unit:       variable.CanonicalUnit(),
		Confidence: confidence(weightedRMSE),
		Sources:    sources,
	}

	if err := e.store.UpsertBlendedPoint(ctx, blended, e.clock.Now()); err != nil {
		return models.BlendedForecastPoint{}, fmt.Errorf("store blended point: %w", err)
	}
	metrics.Blends.WithLabelValues("ok").Inc()
	return blended, nil
}

func (e *Engine) defaultRMSE(variable models.Variable) float64 {
	if rmse, ok := e.cfg.DefaultRMSE[variable]; ok {
		return rmse
	}
	return 1
}

// computeWeights turns per-source RMSE into blend weights: inverse-RMSE,
// floored so no source is fully excluded, with low-confidence profiles
// capped at the floor, then renormalized to sum to 1. A single contributor
// always gets weight 1.
func computeWeights(contributors []contributor, floor float64) []float64 {
	weights := make([]float64, len(contributors))
	if len(contributors) == 1 {
		weights[0] = 1
		return weights
	}

	var sum float64
	for i, c := range contributors {
		weights[i] = 1 / math.Max(c.rmse, minRMSE)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}

	sum = 0
	for i, c := range contributors {
		if weights[i] < floor {
			weights[i] = floor
		}
		if c.lowConfidence && weights[i] > floor {
			weights[i] = floor
		}
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// confidence maps the weighted mean RMSE of contributors to [0,1],
// monotonically decreasing in the error.
func confidence(weightedRMSE float64) float64 {
	c := 1 / (1 + weightedRMSE)
	return math.Max(0, math.Min(1, c))
}
