// Package eval scores forecast-source accuracy per (source, cell, horizon
// bucket, variable) by pairing normalized forecasts with ground-truth
// observations over a rolling window. Recomputation replaces the stored
// profile; evaluation over unchanged data is idempotent.
package eval

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

// Store is the persistence contract evaluation reads and writes through.
type Store interface {
	PointsForEvaluation(ctx context.Context, source string, cell models.CellID, variable models.Variable, start, end time.Time) ([]models.NormalizedForecastPoint, error)
	ObservationsForPairing(ctx context.Context, cell models.CellID, variable models.Variable, start, end time.Time) ([]models.Observation, error)
	UpsertProfile(ctx context.Context, p models.PerformanceProfile, now time.Time) error
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

// pair is one matched forecast/observation sample.
type pair struct {
	forecast float64
	observed float64
}

// Evaluate computes and stores the performance profile for one key. With
// zero pairs it returns models.ErrInsufficientData and writes nothing, so
// any previous profile stays current. With fewer than the configured minimum
// it still writes, flagged low-confidence.
func (e *Engine) Evaluate(ctx context.Context, source string, cell models.CellID, bucket models.HorizonBucket, variable models.Variable, windowStart, windowEnd time.Time) (models.PerformanceProfile, error) {
	points, err := e.store.PointsForEvaluation(ctx, source, cell, variable, windowStart, windowEnd)
	if err != nil {
		return models.PerformanceProfile{}, fmt.Errorf("load forecasts: %w", err)
	}

	inBucket := points[:0:0]
	for _, p := range points {
		if bucket.Contains(p.Horizon()) {
			inBucket = append(inBucket, p)
		}
	}

	var pairs []pair
	if len(inBucket) > 0 {
		obs, err := e.store.ObservationsForPairing(ctx, cell, variable,
			windowStart.Add(-e.cfg.ObsTolerance), windowEnd.Add(e.cfg.ObsTolerance))
		if err != nil {
			return models.PerformanceProfile{}, fmt.Errorf("load observations: %w", err)
		}
		pairs = matchPairs(inBucket, obs, e.cfg.ObsTolerance)
	}

	if len(pairs) == 0 {
		metrics.Evaluations.WithLabelValues(source, "insufficient_data").Inc()
		return models.PerformanceProfile{}, fmt.Errorf("%w: %s cell=%s bucket=%s %s",
			models.ErrInsufficientData, source, cell, bucket.Name, variable)
	}

	profile := models.PerformanceProfile{
		Source:        source,
		Cell:          cell,
		Bucket:        bucket.Name,
		Variable:      variable,
		WindowStart:   windowStart.UTC(),
		WindowEnd:     windowEnd.UTC(),
		SampleCount:   len(pairs),
		LowConfidence: len(pairs) < e.cfg.MinSamples,
	}
	profile.MAE, profile.RMSE, profile.Bias, profile.Correlation = score(pairs)

	if err := e.store.UpsertProfile(ctx, profile, e.clock.Now()); err != nil {
		return models.PerformanceProfile{}, fmt.Errorf("store profile: %w", err)
	}

	metrics.Evaluations.WithLabelValues(source, "ok").Inc()
	if profile.LowConfidence {
		e.logger.Debug("low-confidence profile",
			"source", source, "cell", cell.String(), "bucket", bucket.Name,
			"variable", variable, "samples", profile.SampleCount)
	}
	return profile, nil
}

// matchPairs pairs each forecast point with the observation closest in time
// within the tolerance. Ties on time distance go to the observation whose
// station is nearest the cell centroid; the observation list is already
// ordered by time then station distance, so the scan is stable.
func matchPairs(points []models.NormalizedForecastPoint, obs []models.Observation, tolerance time.Duration) []pair {
	var pairs []pair
	for _, p := range points {
		best := -1
		var bestDelta time.Duration
		for i, o := range obs {
			delta := o.ObservedAt.Sub(p.ValidTime)
			if delta < 0 {
				delta = -delta
			}
			if delta > tolerance {
				continue
			}
			if best < 0 || delta < bestDelta {
				best = i
				bestDelta = delta
				continue
			}
			if delta == bestDelta && obs[i].StationDistKm < obs[best].StationDistKm {
				best = i
			}
		}
		if best >= 0 {
			pairs = append(pairs, pair{forecast: p.Value, observed: obs[best].Value})
		}
	}
	return pairs
}

// score computes MAE, RMSE, bias (mean forecast minus observed) and Pearson
// correlation over the pairs. Correlation is zero when it is undefined
// (fewer than two pairs, or zero variance on either side).
func score(pairs []pair) (mae, rmse, bias, corr float64) {
	n := float64(len(pairs))
	var sumAbs, sumSq, sumErr float64
	var sumF, sumO float64
	for _, p := range pairs {
		err := p.forecast - p.observed
		sumAbs += math.Abs(err)
		sumSq += err * err
		sumErr += err
		sumF += p.forecast
		sumO += p.observed
	}
	mae = sumAbs / n
	rmse = math.Sqrt(sumSq / n)
	bias = sumErr / n

	if len(pairs) < 2 {
		return mae, rmse, bias, 0
	}
	meanF, meanO := sumF/n, sumO/n
	var cov, varF, varO float64
	for _, p := range pairs {
		df, do := p.forecast-meanF, p.observed-meanO
		cov += df * do
		varF += df * df
		varO += do * do
	}
	if varF == 0 || varO == 0 {
		return mae, rmse, bias, 0
	}
	return mae, rmse, bias, cov / math.Sqrt(varF*varO)
}
