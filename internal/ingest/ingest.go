// Package ingest is the boundary between decoded source data and the core:
// it aligns each source's native forecast-hour series onto the canonical
// horizon grid, runs normalization, associates observation stations with
// cells, and persists the results. Connectors for specific providers live
// outside this module and only need to produce the tuple shapes accepted
// here.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oneweather/oneweather/internal/align"
	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/geo"
	"github.com/oneweather/oneweather/internal/metrics"
	"github.com/oneweather/oneweather/internal/models"
	"github.com/oneweather/oneweather/internal/normalize"
	"github.com/oneweather/oneweather/internal/store"
)

type Ingestor struct {
	store  *store.Store
	norm   *normalize.Normalizer
	idx    *geo.Index
	cfg    config.Config
	clock  clockwork.Clock
	logger *slog.Logger
}

func New(st *store.Store, norm *normalize.Normalizer, idx *geo.Index, cfg config.Config, clock clockwork.Clock, logger *slog.Logger) *Ingestor {
	return &Ingestor{store: st, norm: norm, idx: idx, cfg: cfg, clock: clock, logger: logger}
}

// ForecastStats reports what one run ingestion did. Rejected is keyed by
// the normalizer's rejection reasons plus "out_of_range" for alignment
// targets outside the native coverage.
type ForecastStats struct {
	Run        models.ModelRun
	Normalized int
	OutOfRange int
	Rejected   map[string]int
}

// IngestForecast aligns and normalizes one model run's raw points and
// persists the survivors. Point-level defects are dropped and counted;
// only dependency faults fail the call.
func (in *Ingestor) IngestForecast(ctx context.Context, run models.ModelRun, raw []models.RawPoint) (ForecastStats, error) {
	run.IngestedAt = in.clock.Now().UTC()
	run, err := in.store.UpsertModelRun(ctx, run)
	if err != nil {
		return ForecastStats{}, fmt.Errorf("record model run: %w", err)
	}

	aligned, outOfRange := in.alignSeries(run, raw)

	res := in.norm.Normalize(aligned, run, run.IngestedAt)
	if err := in.store.InsertNormalizedPoints(ctx, res.Points); err != nil {
		return ForecastStats{}, fmt.Errorf("store points: %w", err)
	}

	stats := ForecastStats{
		Run:        run,
		Normalized: len(res.Points),
		OutOfRange: outOfRange,
		Rejected:   res.Rejected,
	}
	in.logger.Info("forecast ingested",
		"source", run.Source, "issued_at", run.IssuedAt,
		"normalized", stats.Normalized, "out_of_range", stats.OutOfRange,
		"rejected", stats.Rejected)
	return stats, nil
}

// alignSeries groups raw points into per-location, per-variable series and
// interpolates each onto the configured target offsets. Targets outside a
// series' native range are omitted and counted, never extrapolated.
func (in *Ingestor) alignSeries(run models.ModelRun, raw []models.RawPoint) ([]models.RawPoint, int) {
	type seriesKey struct {
		lat, lon float64
		variable models.Variable
		unit     string
	}
	type series struct {
		samples []align.Sample
		weight  float64
	}

	groups := make(map[seriesKey]*series)
	var order []seriesKey
	for _, p := range raw {
		k := seriesKey{lat: p.Latitude, lon: p.Longitude, variable: p.Variable, unit: p.Unit}
		g, ok := groups[k]
		if !ok {
			g = &series{weight: p.Weight}
			groups[k] = g
			order = append(order, k)
		}
		g.samples = append(g.samples, align.Sample{
			Offset: p.ValidTime.Sub(run.IssuedAt),
			Value:  p.Value,
		})
	}

	var aligned []models.RawPoint
	outOfRange := 0
	for _, k := range order {
		res := align.Interpolate(groups[k].samples, in.cfg.TargetOffsets)
		outOfRange += res.OutOfRange
		for _, s := range res.Points {
			aligned = append(aligned, models.RawPoint{
				Latitude:  k.lat,
				Longitude: k.lon,
				ValidTime: run.IssuedAt.Add(s.Offset),
				Variable:  k.variable,
				Value:     s.Value,
				Unit:      k.unit,
				Weight:    groups[k].weight,
			})
		}
	}
	if outOfRange > 0 {
		metrics.PointsRejected.WithLabelValues(run.Source, "out_of_range").Add(float64(outOfRange))
	}
	return aligned, outOfRange
}

// ObservationInput is the decoded observation tuple supplied by an
// observation connector.
type ObservationInput struct {
	StationID  string
	Latitude   float64
	Longitude  float64
	ObservedAt time.Time
	Variable   models.Variable
	Value      float64
	Unit       string
	Quality    models.QualityFlag
}

// ObservationStats reports what one observation batch ingestion did.
type ObservationStats struct {
	Ingested int
	Rejected map[string]int
}

// IngestObservations assigns each observation to its cell, validates the
// station-to-cell association and the value range, and persists the batch.
func (in *Ingestor) IngestObservations(ctx context.Context, inputs []ObservationInput) (ObservationStats, error) {
	stats := ObservationStats{Rejected: make(map[string]int)}
	now := in.clock.Now().UTC()

	reject := func(reason string) {
		stats.Rejected[reason]++
		metrics.ObservationsRejected.WithLabelValues(reason).Inc()
	}

	var batch []models.Observation
	for _, o := range inputs {
		cell, err := in.idx.CellOf(o.Latitude, o.Longitude)
		if err != nil {
			reject("invalid_coordinate")
			continue
		}

		distKm, err := in.idx.DistanceToCentroidKm(cell, o.Latitude, o.Longitude)
		if err != nil || distKm > in.cfg.MaxStationRadiusKm {
			reject("outside_radius")
			continue
		}

		value, err := normalize.Convert(o.Value, o.Unit, o.Variable)
		if err != nil {
			reject("unknown_unit")
			continue
		}
		bounds, ok := in.cfg.VariableBounds[o.Variable]
		if !ok || value < bounds.Min || value > bounds.Max {
			reject("range_violation")
			continue
		}

		quality := o.Quality
		if quality == "" {
			quality = models.QualityGood
		}

		batch = append(batch, models.Observation{
			StationID:     o.StationID,
			Latitude:      o.Latitude,
			Longitude:     o.Longitude,
			Cell:          cell,
			ObservedAt:    o.ObservedAt.UTC(),
			Variable:      o.Variable,
			Value:         value,
			Quality:       quality,
			StationDistKm: distKm,
			IngestedAt:    now,
		})
		metrics.ObservationsIngested.WithLabelValues(string(o.Variable)).Inc()
	}

	if err := in.store.InsertObservations(ctx, batch); err != nil {
		return ObservationStats{}, fmt.Errorf("store observations: %w", err)
	}
	stats.Ingested = len(batch)

	if len(stats.Rejected) > 0 {
		in.logger.Warn("observation ingestion dropped records",
			"ingested", stats.Ingested, "rejected", stats.Rejected)
	}
	return stats, nil
}
