package ingest

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/geo"
	"github.com/oneweather/oneweather/internal/models"
	"github.com/oneweather/oneweather/internal/normalize"
	"github.com/oneweather/oneweather/internal/store"
)

var testIssued = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

const (
	testLat = 40.015
	testLon = -105.27
)

func setupIngestor(t *testing.T) (*Ingestor, *store.Store, *geo.Index) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Default()
	idx := geo.NewIndex(cfg.CellResolution)
	norm := normalize.New(idx, cfg.VariableBounds, logger)
	clock := clockwork.NewFakeClockAt(testIssued.Add(time.Hour))
	return New(st, norm, idx, cfg, clock, logger), st, idx
}

func rawSeries(variable models.Variable, unit string, values map[int]float64) []models.RawPoint {
	var out []models.RawPoint
	for h, v := range values {
		out = append(out, models.RawPoint{
			Latitude:  testLat,
			Longitude: testLon,
			ValidTime: testIssued.Add(time.Duration(h) * time.Hour),
			Variable:  variable,
			Value:     v,
			Unit:      unit,
		})
	}
	return out
}

func TestIngestForecastAlignsToTargetGrid(t *testing.T) {
	in, st, idx := setupIngestor(t)
	ctx := context.Background()

	// Native series at 0,2,4,...,48h; the 1h and 3h targets fall between
	// samples and are interpolated.
	values := map[int]float64{}
	for h := 0; h <= 48; h += 2 {
		values[h] = float64(10 + h)
	}
	run := models.ModelRun{Source: "gfs", IssuedAt: testIssued, Resolution: "0p25"}

	stats, err := in.IngestForecast(ctx, run, rawSeries(models.VarTemperature, "C", values))
	if err != nil {
		t.Fatalf("IngestForecast: %v", err)
	}
	if stats.Normalized != 7 {
		t.Errorf("Normalized = %d, want all 7 targets", stats.Normalized)
	}
	if stats.OutOfRange != 0 {
		t.Errorf("OutOfRange = %d, want 0", stats.OutOfRange)
	}
	if stats.Run.ID == 0 {
		t.Error("run not persisted")
	}

	cell, err := idx.CellOf(testLat, testLon)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	points, err := st.PointsForEvaluation(ctx, "gfs", cell, models.VarTemperature,
		testIssued, testIssued.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("PointsForEvaluation: %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("len(points) = %d, want 7", len(points))
	}
	// The 3h target sits midway between the 2h and 4h samples.
	for _, p := range points {
		if p.ValidTime.Equal(testIssued.Add(3 * time.Hour)) {
			if p.Value != 13 {
				t.Errorf("3h value = %v, want interpolated 13", p.Value)
			}
		}
	}
}

func TestIngestForecastNeverExtrapolates(t *testing.T) {
	in, _, _ := setupIngestor(t)

	// Native coverage stops at 12h; the 24h and 48h targets are dropped.
	stats, err := in.IngestForecast(context.Background(),
		models.ModelRun{Source: "gfs", IssuedAt: testIssued},
		rawSeries(models.VarTemperature, "C", map[int]float64{0: 10, 6: 12, 12: 14}))
	if err != nil {
		t.Fatalf("IngestForecast: %v", err)
	}
	if stats.OutOfRange != 2 {
		t.Errorf("OutOfRange = %d, want 2", stats.OutOfRange)
	}
	if stats.Normalized != 5 {
		t.Errorf("Normalized = %d, want 5", stats.Normalized)
	}
}

func TestIngestForecastConvertsUnitsAndRejects(t *testing.T) {
	in, st, idx := setupIngestor(t)
	ctx := context.Background()

	raw := rawSeries(models.VarTemperature, "K", map[int]float64{0: 294.65, 48: 294.65})
	raw = append(raw, models.RawPoint{
		Latitude: 91, Longitude: 0, ValidTime: testIssued,
		Variable: models.VarTemperature, Value: 20, Unit: "C",
	})

	stats, err := in.IngestForecast(ctx,
		models.ModelRun{Source: "icon", IssuedAt: testIssued}, raw)
	if err != nil {
		t.Fatalf("IngestForecast: %v", err)
	}
	if stats.Rejected["invalid_coordinate"] == 0 {
		t.Errorf("Rejected = %v, want invalid_coordinate counted", stats.Rejected)
	}

	cell, _ := idx.CellOf(testLat, testLon)
	points, err := st.PointsForEvaluation(ctx, "icon", cell, models.VarTemperature,
		testIssued, testIssued.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("PointsForEvaluation: %v", err)
	}
	if len(points) == 0 {
		t.Fatal("no points stored")
	}
	for _, p := range points {
		if p.Value != 21.5 {
			t.Errorf("value = %v, want 21.5 (294.65K in C)", p.Value)
		}
		if p.Unit != "C" {
			t.Errorf("unit = %q, want canonical C", p.Unit)
		}
	}
}

func TestIngestObservations(t *testing.T) {
	in, st, idx := setupIngestor(t)
	ctx := context.Background()

	cell, err := idx.CellOf(testLat, testLon)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}

	inputs := []ObservationInput{
		{
			StationID: "KBDU", Latitude: testLat, Longitude: testLon,
			ObservedAt: testIssued, Variable: models.VarTemperature,
			Value: 294.65, Unit: "K",
		},
		{
			StationID: "BAD", Latitude: 91, Longitude: 0,
			ObservedAt: testIssued, Variable: models.VarTemperature,
			Value: 20, Unit: "C",
		},
		{
			StationID: "HOT", Latitude: testLat, Longitude: testLon,
			ObservedAt: testIssued, Variable: models.VarTemperature,
			Value: 200, Unit: "C",
		},
	}

	stats, err := in.IngestObservations(ctx, inputs)
	if err != nil {
		t.Fatalf("IngestObservations: %v", err)
	}
	if stats.Ingested != 1 {
		t.Errorf("Ingested = %d, want 1", stats.Ingested)
	}
	if stats.Rejected["invalid_coordinate"] != 1 || stats.Rejected["range_violation"] != 1 {
		t.Errorf("Rejected = %v, want one invalid_coordinate and one range_violation", stats.Rejected)
	}

	obs, err := st.ObservationsForPairing(ctx, cell, models.VarTemperature,
		testIssued.Add(-time.Hour), testIssued.Add(time.Hour))
	if err != nil {
		t.Fatalf("ObservationsForPairing: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("len(obs) = %d, want 1", len(obs))
	}
	o := obs[0]
	if o.Value != 21.5 {
		t.Errorf("value = %v, want 21.5", o.Value)
	}
	if o.Quality != models.QualityGood {
		t.Errorf("quality = %q, want default good", o.Quality)
	}
	if o.Cell != cell {
		t.Errorf("cell = %s, want %s", o.Cell, cell)
	}
}

func TestIngestObservationsOutsideRadius(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// With a near-zero radius every station lands outside its cell
	// centroid's reach.
	cfg := config.Default()
	cfg.MaxStationRadiusKm = 0.000001
	idx := geo.NewIndex(cfg.CellResolution)
	in := New(st, normalize.New(idx, cfg.VariableBounds, logger), idx, cfg,
		clockwork.NewFakeClockAt(testIssued), logger)

	stats, err := in.IngestObservations(context.Background(), []ObservationInput{{
		StationID: "KBDU", Latitude: testLat, Longitude: testLon,
		ObservedAt: testIssued, Variable: models.VarTemperature,
		Value: 20, Unit: "C",
	}})
	if err != nil {
		t.Fatalf("IngestObservations: %v", err)
	}
	if stats.Ingested != 0 || stats.Rejected["outside_radius"] != 1 {
		t.Errorf("stats = %+v, want the station rejected outside the radius", stats)
	}
}
