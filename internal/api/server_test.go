package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oneweather/oneweather/internal/config"
	"github.com/oneweather/oneweather/internal/geo"
	"github.com/oneweather/oneweather/internal/models"
	"github.com/oneweather/oneweather/internal/store"
)

var (
	testCell   = models.CellID(0x862a1072fffffff)
	testIssued = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
)

func setupServer(t *testing.T) (*httptest.Server, *store.Store) {
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

	srv := NewServer(st, geo.NewIndex(config.Default().CellResolution), "", logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func seedBlended(t *testing.T, st *store.Store) {
	t.Helper()
	for i, value := range []float64{21.0, 19.5} {
		p := models.BlendedForecastPoint{
			Cell:       testCell,
			ValidTime:  testIssued.Add(time.Duration(6*(i+1)) * time.Hour),
			Variable:   models.VarTemperature,
			Value:      value,
			Unit:       "C",
			Confidence: 0.4,
			Sources: []models.SourceWeight{
				{Source: "gfs", Weight: 0.75, Value: value - 1},
				{Source: "ecmwf", Weight: 0.25, Value: value + 3},
			},
		}
		if err := st.UpsertBlendedPoint(context.Background(), p, testIssued); err != nil {
			t.Fatalf("UpsertBlendedPoint: %v", err)
		}
	}
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestForecastByCell(t *testing.T) {
	ts, st := setupServer(t)
	seedBlended(t, st)

	from := testIssued.Format(time.RFC3339)
	to := testIssued.Add(48 * time.Hour).Format(time.RFC3339)
	resp := get(t, ts, "/api/v1/forecast?cell="+testCell.String()+
		"&variable=temperature_c&from="+from+"&to="+to)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body ForecastResponse
	decode(t, resp, &body)
	if body.Cell != testCell.String() {
		t.Errorf("cell = %q, want %q", body.Cell, testCell.String())
	}
	if len(body.Points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(body.Points))
	}
	p := body.Points[0]
	if p.Value != 21.0 || p.Unit != "C" {
		t.Errorf("points[0] = %+v, want 21.0 C", p)
	}
	if len(p.Sources) != 2 {
		t.Fatalf("sources = %+v, want per-source attribution", p.Sources)
	}
	if p.Sources[0].Source != "gfs" || p.Sources[0].Weight != 0.75 {
		t.Errorf("sources[0] = %+v, want gfs at 0.75", p.Sources[0])
	}
}

func TestForecastByLatLon(t *testing.T) {
	ts, st := setupServer(t)

	// Seed at the cell the query coordinates resolve to.
	idx := geo.NewIndex(config.Default().CellResolution)
	cell, err := idx.CellOf(40.015, -105.27)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	p := models.BlendedForecastPoint{
		Cell: cell, ValidTime: testIssued.Add(6 * time.Hour),
		Variable: models.VarTemperature, Value: 18, Unit: "C", Confidence: 0.5,
		Sources: []models.SourceWeight{{Source: "gfs", Weight: 1, Value: 18}},
	}
	if err := st.UpsertBlendedPoint(context.Background(), p, testIssued); err != nil {
		t.Fatalf("UpsertBlendedPoint: %v", err)
	}

	from := testIssued.Format(time.RFC3339)
	to := testIssued.Add(48 * time.Hour).Format(time.RFC3339)
	resp := get(t, ts, "/api/v1/forecast?lat=40.015&lon=-105.27"+
		"&variable=temperature_c&from="+from+"&to="+to)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body ForecastResponse
	decode(t, resp, &body)
	if body.Cell != cell.String() {
		t.Errorf("cell = %q, want resolved %q", body.Cell, cell.String())
	}
}

func TestForecastNoData(t *testing.T) {
	ts, _ := setupServer(t)

	resp := get(t, ts, "/api/v1/forecast?cell="+testCell.String()+"&variable=temperature_c")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "no_data" {
		t.Errorf("status = %q, want no_data", body["status"])
	}
}

func TestForecastBadRequest(t *testing.T) {
	ts, _ := setupServer(t)

	cases := []struct {
		name string
		path string
	}{
		{"missing variable", "/api/v1/forecast?cell=" + testCell.String()},
		{"unknown variable", "/api/v1/forecast?cell=" + testCell.String() + "&variable=vorticity"},
		{"missing location", "/api/v1/forecast?variable=temperature_c"},
		{"bad cell", "/api/v1/forecast?cell=zzz&variable=temperature_c"},
		{"bad lat", "/api/v1/forecast?lat=north&lon=0&variable=temperature_c"},
		{"out of range lat", "/api/v1/forecast?lat=95&lon=0&variable=temperature_c"},
		{"bad from", "/api/v1/forecast?cell=" + testCell.String() + "&variable=temperature_c&from=yesterday"},
		{"inverted window", "/api/v1/forecast?cell=" + testCell.String() +
			"&variable=temperature_c&from=2026-06-02T00:00:00Z&to=2026-06-01T00:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(t, ts, tc.path)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestPerformanceQuery(t *testing.T) {
	ts, st := setupServer(t)

	profiles := []models.PerformanceProfile{
		{Source: "gfs", Cell: testCell, Bucket: "short", Variable: models.VarTemperature,
			WindowStart: testIssued, WindowEnd: testIssued.Add(14 * 24 * time.Hour),
			MAE: 1.1, RMSE: 1.6, Correlation: 0.9, SampleCount: 40},
		{Source: "ecmwf", Cell: testCell, Bucket: "short", Variable: models.VarTemperature,
			WindowStart: testIssued, WindowEnd: testIssued.Add(14 * 24 * time.Hour),
			MAE: 0.9, RMSE: 1.3, Correlation: 0.92, SampleCount: 38},
	}
	for _, p := range profiles {
		if err := st.UpsertProfile(context.Background(), p, testIssued); err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
	}

	resp := get(t, ts, "/api/v1/performance?source=gfs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body []ProfileResponse
	decode(t, resp, &body)
	if len(body) != 1 {
		t.Fatalf("len(profiles) = %d, want 1 after source filter", len(body))
	}
	if body[0].Source != "gfs" || body[0].RMSE != 1.6 {
		t.Errorf("profile = %+v, want the gfs short profile", body[0])
	}

	resp = get(t, ts, "/api/v1/performance")
	var all []ProfileResponse
	decode(t, resp, &all)
	if len(all) != 2 {
		t.Errorf("len(profiles) = %d unfiltered, want 2", len(all))
	}

	resp = get(t, ts, "/api/v1/performance?variable=vorticity")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for unknown variable, want 400", resp.StatusCode)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	ts, st := setupServer(t)

	if _, err := st.UpsertModelRun(context.Background(), models.ModelRun{
		Source: "gfs", IssuedAt: testIssued, Resolution: "0p25", IngestedAt: testIssued,
	}); err != nil {
		t.Fatalf("UpsertModelRun: %v", err)
	}

	resp := get(t, ts, "/api/v1/sources")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body []store.SourceStatus
	decode(t, resp, &body)
	if len(body) != 1 || body[0].Source != "gfs" || body[0].RunCount != 1 {
		t.Errorf("body = %+v, want one gfs status", body)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := setupServer(t)

	resp := get(t, ts, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}
