package models

import (
	"fmt"
	"strconv"
	"time"
)

// Variable identifies a forecast/observation variable. The string value is
// the canonical storage name, matching the column naming used downstream.
type Variable string

const (
	VarTemperature   Variable = "temperature_c"
	VarPrecipitation Variable = "precipitation_mm"
	VarWindSpeed     Variable = "wind_speed_mps"
	VarHumidity      Variable = "humidity_percent"
	VarPressure      Variable = "pressure_hpa"
)

// CanonicalUnit returns the unit all stored values of the variable use.
func (v Variable) CanonicalUnit() string {
	switch v {
	case VarTemperature:
		return "C"
	case VarPrecipitation:
		return "mm"
	case VarWindSpeed:
		return "m/s"
	case VarHumidity:
		return "%"
	case VarPressure:
		return "hPa"
	}
	return ""
}

// CellID is an H3 cell index at the configured resolution. The zero value is
// not a valid cell.
type CellID uint64

func (c CellID) String() string {
	return strconv.FormatUint(uint64(c), 16)
}

// ParseCellID parses the hex form produced by CellID.String.
func ParseCellID(s string) (CellID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cell id %q: %w", s, err)
	}
	return CellID(v), nil
}

// ModelRun is one issuance of one forecast source. Immutable once created;
// uniquely identified by (Source, IssuedAt).
type ModelRun struct {
	ID         int64
	Source     string
	IssuedAt   time.Time
	Resolution string // source-native grid tag, e.g. "0p25"
	IngestedAt time.Time
}

// RawPoint is the decoded ingestion tuple: whatever file format a connector
// reads, it hands the core this shape. Weight carries the fraction of the
// target cell the sample covers, for area-weighted aggregation; zero means 1.
type RawPoint struct {
	Latitude  float64
	Longitude float64
	ValidTime time.Time
	Variable  Variable
	Value     float64
	Unit      string
	Weight    float64
}

// NormalizedForecastPoint is a canonical per-cell forecast value. Rows are
// never mutated: re-ingesting the same run inserts new rows and readers pick
// the most recent IngestedAt per (run, cell, valid time, variable).
type NormalizedForecastPoint struct {
	ID         int64
	ModelRunID int64
	Source     string
	IssuedAt   time.Time
	Cell       CellID
	ValidTime  time.Time
	Variable   Variable
	Value      float64
	Unit       string
	IngestedAt time.Time
}

// Horizon is the forecast lead time of the point.
func (p NormalizedForecastPoint) Horizon() time.Duration {
	return p.ValidTime.Sub(p.IssuedAt)
}

// QualityFlag classifies an observation, METAR-style.
type QualityFlag string

const (
	QualityGood    QualityFlag = "good"
	QualitySuspect QualityFlag = "suspect"
	QualityBad     QualityFlag = "bad"
)

// Observation is a single measured value from a station, assigned to the
// cell its coordinates fall in. Immutable once ingested.
type Observation struct {
	ID             int64
	StationID      string
	Latitude       float64
	Longitude      float64
	Cell           CellID
	ObservedAt     time.Time
	Variable       Variable
	Value          float64
	Quality        QualityFlag
	StationDistKm  float64 // station to cell centroid
	IngestedAt     time.Time
}

// HorizonBucket groups lead times for accuracy statistics. A lead time d is
// in the bucket when Min <= d < Max.
type HorizonBucket struct {
	Name string
	Min  time.Duration
	Max  time.Duration
}

func (b HorizonBucket) Contains(d time.Duration) bool {
	return d >= b.Min && d < b.Max
}

// PerformanceProfile is the accuracy record for one (source, cell, bucket,
// variable) over one evaluation window. Recomputation replaces the existing
// row for the same key; the struct carries no wall-clock field so repeated
// evaluation over unchanged data is byte-identical.
type PerformanceProfile struct {
	Source        string
	Cell          CellID
	Bucket        string
	Variable      Variable
	WindowStart   time.Time
	WindowEnd     time.Time
	MAE           float64
	RMSE          float64
	Bias          float64
	Correlation   float64
	SampleCount   int
	LowConfidence bool
}

// SourceWeight records one source's contribution to a blended point.
type SourceWeight struct {
	Source string  `json:"source"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// BlendedForecastPoint is the combined estimate for one (cell, valid time,
// variable). Fully derived from normalized points and profiles; safe to
// discard and regenerate.
type BlendedForecastPoint struct {
	Cell       CellID
	ValidTime  time.Time
	Variable   Variable
	Value      float64
	Unit       string
	Confidence float64
	Sources    []SourceWeight
}
