package config

import (
	"fmt"
	"time"

	"github.com/oneweather/oneweather/internal/models"
)

// Bounds is the plausible value range for a variable; values outside it are
// rejected by the normalizer.
type Bounds struct {
	Min float64
	Max float64
}

// Config carries every tunable the core components take at construction
// time. There is no ambient configuration: callers build one of these and
// pass it down.
type Config struct {
	// CellResolution is the H3 resolution all data is keyed at.
	CellResolution int

	// TargetOffsets is the canonical horizon grid forecasts are aligned to.
	TargetOffsets []time.Duration

	// HorizonBuckets group lead times for accuracy statistics.
	HorizonBuckets []models.HorizonBucket

	// ObsTolerance is the maximum time distance between a forecast valid
	// time and an observation matched to it.
	ObsTolerance time.Duration

	// MaxStationRadiusKm drops station-to-cell associations whose station
	// sits further than this from the cell centroid.
	MaxStationRadiusKm float64

	// MinSamples marks profiles computed from fewer pairs low-confidence.
	MinSamples int

	// FloorWeight is the minimum blend weight for any contributing source,
	// and the cap for low-confidence profiles.
	FloorWeight float64

	// EvalWindow is the rolling window evaluation looks back over.
	EvalWindow time.Duration

	// Retention bounds how long normalized points and observations are
	// kept before the sweep deletes them.
	Retention time.Duration

	// VariableBounds holds per-variable plausible ranges, in canonical
	// units.
	VariableBounds map[models.Variable]Bounds

	// DefaultRMSE is the climatological error substituted when a source
	// has no profile for the requested key, in canonical units.
	DefaultRMSE map[models.Variable]float64
}

// Default returns the standard configuration. Horizon grid and retention
// follow the upstream model cycle layout (hourly near-term, then 3-, 12- and
// 24-hourly out to two days).
func Default() Config {
	hours := func(hs ...int) []time.Duration {
		out := make([]time.Duration, len(hs))
		for i, h := range hs {
			out[i] = time.Duration(h) * time.Hour
		}
		return out
	}

	return Config{
		CellResolution: 6,
		TargetOffsets:  hours(0, 1, 3, 6, 12, 24, 48),
		HorizonBuckets: []models.HorizonBucket{
			{Name: "nowcast", Min: 0, Max: 1 * time.Hour},
			{Name: "short", Min: 1 * time.Hour, Max: 6 * time.Hour},
			{Name: "daily", Min: 6 * time.Hour, Max: 48*time.Hour + time.Nanosecond},
		},
		ObsTolerance:       30 * time.Minute,
		MaxStationRadiusKm: 25,
		MinSamples:         10,
		FloorWeight:        0.05,
		EvalWindow:         14 * 24 * time.Hour,
		Retention:          14 * 24 * time.Hour,
		VariableBounds: map[models.Variable]Bounds{
			models.VarTemperature:   {Min: -90, Max: 60},
			models.VarPrecipitation: {Min: 0, Max: 500},
			models.VarWindSpeed:     {Min: 0, Max: 120},
			models.VarHumidity:      {Min: 0, Max: 100},
			models.VarPressure:      {Min: 850, Max: 1100},
		},
		DefaultRMSE: map[models.Variable]float64{
			models.VarTemperature:   3.0,
			models.VarPrecipitation: 5.0,
			models.VarWindSpeed:     2.5,
			models.VarHumidity:      12.0,
			models.VarPressure:      4.0,
		},
	}
}

// BucketFor returns the horizon bucket containing the lead time, or false if
// none does.
func (c Config) BucketFor(horizon time.Duration) (models.HorizonBucket, bool) {
	for _, b := range c.HorizonBuckets {
		if b.Contains(horizon) {
			return b, true
		}
	}
	return models.HorizonBucket{}, false
}

// Validate rejects configurations the engines cannot run with.
func (c Config) Validate() error {
	if c.CellResolution < 0 || c.CellResolution > 15 {
		return fmt.Errorf("cell resolution %d outside H3 range 0-15", c.CellResolution)
	}
	if len(c.TargetOffsets) == 0 {
		return fmt.Errorf("no target offsets configured")
	}
	if len(c.HorizonBuckets) == 0 {
		return fmt.Errorf("no horizon buckets configured")
	}
	if c.ObsTolerance <= 0 {
		return fmt.Errorf("observation tolerance must be positive")
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("minimum sample count must be at least 1")
	}
	if c.FloorWeight <= 0 || c.FloorWeight >= 1 {
		return fmt.Errorf("floor weight %v outside (0,1)", c.FloorWeight)
	}
	if len(c.VariableBounds) == 0 {
		return fmt.Errorf("no variable bounds configured")
	}
	for v, b := range c.VariableBounds {
		if b.Min >= b.Max {
			return fmt.Errorf("bounds for %s: min %v >= max %v", v, b.Min, b.Max)
		}
	}
	return nil
}
