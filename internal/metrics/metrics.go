package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PointsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneweather_points_normalized_total",
			Help: "Normalized forecast points produced per source and variable",
		},
		[]string{"source", "variable"},
	)

	PointsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneweather_points_rejected_total",
			Help: "Raw points dropped during alignment and normalization",
		},
		[]string{"source", "reason"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneweather_observations_ingested_total",
			Help: "Observations accepted per variable",
		},
		[]string{"variable"},
	)

	ObservationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneweather_observations_rejected_total",
			Help: "Observations dropped at ingestion",
		},
		[]string{"reason"},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneweather_evaluations_total",
			Help: "Evaluation outcomes per source",
		},
		[]string{"source", "outcome"},
	)

	Blends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneweather_blends_total",
			Help: "Blend outcomes",
		},
		[]string{"outcome"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oneweather_batch_duration_seconds",
			Help:    "Duration of scheduled evaluation and blending batches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)
