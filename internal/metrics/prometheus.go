package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instruments for the generation pipeline. Scraped from /metrics.
var (
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strudel_generations_total",
		Help: "Completed pattern generations by source and outcome.",
	}, []string{"source", "outcome"}) // source: user|evolve, outcome: success|upstream_error|engine_error

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strudel_generation_duration_seconds",
		Help:    "Wall-clock duration of completion relay calls.",
		Buckets: prometheus.DefBuckets,
	})

	HistoryLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strudel_history_length",
		Help: "Number of records in the session history.",
	})

	PlaybackActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strudel_playback_active",
		Help: "1 while a pattern is playing, else 0.",
	})

	EvolveArmed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strudel_evolve_armed",
		Help: "1 while the auto-evolve scheduler is armed, else 0.",
	})
)

// SetPlaybackActive updates the playback gauge from a boolean.
func SetPlaybackActive(playing bool) {
	if playing {
		PlaybackActive.Set(1)
	} else {
		PlaybackActive.Set(0)
	}
}

// SetEvolveArmed updates the evolve gauge from a boolean.
func SetEvolveArmed(armed bool) {
	if armed {
		EvolveArmed.Set(1)
	} else {
		EvolveArmed.Set(0)
	}
}
