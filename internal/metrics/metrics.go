// Package metrics holds the Prometheus instruments of the draft pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the draft pipeline.
//
// Metrics:
//   - drafter_drafts_total{kind} - drafts produced ("reply", "silent", "failed")
//   - drafter_model_calls_total{stage,outcome} - model calls by stage and outcome
//   - drafter_model_retries_total{stage} - retried model attempts
//   - drafter_pipeline_duration_seconds - end-to-end duration of one email
//   - drafter_pattern_cache_total{result} - writing pattern cache lookups ("hit", "miss", "wait_hit")
type Metrics struct {
	DraftsTotal      *prometheus.CounterVec
	ModelCallsTotal  *prometheus.CounterVec
	ModelRetries     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	PatternCache     *prometheus.CounterVec
}

// New creates and registers the metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DraftsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafter_drafts_total",
				Help: "Total number of processed emails by outcome",
			},
			[]string{"kind"},
		),
		ModelCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafter_model_calls_total",
				Help: "Total number of model call attempts",
			},
			[]string{"stage", "outcome"},
		),
		ModelRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafter_model_retries_total",
				Help: "Total number of retried model calls",
			},
			[]string{"stage"},
		),
		PipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "drafter_pipeline_duration_seconds",
				Help:    "Duration of one pipeline run in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
		),
		PatternCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafter_pattern_cache_total",
				Help: "Writing pattern cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// NewNop returns metrics registered on a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
