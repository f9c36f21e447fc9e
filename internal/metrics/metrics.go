package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StrategyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_extract_strategy_attempts_total",
		Help: "Extraction strategy attempts by strategy and outcome",
	}, []string{"strategy", "outcome"})

	EnrichOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_enrich_outcomes_total",
		Help: "Enrichment attempts by platform and outcome",
	}, []string{"platform", "outcome"})

	EnrichDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stash_enrich_stage_duration_seconds",
		Help:    "Enrichment stage latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"stage"})

	QueueJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_queue_jobs_total",
		Help: "Queue jobs by driver and event",
	}, []string{"driver", "event"})

	SweepEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stash_sweep_enqueued_total",
		Help: "Cards re-enqueued by the sweeper",
	})
)

func RecordStrategy(strategy string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

func RecordEnrich(platform, outcome string) {
	EnrichOutcomes.WithLabelValues(platform, outcome).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	EnrichDuration.WithLabelValues(stage).Observe(d.Seconds())
}
