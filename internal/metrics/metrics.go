package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Acquisition metrics
	Acquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcecheck_acquisitions_total",
			Help: "Source acquisitions by outcome (fetched, cache, or error kind)",
		},
		[]string{"outcome"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sourcecheck_cache_hits_total",
			Help: "Acquisitions served from the content cache",
		},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sourcecheck_fetch_duration_seconds",
			Help:    "Network fetch duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
	)

	// Completion metrics
	Completions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcecheck_completions_total",
			Help: "Structured completions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcecheck_completion_tokens",
			Help:    "Tokens used per structured completion",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 20000, 50000},
		},
		[]string{"kind"},
	)

	// Verification metrics
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcecheck_verdicts_total",
			Help: "Verification verdicts by status",
		},
		[]string{"status"},
	)

	DroppedEvidence = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sourcecheck_dropped_evidence_total",
			Help: "Evidence items dropped for citing a source that was not fetched",
		},
	)

	// Run metrics
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcecheck_runs_total",
			Help: "Verification runs by terminal state",
		},
		[]string{"state"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sourcecheck_run_duration_seconds",
			Help:    "End-to-end verification run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Messaging metrics
	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcecheck_messages_total",
			Help: "Messages dispatched by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)
