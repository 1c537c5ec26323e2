// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Fetch metrics
	LiveWindowsFetched  prometheus.Counter
	HistoryPagesFetched prometheus.Counter
	CandlesFetched      *prometheus.CounterVec
	FetchRetries        *prometheus.CounterVec
	FetchErrors         *prometheus.CounterVec
	RateLimitHits       prometheus.Counter
	RequestLatency      *prometheus.HistogramVec

	// Merge and validation metrics
	DuplicatesRemoved prometheus.Counter
	GapsDetected      prometheus.Counter
	MissingSteps      *prometheus.GaugeVec

	// Dataset metrics
	SeriesBuilt      *prometheus.CounterVec
	SeriesFailed     *prometheus.CounterVec
	DatasetRowCount  *prometheus.GaugeVec
	BuildDuration    *prometheus.HistogramVec
	CandlesStored    prometheus.Counter

	// Health metrics
	LastSuccessfulBuild prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "okx_candle_lab"
	}

	return &Metrics{
		LiveWindowsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "live_windows_total",
			Help:      "Total number of live window fetches",
		}),
		HistoryPagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "history_pages_total",
			Help:      "Total number of history pages fetched",
		}),
		CandlesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "candles_total",
			Help:      "Total number of candles fetched by instrument",
		}, []string{"instrument", "interval"}),
		FetchRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total number of fetch retries by error class",
		}, []string{"error_class"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total number of terminal fetch errors by error class",
		}, []string{"error_class"}),
		RateLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit responses from the source",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "request_duration_seconds",
			Help:      "Source request latency by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		DuplicatesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "duplicates_removed_total",
			Help:      "Total number of overlapping candles removed by the merger",
		}),
		GapsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "continuity",
			Name:      "gaps_total",
			Help:      "Total number of gaps detected in merged series",
		}),
		MissingSteps: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "continuity",
			Name:      "missing_steps",
			Help:      "Missing interval steps in the most recent build per series",
		}, []string{"instrument", "interval"}),

		SeriesBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "series_built_total",
			Help:      "Total number of series built by instrument",
		}, []string{"instrument", "interval"}),
		SeriesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "series_failed_total",
			Help:      "Total number of series builds that failed",
		}, []string{"instrument", "interval"}),
		DatasetRowCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "rows",
			Help:      "Rows in the most recently built dataset per series",
		}, []string{"instrument", "interval"}),
		BuildDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "build_duration_seconds",
			Help:      "End-to-end series build duration",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"instrument", "interval"}),
		CandlesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "candles_stored_total",
			Help:      "Total number of candle rows written to storage",
		}),

		LastSuccessfulBuild: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_build_timestamp_seconds",
			Help:      "Unix timestamp of the last successful dataset build",
		}),
	}
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
