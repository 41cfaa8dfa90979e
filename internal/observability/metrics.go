package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_insight"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Resolution and analysis outcomes.
	ResolveRequests    *prometheus.CounterVec // labels: outcome={ok,input,resolution,unexpected}
	RelevanceFallbacks prometheus.Counter
	AnalysisRequests   *prometheus.CounterVec // labels: outcome={ok,input,no_data,data_quality,unexpected,disconnected}
	StationFetchErrors prometheus.Counter
	StreamDisconnects  prometheus.Counter
	AnalysisDuration   prometheus.Histogram

	// Inference provider and its throttle.
	InferenceCalls *prometheus.CounterVec // labels: kind={complete,stream}, outcome={success,error}
	QueueDepth     prometheus.Gauge
	QueueWait      prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ResolveRequests,
		m.RelevanceFallbacks,
		m.AnalysisRequests,
		m.StationFetchErrors,
		m.StreamDisconnects,
		m.AnalysisDuration,
		m.InferenceCalls,
		m.QueueDepth,
		m.QueueWait,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_requests_total",
			Help:      "Query resolution requests by outcome.",
		}, []string{"outcome"}),
		RelevanceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_fallbacks_total",
			Help:      "Relevance filter responses replaced by the nearest-first fallback.",
		}),
		AnalysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Streaming analysis requests by outcome.",
		}, []string{"outcome"}),
		StationFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_fetch_errors_total",
			Help:      "Station history fetches dropped from an analysis.",
		}),
		StreamDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_disconnects_total",
			Help:      "Analysis streams closed by the client before the summary.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of a streaming analysis from fetch to close.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		InferenceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_calls_total",
			Help:      "Completion provider calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_queue_depth",
			Help:      "Jobs waiting in the inference queue.",
		}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_queue_wait_seconds",
			Help:      "Time between enqueue and start of an inference job.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
