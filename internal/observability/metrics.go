package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metevents"

// Metrics holds the Prometheus counters, histograms, and gauges for storm detection.
type Metrics struct {
	CyclesCompleted prometheus.Counter
	StationsPolled  prometheus.Counter
	StationErrors   *prometheus.CounterVec // labels: source
	StormsDetected  *prometheus.CounterVec // labels: source
	StormsLoaded    prometheus.Counter
	LoadErrors      prometheus.Counter
	PipelineRunning prometheus.Gauge

	CycleDuration prometheus.Histogram

	// Station API metrics.
	FetchRequests *prometheus.CounterVec   // labels: source, outcome={success,error,empty}
	FetchDuration *prometheus.HistogramVec // labels: source
	FetchCache    *prometheus.CounterVec   // labels: backend={memory,redis}, result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_completed_total",
			Help:      "Total poll-detect-load cycles completed.",
		}),
		StationsPolled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_polled_total",
			Help:      "Total station fetches attempted.",
		}),
		StationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_errors_total",
			Help:      "Station fetch or detection failures by source.",
		}, []string{"source"}),
		StormsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storms_detected_total",
			Help:      "Storms delineated by source.",
		}, []string{"source"}),
		StormsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storms_loaded_total",
			Help:      "Storm records written to the sinks.",
		}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed attempts to write storm records.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete poll-detect-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Station API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Station API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		FetchCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cache_total",
			Help:      "Series cache lookups by backend and result.",
		}, []string{"backend", "result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CyclesCompleted,
		m.StationsPolled,
		m.StationErrors,
		m.StormsDetected,
		m.StormsLoaded,
		m.LoadErrors,
		m.PipelineRunning,
		m.CycleDuration,
		m.FetchRequests,
		m.FetchDuration,
		m.FetchCache,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on reg. Short-lived commands pass
// a private registry since nothing scrapes them.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}
