package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lightning_etl"

// Metrics holds the Prometheus collectors for feed runs.
type Metrics struct {
	Runs              *prometheus.CounterVec   // labels: feed, outcome={success,failure}
	StageErrors       *prometheus.CounterVec   // labels: feed, stage
	StageDuration     *prometheus.HistogramVec // labels: feed, stage
	FeaturesLoaded    *prometheus.GaugeVec     // labels: feed
	InvalidTimestamps *prometheus.CounterVec   // labels: feed
	LastSuccess       *prometheus.GaugeVec     // labels: feed
	RowMismatch       *prometheus.CounterVec   // labels: feed

	registry *prometheus.Registry
}

// NewMetrics creates feed metrics and registers them with the default
// Prometheus registry, so /metrics and the Pushgateway see them.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry holding these metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Feed runs by outcome.",
		}, []string{"feed", "outcome"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Feed run failures by stage.",
		}, []string{"feed", "stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"feed", "stage"}),
		FeaturesLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features_loaded",
			Help:      "Features in the most recent successful load.",
		}, []string{"feed"}),
		InvalidTimestamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_timestamps_total",
			Help:      "Features whose UTCDATETIME was missing or not numeric.",
		}, []string{"feed"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful load.",
		}, []string{"feed"}),
		RowMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_count_mismatch_total",
			Help:      "Loads whose table row count differed from the staged feature count.",
		}, []string{"feed"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.StageErrors,
		m.StageDuration,
		m.FeaturesLoaded,
		m.InvalidTimestamps,
		m.LastSuccess,
		m.RowMismatch,
	}
}
