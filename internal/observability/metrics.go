package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// location and heatmap pipeline.
type Metrics struct {
	// Location resolution.
	ResolveTotal *prometheus.CounterVec // labels: outcome={success,short_circuit,permission_denied,unavailable}
	NameSource   *prometheus.CounterVec // labels: source={geocoder,config,none}

	// Reverse geocoding.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Map configuration.
	ConfigFetch *prometheus.CounterVec // labels: outcome={success,fallback,cache_hit}

	// Aggregation.
	AggregationPasses   prometheus.Counter
	AggregationDuration prometheus.Histogram
	HeatmapPoints       prometheus.Gauge
	AggregatorRunning   prometheus.Gauge

	// Feeds.
	SignalsIngested  prometheus.Counter
	ReportsIngested  prometheus.Counter
	ReportsSubmitted prometheus.Counter
	FeedDecodeErrors prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the
// default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ResolveTotal,
		m.NameSource,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.ConfigFetch,
		m.AggregationPasses,
		m.AggregationDuration,
		m.HeatmapPoints,
		m.AggregatorRunning,
		m.SignalsIngested,
		m.ReportsIngested,
		m.ReportsSubmitted,
		m.FeedDecodeErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so
// parallel tests do not trip "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ResolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "resolve_total",
			Help:      "Location resolution attempts by outcome.",
		}, []string{"outcome"}),
		NameSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "name_source_total",
			Help:      "Which fallback produced the place name.",
		}, []string{"source"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		ConfigFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "config_fetch_total",
			Help:      "Map configuration requests by outcome.",
		}, []string{"outcome"}),
		AggregationPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "aggregation_passes_total",
			Help:      "Completed risk aggregation passes.",
		}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riskmap",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of one aggregation pass.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		HeatmapPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riskmap",
			Name:      "heatmap_points",
			Help:      "Points in the latest heatmap snapshot.",
		}),
		AggregatorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riskmap",
			Name:      "aggregator_running",
			Help:      "1 when the aggregation loop is active, 0 when shut down.",
		}),
		SignalsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "signals_ingested_total",
			Help:      "Disaster signals consumed from the feed.",
		}),
		ReportsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "reports_ingested_total",
			Help:      "Community reports consumed from the feed.",
		}),
		ReportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "reports_submitted_total",
			Help:      "Community reports accepted via the HTTP API.",
		}),
		FeedDecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskmap",
			Name:      "feed_decode_errors_total",
			Help:      "Feed messages dropped because they failed to decode.",
		}),
	}
}
