package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks cache hit/miss rates, active builder count, and
// callback latency, using promauto-registered collectors.
type Metrics struct {
	ConfigCacheHitsTotal    *prometheus.CounterVec
	ResultsCacheHitsTotal   *prometheus.CounterVec
	ActiveBuilders          prometheus.Gauge
	CallbackLatencySeconds  prometheus.Histogram
	TelemetrySampledTotal   prometheus.Counter
	TelemetryDroppedTotal   prometheus.Counter
}

// NewMetrics creates a new Metrics instance under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ConfigCacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "config_cache_requests_total",
			Help:      "Total configuration cache lookups, by outcome (hit, miss)",
		}, []string{"outcome"}),
		ResultsCacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "results_cache_requests_total",
			Help:      "Total results cache lookups, by outcome (satisfied, not_satisfied, not_present)",
		}, []string{"outcome"}),
		ActiveBuilders: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "active_builders",
			Help:      "Current number of in-flight request builders",
		}),
		CallbackLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "callback_latency_seconds",
			Help:      "Latency of a task-host coordinator callback round trip (seconds)",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		TelemetrySampledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "sampled_events_total",
			Help:      "Total telemetry events that passed the sample-rate gate",
		}),
		TelemetryDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "dropped_events_total",
			Help:      "Total telemetry events dropped by opt-out or the sample-rate gate",
		}),
	}
}
