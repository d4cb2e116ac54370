package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the node-to-node transport: connection counts, packet
// throughput, and frame errors, the same metrics a browser-facing event
// bus would track applied instead to a node-facing packet channel.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	PacketsTotal      *prometheus.CounterVec
	PacketLatencySeconds prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
	ReconnectTotal    prometheus.Counter
}

// NewMetrics creates a new Metrics instance under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections_active_total",
			Help:      "Current number of connected worker nodes",
		}),
		PacketsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "packets_total",
			Help:      "Total number of packets sent or received, by packet type and direction",
		}, []string{"packet_type", "direction"}),
		PacketLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "packet_write_latency_seconds",
			Help:      "Latency of a single packet write (seconds)",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Total number of transport errors, by error type",
		}, []string{"error_type"}),
		ReconnectTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnect_total",
			Help:      "Total number of worker node reconnections",
		}),
	}
}
