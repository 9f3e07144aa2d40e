package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the graph-level metrics shared by all node types
type Metrics struct {
	// Node lifecycle metrics
	NodeStatus *prometheus.GaugeVec

	// Item flow metrics
	ItemsPublished *prometheus.CounterVec
	ItemsReceived  *prometheus.CounterVec
	ItemsDropped   *prometheus.CounterVec
	BytesReceived  *prometheus.CounterVec
	BytesSent      *prometheus.CounterVec

	// Delivery metrics
	PublishDuration *prometheus.HistogramVec

	// Connection metrics for network-backed nodes
	ConnectionUp *prometheus.GaugeVec
	Reconnects   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all graph metrics
func NewMetrics() *Metrics {
	return &Metrics{
		NodeStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "node",
				Name:      "status",
				Help:      "Node lifecycle state (0=created, 1=running, 2=stop-requested, 3=stopped)",
			},
			[]string{"node"},
		),

		ItemsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "items",
				Name:      "published_total",
				Help:      "Total number of items published to subscribers",
			},
			[]string{"node"},
		),

		ItemsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "items",
				Name:      "received_total",
				Help:      "Total number of items received from publishers",
			},
			[]string{"node"},
		),

		ItemsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "items",
				Name:      "dropped_total",
				Help:      "Total number of items dropped",
			},
			[]string{"node", "reason"},
		),

		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "net",
				Name:      "bytes_received_total",
				Help:      "Total bytes received from network peers",
			},
			[]string{"node"},
		),

		BytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "net",
				Name:      "bytes_sent_total",
				Help:      "Total bytes sent to network peers",
			},
			[]string{"node"},
		),

		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flowgraph",
				Subsystem: "items",
				Name:      "publish_duration_seconds",
				Help:      "Time spent delivering one item to all subscribers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		),

		ConnectionUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "net",
				Name:      "connection_up",
				Help:      "Connection status for network nodes (0=disconnected, 1=connected)",
			},
			[]string{"node"},
		),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "net",
				Name:      "reconnects_total",
				Help:      "Number of reconnect or re-accept cycles",
			},
			[]string{"node"},
		),
	}
}
