package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NodeMetrics bundles the per-node views of the core metric vectors so a
// node can update its own series without carrying label plumbing around.
type NodeMetrics struct {
	Status          prometheus.Gauge
	ItemsPublished  prometheus.Counter
	ItemsReceived   prometheus.Counter
	ItemsDropped    *prometheus.CounterVec // label: reason
	BytesReceived   prometheus.Counter
	BytesSent       prometheus.Counter
	PublishDuration prometheus.Observer
	ConnectionUp    prometheus.Gauge
	Reconnects      prometheus.Counter
}

// ForNode returns the per-node metrics view. Returns nil when called on a
// nil registry (nil input = nil feature), so nodes can hold the result
// unconditionally and guard updates with a nil check.
func (r *MetricsRegistry) ForNode(name string) *NodeMetrics {
	if r == nil {
		return nil
	}
	m := r.Metrics
	return &NodeMetrics{
		Status:          m.NodeStatus.WithLabelValues(name),
		ItemsPublished:  m.ItemsPublished.WithLabelValues(name),
		ItemsReceived:   m.ItemsReceived.WithLabelValues(name),
		ItemsDropped:    m.ItemsDropped.MustCurryWith(prometheus.Labels{"node": name}),
		BytesReceived:   m.BytesReceived.WithLabelValues(name),
		BytesSent:       m.BytesSent.WithLabelValues(name),
		PublishDuration: m.PublishDuration.WithLabelValues(name),
		ConnectionUp:    m.ConnectionUp.WithLabelValues(name),
		Reconnects:      m.Reconnects.WithLabelValues(name),
	}
}

// Drop increments the dropped-items counter for the given reason.
func (nm *NodeMetrics) Drop(reason string) {
	if nm == nil {
		return
	}
	nm.ItemsDropped.WithLabelValues(reason).Inc()
}
