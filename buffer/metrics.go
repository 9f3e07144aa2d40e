package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamkit/flowgraph/metric"
)

// fifoMetrics holds the optional Prometheus collectors for one buffer.
type fifoMetrics struct {
	writes prometheus.Counter
	reads  prometheus.Counter
	drops  prometheus.Counter
	depth  prometheus.Gauge
}

// newFIFOMetrics creates and registers the per-buffer collectors under
// the given prefix.
func newFIFOMetrics(registry *metric.MetricsRegistry, prefix string) (*fifoMetrics, error) {
	m := &fifoMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Subsystem: "buffer",
			Name:      prefix + "_writes_total",
			Help:      "Items accepted into the buffer",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Subsystem: "buffer",
			Name:      prefix + "_reads_total",
			Help:      "Items read from the buffer",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Subsystem: "buffer",
			Name:      prefix + "_drops_total",
			Help:      "Items dropped by the overflow policy",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowgraph",
			Subsystem: "buffer",
			Name:      prefix + "_depth",
			Help:      "Current number of buffered items",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_depth", m.depth); err != nil {
		return nil, err
	}

	return m, nil
}
