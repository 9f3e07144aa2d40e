package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/streamkit/flowgraph/errors"
)

// Registrar defines the interface for registering node-specific metrics
type Registrar interface {
	RegisterCounter(nodeName, metricName string, counter prometheus.Counter) error
	RegisterGauge(nodeName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(nodeName, metricName string, histogram prometheus.Histogram) error
	Unregister(nodeName, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics.
// Nodes accept a nil *MetricsRegistry, in which case they collect nothing.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core graph metrics
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	// Initialize and register core metrics
	registry.Metrics = NewMetrics()
	registry.registerCoreMetrics()

	// Add Go runtime metrics
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core graph metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// register adds a collector under "node.metric", rejecting duplicates both
// in this registry and in the underlying Prometheus registry.
func (r *MetricsRegistry) register(nodeName, metricName, operation string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", nodeName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for node %s", metricName, nodeName),
			"MetricsRegistry", operation, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", operation,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", operation,
			"failed to register collector with prometheus")
	}

	r.registeredMetrics[key] = c
	return nil
}

// RegisterCounter registers a counter metric for a node
func (r *MetricsRegistry) RegisterCounter(nodeName, metricName string, counter prometheus.Counter) error {
	return r.register(nodeName, metricName, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a node
func (r *MetricsRegistry) RegisterGauge(nodeName, metricName string, gauge prometheus.Gauge) error {
	return r.register(nodeName, metricName, "RegisterGauge", gauge)
}

// RegisterHistogram registers a histogram metric for a node
func (r *MetricsRegistry) RegisterHistogram(nodeName, metricName string, histogram prometheus.Histogram) error {
	return r.register(nodeName, metricName, "RegisterHistogram", histogram)
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(nodeName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", nodeName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}

// registerCoreMetrics registers all core graph metrics
func (r *MetricsRegistry) registerCoreMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.NodeStatus,
		r.Metrics.ItemsPublished,
		r.Metrics.ItemsReceived,
		r.Metrics.ItemsDropped,
		r.Metrics.BytesReceived,
		r.Metrics.BytesSent,
		r.Metrics.PublishDuration,
		r.Metrics.ConnectionUp,
		r.Metrics.Reconnects,
	)
}
