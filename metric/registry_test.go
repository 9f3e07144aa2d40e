package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/flowgraph/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
	assert.NotNil(t, registry.CoreMetrics().ItemsPublished)
	assert.NotNil(t, registry.CoreMetrics().NodeStatus)
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})

	err := registry.RegisterCounter("tcp-source", "test_counter", counter)
	require.NoError(t, err)

	// Same key must be rejected without touching registry state.
	err = registry.RegisterCounter("tcp-source", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same metric name under a different node is a Prometheus-level conflict.
	err = registry.RegisterCounter("udp-source", "test_counter", counter)
	require.Error(t, err)
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "test gauge",
	})
	require.NoError(t, registry.RegisterGauge("queue", "depth", gauge))

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_histogram",
		Help: "test histogram",
	})
	require.NoError(t, registry.RegisterHistogram("queue", "latency", histogram))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unreg_counter_total",
		Help: "test counter",
	})

	require.NoError(t, registry.RegisterCounter("node", "unreg", counter))
	assert.True(t, registry.Unregister("node", "unreg"))
	assert.False(t, registry.Unregister("node", "unreg"), "second unregister is a no-op")

	// Slot is free again after unregister.
	require.NoError(t, registry.RegisterCounter("node", "unreg", counter))
}

func TestServerAddress(t *testing.T) {
	registry := NewMetricsRegistry()

	srv := NewServer(0, "", registry)
	assert.Equal(t, "http://localhost:9090/metrics", srv.Address())

	srv = NewServer(9191, "/m", registry)
	assert.Equal(t, "http://localhost:9191/m", srv.Address())
}
