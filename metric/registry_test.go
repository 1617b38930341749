package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})

	err := registry.RegisterCounter("udp_5571", "packets_received", counter)
	require.NoError(t, err)

	// Duplicate registration under the same key fails
	err = registry.RegisterCounter("udp_5571", "packets_received", counter)
	assert.Error(t, err)
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "test gauge",
	})
	require.NoError(t, registry.RegisterGauge("stream", "buffer_bytes", gauge))

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_histogram",
		Help: "test histogram",
	})
	require.NoError(t, registry.RegisterHistogram("stream", "frame_size", histogram))
}

func TestRegisterCounterVec(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_vec_total",
		Help: "test vec",
	}, []string{"bucket"})
	require.NoError(t, registry.RegisterCounterVec("writer", "messages_written", vec))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_unregister_total",
		Help: "test",
	})
	require.NoError(t, registry.RegisterCounter("sweeper", "flushes", counter))

	assert.True(t, registry.Unregister("sweeper", "flushes"))
	assert.False(t, registry.Unregister("sweeper", "flushes"))

	// Re-registration succeeds after unregister
	require.NoError(t, registry.RegisterCounter("sweeper", "flushes", counter))
}

func TestCoreMetricsHelpers(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	// Helpers must not panic and must expose values through the registry
	core.RecordComponentStatus("engine", 2)
	core.RecordMessageProcessed("label")
	core.RecordError("writer", "transient")

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["acarsplit_component_status"])
	assert.True(t, names["acarsplit_messages_processed_total"])
	assert.True(t, names["acarsplit_errors_total"])
}
