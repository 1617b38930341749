package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics shared across components
type Metrics struct {
	// Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)
	ComponentStatus *prometheus.GaugeVec

	// Message pipeline metrics
	MessagesProcessed *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "acarsplit",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acarsplit",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of messages classified and routed",
			},
			[]string{"strategy"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acarsplit",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total errors by component and classification",
			},
			[]string{"component", "class"},
		),
	}
}

// RecordComponentStatus sets the status gauge for a component
func (m *Metrics) RecordComponentStatus(component string, status float64) {
	m.ComponentStatus.WithLabelValues(component).Set(status)
}

// RecordMessageProcessed increments the processed counter for a strategy
func (m *Metrics) RecordMessageProcessed(strategy string) {
	m.MessagesProcessed.WithLabelValues(strategy).Inc()
}

// RecordError increments the error counter for a component
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}
