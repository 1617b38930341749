// Package metric provides Prometheus-based metrics collection and an HTTP
// server for acarsplit monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (component status, messages processed, errors) and custom
// component-specific metrics. It includes an HTTP server exposing metrics in
// Prometheus format.
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server error", "error", err)
//	    }
//	}()
//
// Components register their own metrics through the MetricsRegistrar
// interface, keyed by component name to detect duplicates:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{...})
//	if err := registry.RegisterCounter("udp_5571", "packets_received", counter); err != nil {
//	    return err
//	}
//
// A nil registry disables metrics throughout the system (nil input = nil
// feature pattern); components must tolerate it.
package metric
