package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/acarsplit/component"
	"github.com/c360/acarsplit/errors"
	"github.com/c360/acarsplit/metric"
)

// Sink receives a framed message together with the listen port it came from.
// A sink error is recorded in the sweeper's health status.
type Sink func(port int, message string) error

// Sweeper periodically flushes sources that have gone quiet. It wakes every
// timeout interval and releases the held-back final message of any source
// that has not flushed for more than twice the timeout.
type Sweeper struct {
	table   *Table
	timeout time.Duration
	sink    Sink
	logger  *slog.Logger

	metricsRegistry *metric.MetricsRegistry
	flushesTotal    prometheus.Counter

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startTime time.Time
	errCount  int
	lastErr   string
}

// NewSweeper creates a sweeper over the given source table. The metrics
// registry may be nil to disable metrics.
func NewSweeper(
	table *Table,
	timeout time.Duration,
	sink Sink,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
) (*Sweeper, error) {
	if table == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Sweeper", "NewSweeper",
			"source table is required")
	}
	if sink == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Sweeper", "NewSweeper",
			"sink is required")
	}
	if timeout <= 0 {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Sweeper", "NewSweeper",
			"timeout must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		table:           table,
		timeout:         timeout,
		sink:            sink,
		logger:          logger.With("component", "sweeper"),
		metricsRegistry: registry,
	}, nil
}

// Initialize registers sweeper metrics.
func (s *Sweeper) Initialize() error {
	if s.metricsRegistry == nil {
		return nil
	}

	s.flushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "acarsplit",
		Subsystem: "sweeper",
		Name:      "flushes_total",
		Help:      "Total number of stale buffers flushed on timeout",
	})
	if err := s.metricsRegistry.RegisterCounter("sweeper", "flushes", s.flushesTotal); err != nil {
		return errors.Wrap(err, "Sweeper", "Initialize", "metrics registration")
	}
	return nil
}

// Start launches the sweep loop. It returns immediately; the loop runs until
// the context is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Sweeper", "Start",
			"sweeper already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.startTime = time.Now()

	go s.run(loopCtx)

	s.logger.Info("sweeper started", "timeout", s.timeout)
	return nil
}

// Stop halts the sweep loop, waiting up to timeout for it to exit.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		s.logger.Info("sweeper stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("sweep loop did not exit within %v", timeout),
			"Sweeper", "Stop", "shutdown timeout")
	}
}

// run is the sweep loop. One pass visits every known source.
func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep flushes every stale source once. A stale buffer that has no message
// boundary cannot be flushed; it is warned about on every pass so a silent
// misconfigured feed does not go unnoticed.
func (s *Sweeper) sweep(now time.Time) {
	for _, src := range s.table.Snapshot() {
		msg, outcome := src.FlushIfStale(now, s.timeout)
		switch outcome {
		case FlushEmitted:
			s.logger.Debug("flushed stale buffer",
				"port", src.Port,
				"bytes", len(msg))
			if s.flushesTotal != nil {
				s.flushesTotal.Inc()
			}
			if err := s.sink(src.Port, msg); err != nil {
				s.recordError(err)
			}
		case FlushHeld:
			s.logger.Warn("stale buffer has no message boundary",
				"port", src.Port,
				"pending_bytes", src.Pending())
		case FlushNone:
		}
	}
}

// recordError surfaces a sink failure through Health.
func (s *Sweeper) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCount++
	s.lastErr = err.Error()
}

// Meta returns basic component information.
func (s *Sweeper) Meta() component.Metadata {
	return component.Metadata{
		Name:        "sweeper",
		Type:        "processor",
		Description: "Flushes per-source buffers that have gone quiet",
		Version:     "1.0.0",
	}
}

// InputPorts returns the ports this component accepts data on.
func (s *Sweeper) InputPorts() []component.Port {
	return []component.Port{
		{Name: "sources", Description: "Shared per-port buffer table", DataType: "bytes"},
	}
}

// OutputPorts returns the ports this component produces data on.
func (s *Sweeper) OutputPorts() []component.Port {
	return []component.Port{
		{Name: "messages", Description: "Timeout-flushed messages", DataType: "message"},
	}
}

// ConfigSchema returns the configuration schema for this component.
func (s *Sweeper) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"buffer_timeout": {
				Type:        "int",
				Description: "Seconds between sweeps; buffers idle for twice this are flushed",
				Default:     60,
			},
		},
		Required: []string{"buffer_timeout"},
	}
}

// Health returns current health status.
func (s *Sweeper) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := component.HealthStatus{
		Healthy:    s.running,
		LastCheck:  time.Now(),
		ErrorCount: s.errCount,
		LastError:  s.lastErr,
	}
	if s.running {
		status.Uptime = time.Since(s.startTime)
	}
	return status
}

// DataFlow returns current data flow metrics.
func (s *Sweeper) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
