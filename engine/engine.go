// Package engine wires the processing chain together: UDP listeners feed
// per-port framing, framed messages are classified, and classified messages
// are appended to bucket files. A sweeper flushes ports that go quiet.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/acarsplit/classify"
	"github.com/c360/acarsplit/component"
	"github.com/c360/acarsplit/config"
	"github.com/c360/acarsplit/errors"
	"github.com/c360/acarsplit/input/udp"
	"github.com/c360/acarsplit/metric"
	"github.com/c360/acarsplit/output/file"
	"github.com/c360/acarsplit/stream"
)

// Engine owns every component of the splitter and manages their lifecycle.
// Components start in dependency order (writer, sweeper, listeners) and stop
// in reverse, so no listener ever feeds a stopped writer.
type Engine struct {
	cfg        *config.SafeConfig
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	classifier classify.Classifier

	table     *stream.Table
	writer    *file.Writer
	sweeper   *stream.Sweeper
	listeners []*udp.Listener

	metricsServer *metric.Server

	mu      sync.Mutex
	managed []*component.ManagedComponent
	running bool
}

// New builds an engine from validated configuration. The metrics registry may
// be nil to disable metrics.
func New(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*Engine, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Engine", "New", "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg = cfg.Clone()
	for _, warning := range cfg.Normalize() {
		logger.Warn(warning)
	}

	classifier, err := classify.New(cfg.SplitBy, cfg.Keyword)
	if err != nil {
		return nil, err
	}

	writer, err := file.NewWriter(cfg.OutputDir, logger, registry)
	if err != nil {
		return nil, err
	}

	// The source set is fixed at startup: one framing buffer per listen
	// port, shared by every sender on that port.
	e := &Engine{
		cfg:        config.NewSafeConfig(cfg),
		logger:     logger.With("component", "engine"),
		registry:   registry,
		classifier: classifier,
		table:      stream.NewTable(cfg.Ports, time.Now()),
		writer:     writer,
	}

	sweeper, err := stream.NewSweeper(e.table, cfg.BufferTimeout, e.deliver, logger, registry)
	if err != nil {
		return nil, err
	}
	e.sweeper = sweeper

	for _, port := range cfg.Ports {
		listener, err := udp.NewListener(udp.ListenerDeps{
			Host: cfg.Host,
			Port: port,
			Handler: func(remote string, data []byte) {
				e.handleChunk(port, remote, data)
			},
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		e.listeners = append(e.listeners, listener)
	}

	if cfg.MetricsPort > 0 && registry != nil {
		e.metricsServer = metric.NewServer(cfg.MetricsPort, "/metrics", registry)
	}

	return e, nil
}

// handleChunk feeds one datagram payload into the port's framing buffer and
// delivers any messages it completed. The remote address is log metadata
// only; every sender on a port shares its buffer.
func (e *Engine) handleChunk(port int, remote string, data []byte) {
	now := time.Now()
	src := e.table.Get(port)
	if src == nil {
		return
	}

	limit := e.cfg.Get().MaxBufferBytes
	messages, reset := src.Append(data, limit, now)
	if reset {
		e.logger.Warn("discarded oversized buffer with no message boundary",
			"port", port,
			"remote", remote,
			"limit_bytes", limit)
		if e.registry != nil {
			e.registry.CoreMetrics().RecordError("stream", "invalid")
		}
	}

	for _, msg := range messages {
		_ = e.deliver(port, msg)
	}
}

// deliver classifies one framed message and appends it to its bucket.
// A failed append is logged and counted; it never stops the stream.
func (e *Engine) deliver(port int, message string) error {
	bucket := e.classifier.Bucket(message)

	if err := e.writer.Write(bucket, message); err != nil {
		e.logger.Error("failed to write message",
			"port", port,
			"bucket", bucket,
			"error", err)
		if e.registry != nil {
			e.registry.CoreMetrics().RecordError("writer", errors.Classify(err).String())
		}
		return err
	}

	if e.registry != nil {
		e.registry.CoreMetrics().RecordMessageProcessed(e.classifier.Name())
	}
	return nil
}

// components returns the lifecycle components in start order.
func (e *Engine) components() []component.LifecycleComponent {
	comps := []component.LifecycleComponent{e.writer, e.sweeper}
	for _, l := range e.listeners {
		comps = append(comps, l)
	}
	return comps
}

// Start initializes and starts all components in dependency order. On any
// failure the already-started components are stopped in reverse.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Engine", "Start",
			"engine already running")
	}

	cfg := e.cfg.Get()
	e.logger.Info("starting",
		"ports", cfg.Ports,
		"output_dir", cfg.OutputDir,
		"split_by", cfg.SplitBy,
		"buffer_timeout", cfg.BufferTimeout)

	for order, comp := range e.components() {
		meta := comp.Meta()

		if err := comp.Initialize(); err != nil {
			e.stopManagedLocked(5 * time.Second)
			return errors.Wrap(err, "Engine", "Start",
				fmt.Sprintf("initialize %s", meta.Name))
		}

		compCtx, cancel := context.WithCancel(ctx)
		if err := comp.Start(compCtx); err != nil {
			cancel()
			e.stopManagedLocked(5 * time.Second)
			return errors.Wrap(err, "Engine", "Start",
				fmt.Sprintf("start %s", meta.Name))
		}

		e.managed = append(e.managed, &component.ManagedComponent{
			Component:  comp,
			State:      component.StateStarted,
			Context:    compCtx,
			Cancel:     cancel,
			StartOrder: order,
		})
		if e.registry != nil {
			e.registry.CoreMetrics().RecordComponentStatus(meta.Name, float64(component.StateStarted))
		}
		e.logger.Debug("component started", "name", meta.Name, "order", order)
	}

	if e.metricsServer != nil {
		go func() {
			if err := e.metricsServer.Start(); err != nil {
				e.logger.Error("metrics server failed", "error", err)
			}
		}()
		e.logger.Info("metrics server listening", "address", e.metricsServer.Address())
	}

	e.running = true
	e.logger.Info("started", "listeners", len(e.listeners))
	return nil
}

// Stop stops all components in reverse start order, giving each the full
// timeout. The first error is returned; shutdown still visits every
// component.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	var firstErr error
	if err := e.stopManagedLocked(timeout); err != nil {
		firstErr = err
	}

	if e.metricsServer != nil {
		if err := e.metricsServer.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.running = false
	e.logger.Info("stopped")
	return firstErr
}

// stopManagedLocked stops managed components in reverse order. Caller holds e.mu.
func (e *Engine) stopManagedLocked(timeout time.Duration) error {
	var firstErr error

	for i := len(e.managed) - 1; i >= 0; i-- {
		mc := e.managed[i]
		lc, ok := component.AsLifecycleComponent(mc.Component)
		if !ok {
			continue
		}

		mc.Cancel()
		if err := lc.Stop(timeout); err != nil {
			mc.State = component.StateFailed
			mc.LastError = err
			e.logger.Error("component stop failed",
				"name", mc.Component.Meta().Name,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		mc.State = component.StateStopped
		if e.registry != nil {
			e.registry.CoreMetrics().RecordComponentStatus(
				mc.Component.Meta().Name, float64(component.StateStopped))
		}
	}

	e.managed = nil
	return firstErr
}

// Health reports per-component health keyed by component name.
func (e *Engine) Health() map[string]component.HealthStatus {
	out := make(map[string]component.HealthStatus)
	for _, comp := range e.components() {
		out[comp.Meta().Name] = comp.Health()
	}
	return out
}
