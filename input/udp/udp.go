// Package udp provides the UDP listener component for receiving datalink log
// streams
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/acarsplit/component"
	"github.com/c360/acarsplit/errors"
	"github.com/c360/acarsplit/metric"
	"github.com/c360/acarsplit/pkg/buffer"
	"github.com/c360/acarsplit/pkg/retry"
)

// Handler receives one valid UDP payload together with the sender address it
// arrived from. Source identity is the listen port (the engine binds one
// handler per listener); the remote address is metadata for logging only.
type Handler func(remote string, data []byte)

// packet is one staged datagram awaiting processing.
type packet struct {
	remote string
	data   []byte
}

// Metrics holds Prometheus metrics for the UDP listener
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsDropped  prometheus.Counter
	invalidPackets  prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers UDP listener metrics
func newMetrics(registry *metric.MetricsRegistry, port int) *Metrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"port": fmt.Sprintf("%d", port)}
	metrics := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "acarsplit",
			Subsystem:   "udp",
			Name:        "packets_received_total",
			ConstLabels: labels,
			Help:        "Total UDP packets received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "acarsplit",
			Subsystem:   "udp",
			Name:        "bytes_received_total",
			ConstLabels: labels,
			Help:        "Total bytes received from UDP",
		}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "acarsplit",
			Subsystem:   "udp",
			Name:        "packets_dropped_total",
			ConstLabels: labels,
			Help:        "Packets dropped due to staging buffer full",
		}),
		invalidPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "acarsplit",
			Subsystem:   "udp",
			Name:        "invalid_packets_total",
			ConstLabels: labels,
			Help:        "Packets dropped for invalid UTF-8 payloads",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "acarsplit",
			Subsystem:   "udp",
			Name:        "socket_errors_total",
			ConstLabels: labels,
			Help:        "Socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "acarsplit",
			Subsystem:   "udp",
			Name:        "last_activity_timestamp",
			ConstLabels: labels,
			Help:        "Unix timestamp of last received packet",
		}),
	}

	serviceName := fmt.Sprintf("udp_%d", port)
	_ = registry.RegisterCounter(serviceName, "packets_received", metrics.packetsReceived)
	_ = registry.RegisterCounter(serviceName, "bytes_received", metrics.bytesReceived)
	_ = registry.RegisterCounter(serviceName, "packets_dropped", metrics.packetsDropped)
	_ = registry.RegisterCounter(serviceName, "invalid_packets", metrics.invalidPackets)
	_ = registry.RegisterCounter(serviceName, "socket_errors", metrics.socketErrors)
	_ = registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}

// Listener receives datalink log chunks on one UDP port and hands each valid
// payload to the processing chain. Datagrams are staged through a circular
// buffer so a slow disk never blocks the socket read.
type Listener struct {
	name    string
	port    int
	bind    string
	handler Handler
	logger  *slog.Logger

	// Staging buffer between socket reads and processing
	buffer buffer.Buffer[packet]

	// Retry configuration for socket binding
	retryConfig retry.Config

	// Lifecycle management
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	conn      *net.UDPConn

	// Counters (atomic for thread safety)
	packetsReceived atomic.Int64
	bytesReceived   atomic.Int64
	errorCount      atomic.Int64
	lastActivity    atomic.Value // stores time.Time

	// Prometheus metrics
	metrics *Metrics
}

// Ensure Listener implements all required interfaces
var _ component.Discoverable = (*Listener)(nil)
var _ component.LifecycleComponent = (*Listener)(nil)

// ListenerDeps holds runtime dependencies for the UDP listener
type ListenerDeps struct {
	Host            string
	Port            int
	Handler         Handler
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// NewListener creates a UDP listener for one port.
func NewListener(deps ListenerDeps) (*Listener, error) {
	if deps.Handler == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "udp-listener", "NewListener",
			"handler is required")
	}
	if deps.Port < 1 || deps.Port > 65535 {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "udp-listener", "NewListener",
			fmt.Sprintf("invalid port %d", deps.Port))
	}

	bind := deps.Host
	if bind == "" {
		bind = "127.0.0.1"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "udp-listener", "port", deps.Port)

	bufferOpts := []buffer.Option[packet]{
		buffer.WithOverflowPolicy[packet](buffer.DropOldest),
	}
	if deps.MetricsRegistry != nil {
		bufferOpts = append(bufferOpts,
			buffer.WithMetrics[packet](deps.MetricsRegistry, fmt.Sprintf("udp_%d", deps.Port)))
	}

	stagingBuffer, err := buffer.NewCircularBuffer(5000, bufferOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "udp-listener", "NewListener", "staging buffer")
	}

	l := &Listener{
		name:        fmt.Sprintf("udp-listener-%d", deps.Port),
		port:        deps.Port,
		bind:        bind,
		handler:     deps.Handler,
		logger:      logger,
		buffer:      stagingBuffer,
		retryConfig: retry.DefaultConfig(),
		startTime:   time.Now(),
		metrics:     newMetrics(deps.MetricsRegistry, deps.Port),
	}
	l.lastActivity.Store(time.Time{})
	return l, nil
}

// Port returns the listen port.
func (l *Listener) Port() int {
	return l.port
}

// Initialize validates the listener configuration.
func (l *Listener) Initialize() error {
	if l.handler == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "udp-listener", "Initialize",
			"handler validation")
	}
	return nil
}

// Start binds the UDP socket and begins the read loop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return nil // Already running, idempotent
	}

	l.shutdown = make(chan struct{})
	l.done = make(chan struct{})

	// Bind can race a previous process still releasing the port
	bindOperation := func() error {
		return l.bindSocket()
	}
	if err := retry.Do(ctx, l.retryConfig, bindOperation); err != nil {
		l.cleanupUnlocked()
		return errors.WrapTransient(err, "udp-listener", "Start", "socket binding")
	}

	l.running.Store(true)
	l.startTime = time.Now()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(l.done)
		l.readLoop(ctx)
	}()

	l.logger.Info("listening", "address", fmt.Sprintf("%s:%d", l.bind, l.port))
	return nil
}

// bindSocket creates and binds the UDP socket
func (l *Listener) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.bind, l.port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s:%d: %w", l.bind, l.port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", l.port, err)
	}

	// Increase OS socket buffer to ride out processing stalls
	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		l.logger.Warn("could not set UDP buffer size",
			"buffer_size", socketBufferSize,
			"error", err)
	}

	l.conn = conn
	return nil
}

// Stop gracefully stops the listener with the specified timeout.
func (l *Listener) Stop(timeout time.Duration) error {
	if !l.running.Load() {
		return nil
	}

	l.running.Store(false)

	l.mu.Lock()
	if l.shutdown != nil {
		select {
		case <-l.shutdown:
		default:
			close(l.shutdown)
		}
	}
	// Close the connection to unblock the read loop
	if l.conn != nil {
		_ = l.conn.Close()
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-listener", "Stop", "graceful shutdown")
	}

	l.cleanup()
	l.logger.Info("udp listener stopped")
	return nil
}

// cleanup cleans up resources
func (l *Listener) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupUnlocked()
}

// cleanupUnlocked cleans up resources without acquiring the mutex
func (l *Listener) cleanupUnlocked() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	if l.buffer != nil {
		_ = l.buffer.Close()
	}
}

// readLoop continuously reads UDP datagrams and feeds the processing chain.
func (l *Listener) readLoop(ctx context.Context) {
	udpBuffer := make([]byte, 65536)

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
		}

		l.mu.RLock()
		conn := l.conn
		l.mu.RUnlock()
		if conn == nil {
			return
		}

		// Short deadline so shutdown is noticed promptly
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, raddr, err := conn.ReadFromUDP(udpBuffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-l.shutdown:
				return
			default:
				l.errorCount.Add(1)
				if l.metrics != nil {
					l.metrics.socketErrors.Inc()
				}
				if !errors.IsTransient(err) {
					l.logger.Error("unrecoverable socket error", "error", err)
					return
				}
				continue
			}
		}

		l.packetsReceived.Add(1)
		l.bytesReceived.Add(int64(n))
		now := time.Now()
		l.lastActivity.Store(now)

		if l.metrics != nil {
			l.metrics.packetsReceived.Inc()
			l.metrics.bytesReceived.Add(float64(n))
			l.metrics.lastActivity.Set(float64(now.Unix()))
		}

		// A payload that is not valid UTF-8 cannot be part of a log stream;
		// drop it rather than corrupt a source buffer
		if !utf8.Valid(udpBuffer[:n]) {
			l.errorCount.Add(1)
			if l.metrics != nil {
				l.metrics.invalidPackets.Inc()
			}
			l.logger.Warn("dropped non-UTF-8 datagram",
				"source", raddr.String(),
				"bytes", n)
			continue
		}

		data := make([]byte, n)
		copy(data, udpBuffer[:n])

		pkt := packet{
			remote: raddr.String(),
			data:   data,
		}
		if err := l.buffer.Write(pkt); err != nil {
			if l.metrics != nil {
				l.metrics.packetsDropped.Inc()
			}
			continue
		}

		l.drainBuffer()
	}
}

// drainBuffer hands staged datagrams to the processing chain in order.
func (l *Listener) drainBuffer() {
	const maxBatchSize = 100
	for {
		batch := l.buffer.ReadBatch(maxBatchSize)
		if len(batch) == 0 {
			return
		}
		for _, pkt := range batch {
			if !l.running.Load() {
				return
			}
			l.handler(pkt.remote, pkt.data)
		}
	}
}

// Meta returns the component metadata
func (l *Listener) Meta() component.Metadata {
	return component.Metadata{
		Name:        l.name,
		Type:        "input",
		Description: fmt.Sprintf("UDP listener on %s:%d for datalink log streams", l.bind, l.port),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (l *Listener) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "udp_socket",
			Description: fmt.Sprintf("UDP socket listening on %s:%d", l.bind, l.port),
			DataType:    "bytes",
		},
	}
}

// OutputPorts returns the output ports for this component
func (l *Listener) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "chunks",
			Description: "Validated datagram payloads in arrival order",
			DataType:    "bytes",
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (l *Listener) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"host": {
				Type:        "string",
				Description: "Bind address",
				Default:     "127.0.0.1",
			},
			"port": {
				Type:        "int",
				Description: "UDP port to listen on",
				Minimum:     intPtr(1),
				Maximum:     intPtr(65535),
			},
		},
		Required: []string{"port"},
	}
}

// Health returns the current health status of the component
func (l *Listener) Health() component.HealthStatus {
	l.mu.RLock()
	connected := l.conn != nil
	l.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    l.running.Load() && connected,
		LastCheck:  time.Now(),
		ErrorCount: int(l.errorCount.Load()),
		Uptime:     time.Since(l.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (l *Listener) DataFlow() component.FlowMetrics {
	packets := l.packetsReceived.Load()
	bytes := l.bytesReceived.Load()
	errorCount := l.errorCount.Load()
	lastActivity, _ := l.lastActivity.Load().(time.Time)

	var packetsPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(l.startTime).Seconds(); uptime > 0 {
		packetsPerSecond = float64(packets) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if packets > 0 {
		errorRate = float64(errorCount) / float64(packets)
	}

	return component.FlowMetrics{
		MessagesPerSecond: packetsPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Helper function to create int pointers
func intPtr(i int) *int {
	return &i
}
