// Package file provides the bucket file writer for classified messages
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/acarsplit/component"
	"github.com/c360/acarsplit/errors"
	"github.com/c360/acarsplit/metric"
)

// separator goes between consecutive messages in a bucket file. A bucket
// file never starts with a separator, even across process restarts.
const separator = "\n\n"

// bucketFile tracks one open append handle and whether the file already
// holds content (which decides whether the next write needs a separator).
type bucketFile struct {
	file     *os.File
	nonEmpty bool
}

// Writer appends classified messages to per-bucket files under a single
// output directory. Handles are opened lazily on first write to a bucket and
// held open until Stop.
type Writer struct {
	directory string
	logger    *slog.Logger

	metricsRegistry *metric.MetricsRegistry
	messagesWritten *prometheus.CounterVec
	bytesWritten    prometheus.Counter
	writeErrors     prometheus.Counter

	mu    sync.Mutex
	files map[string]*bucketFile

	lifecycleMu sync.Mutex
	running     bool
	startTime   time.Time

	errCount     int64
	writtenCount int64
	lastActivity atomic.Int64 // unix nanos
}

// NewWriter creates a bucket writer for the given directory. The metrics
// registry may be nil to disable metrics.
func NewWriter(directory string, logger *slog.Logger, registry *metric.MetricsRegistry) (*Writer, error) {
	if directory == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Writer", "NewWriter",
			"output directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		directory:       directory,
		logger:          logger.With("component", "writer"),
		metricsRegistry: registry,
		files:           make(map[string]*bucketFile),
	}, nil
}

// Initialize creates the output directory and registers metrics. Failing to
// create the directory is fatal; nothing downstream can work without it.
func (w *Writer) Initialize() error {
	if err := os.MkdirAll(w.directory, 0o755); err != nil {
		return errors.WrapFatal(err, "Writer", "Initialize", "create output directory")
	}

	if w.metricsRegistry != nil {
		w.messagesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acarsplit",
			Subsystem: "writer",
			Name:      "messages_written_total",
			Help:      "Messages appended per bucket file",
		}, []string{"bucket"})
		if err := w.metricsRegistry.RegisterCounterVec("writer", "messages_written", w.messagesWritten); err != nil {
			return errors.Wrap(err, "Writer", "Initialize", "metrics registration")
		}

		w.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acarsplit",
			Subsystem: "writer",
			Name:      "bytes_written_total",
			Help:      "Total bytes appended across all bucket files",
		})
		if err := w.metricsRegistry.RegisterCounter("writer", "bytes_written", w.bytesWritten); err != nil {
			return errors.Wrap(err, "Writer", "Initialize", "metrics registration")
		}

		w.writeErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acarsplit",
			Subsystem: "writer",
			Name:      "write_errors_total",
			Help:      "Failed bucket file writes",
		})
		if err := w.metricsRegistry.RegisterCounter("writer", "write_errors", w.writeErrors); err != nil {
			return errors.Wrap(err, "Writer", "Initialize", "metrics registration")
		}
	}

	return nil
}

// Start marks the writer running. Bucket files open lazily on first write.
func (w *Writer) Start(_ context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Writer", "Start",
			"writer already running")
	}

	w.running = true
	w.startTime = time.Now()
	w.logger.Info("bucket writer started", "directory", w.directory)
	return nil
}

// Stop closes all open bucket files.
func (w *Writer) Stop(_ time.Duration) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running {
		return nil
	}

	w.mu.Lock()
	for bucket, bf := range w.files {
		if err := bf.file.Close(); err != nil {
			w.logger.Warn("failed to close bucket file", "bucket", bucket, "error", err)
		}
	}
	w.files = make(map[string]*bucketFile)
	w.mu.Unlock()

	w.running = false
	w.logger.Info("bucket writer stopped")
	return nil
}

// Write appends a message to the named bucket file, inserting the message
// separator when the file already holds content. A failed write affects only
// its bucket; the error is returned for logging and the writer stays usable.
func (w *Writer) Write(bucket, message string) error {
	if bucket == "" || strings.ContainsAny(bucket, "/\\") || bucket == "." || bucket == ".." {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Writer", "Write",
			fmt.Sprintf("unsafe bucket name %q", bucket))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	bf, err := w.openLocked(bucket)
	if err != nil {
		w.recordError()
		return err
	}

	payload := message
	if bf.nonEmpty {
		payload = separator + message
	}

	n, err := bf.file.WriteString(payload)
	if err != nil {
		w.recordError()
		return errors.WrapTransient(errors.ErrWriteFailed, "Writer", "Write",
			fmt.Sprintf("append to %s: %v", bucket, err))
	}

	bf.nonEmpty = true
	atomic.AddInt64(&w.writtenCount, 1)
	w.lastActivity.Store(time.Now().UnixNano())

	if w.messagesWritten != nil {
		w.messagesWritten.WithLabelValues(bucket).Inc()
		w.bytesWritten.Add(float64(n))
	}

	w.logger.Debug("message written", "bucket", bucket, "bytes", n)
	return nil
}

// openLocked returns the open handle for bucket, creating it on first use.
// Caller holds w.mu.
func (w *Writer) openLocked(bucket string) (*bucketFile, error) {
	if bf, ok := w.files[bucket]; ok {
		return bf, nil
	}

	path := filepath.Join(w.directory, bucket)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // path is sanitized
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrWriteFailed, "Writer", "openLocked",
			fmt.Sprintf("open %s: %v", path, err))
	}

	// An existing non-empty file needs a separator before the next message
	nonEmpty := false
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		nonEmpty = true
	}

	bf := &bucketFile{file: f, nonEmpty: nonEmpty}
	w.files[bucket] = bf

	w.logger.Debug("opened bucket file", "bucket", bucket, "existing", nonEmpty)
	return bf, nil
}

func (w *Writer) recordError() {
	atomic.AddInt64(&w.errCount, 1)
	if w.writeErrors != nil {
		w.writeErrors.Inc()
	}
}

// Buckets returns the names of all buckets written so far.
func (w *Writer) Buckets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.files))
	for bucket := range w.files {
		out = append(out, bucket)
	}
	return out
}

// Meta returns component metadata
func (w *Writer) Meta() component.Metadata {
	return component.Metadata{
		Name:        "writer",
		Type:        "output",
		Description: "Appends classified messages to per-bucket files",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions
func (w *Writer) InputPorts() []component.Port {
	return []component.Port{
		{Name: "messages", Description: "Classified messages", DataType: "message"},
	}
}

// OutputPorts returns configured output port definitions
func (w *Writer) OutputPorts() []component.Port {
	return []component.Port{
		{Name: "buckets", Description: "Per-bucket append-only files", DataType: "file"},
	}
}

// ConfigSchema returns the configuration schema
func (w *Writer) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"output_dir": {
				Type:        "string",
				Description: "Directory holding bucket files",
				Default:     "output",
			},
		},
		Required: []string{"output_dir"},
	}
}

// Health returns the current health status
func (w *Writer) Health() component.HealthStatus {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	status := component.HealthStatus{
		Healthy:    w.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&w.errCount)),
	}
	if w.running {
		status.Uptime = time.Since(w.startTime)
	}
	return status
}

// DataFlow returns current data flow metrics
func (w *Writer) DataFlow() component.FlowMetrics {
	written := atomic.LoadInt64(&w.writtenCount)
	errorCount := atomic.LoadInt64(&w.errCount)

	var errorRate float64
	if written > 0 {
		errorRate = float64(errorCount) / float64(written)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: time.Unix(0, w.lastActivity.Load()),
	}
}
