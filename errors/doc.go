// Package errors provides standardized error handling patterns for acarsplit.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// The classification maps the system's error taxonomy directly:
//
//   - Fatal: configuration errors (missing ports, invalid config) — the
//     process must not start
//   - Invalid: malformed input (non-UTF-8 datagrams, delimiter-free logs) —
//     dropped locally with a warning
//   - Transient: I/O failures (bucket writes, socket errors) — isolated and
//     retried or counted
//
// The system integrates with Go's standard error handling, supporting
// errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if len(cfg.Ports) == 0 {
//	    return errors.ErrNoPorts
//	}
//
// Wrap errors with context:
//
//	if err := w.Append(bucket, msg); err != nil {
//	    return errors.WrapTransient(err, "Writer", "Append", "bucket write")
//	}
//
// Check classification for handling decisions:
//
//	if errors.IsFatal(err) {
//	    os.Exit(1)
//	}
package errors
