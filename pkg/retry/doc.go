// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, used by
// the UDP listeners during socket binding and available for any transient operation.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (component startup)
//
// # Usage
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return listener.bindSocket()
//	})
//
// Mark an error as not worth retrying:
//
//	return retry.NonRetryable(errors.ErrInvalidConfig)
//
// # Design Philosophy
//
// Intentionally minimal: no circuit breakers, no metrics collection, no error
// classification beyond the NonRetryable marker. Just exponential backoff with
// jitter and context cancellation support.
package retry
