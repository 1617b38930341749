package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"write failed", ErrWriteFailed, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"not utf8", ErrNotUTF8, false},
		{"no ports", ErrNoPorts, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"no ports", ErrNoPorts, true},
		{"not utf8", ErrNotUTF8, false},
		{"write failed", ErrWriteFailed, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"not utf8", ErrNotUTF8, true},
		{"no delimiter", ErrNoDelimiter, true},
		{"no ports", ErrNoPorts, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil defaults to transient", nil, ErrorTransient},
		{"fatal config", ErrNoPorts, ErrorFatal},
		{"invalid datagram", ErrNotUTF8, ErrorInvalid},
		{"write error", ErrWriteFailed, ErrorTransient},
		{"unknown defaults to transient", fmt.Errorf("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("boom")
	err := Wrap(base, "Writer", "Append", "bucket write")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Writer.Append: bucket write failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapClassifications(t *testing.T) {
	base := ErrWriteFailed

	transient := WrapTransient(base, "Writer", "Append", "write")
	if !IsTransient(transient) {
		t.Error("WrapTransient should produce transient error")
	}
	if !errors.Is(transient, ErrWriteFailed) {
		t.Error("classified error should preserve sentinel")
	}

	fatal := WrapFatal(ErrNoPorts, "Loader", "Load", "port validation")
	if !IsFatal(fatal) {
		t.Error("WrapFatal should produce fatal error")
	}

	invalid := WrapInvalid(ErrNotUTF8, "Listener", "readLoop", "decode")
	if !IsInvalid(invalid) {
		t.Error("WrapInvalid should produce invalid error")
	}

	if WrapTransient(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}
