// Package errors provides typed errors for the sync subsystem so callers can
// distinguish failure modes with errors.As instead of string matching.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// WatchSetupError indicates the tracked file was missing when the watcher
// started. This is a fatal precondition and is never retried.
type WatchSetupError struct {
	Path        string
	OriginalErr error
}

// Error implements the error interface.
func (e *WatchSetupError) Error() string {
	return fmt.Sprintf("watch setup failed for %s: %v", e.Path, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *WatchSetupError) Unwrap() error {
	return e.OriginalErr
}

// CircuitOpenError indicates a call was rejected without execution because
// the breaker is OPEN. It does not count as a breaker failure: the protected
// operation never ran.
type CircuitOpenError struct {
	Name    string
	RetryAt time.Time
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, next attempt allowed at %s",
		e.Name, e.RetryAt.Format(time.RFC3339))
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// FallbackError indicates the local fallback sync command failed. It is the
// final failure mode for a sync attempt and drives the consecutive error count.
type FallbackError struct {
	Command     string
	ExitCode    int
	Stderr      string
	OriginalErr error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("fallback command %q failed (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("fallback command %q failed (exit %d): %v", e.Command, e.ExitCode, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *FallbackError) Unwrap() error {
	return e.OriginalErr
}

// SyncHaltedError indicates the coordinator reached its consecutive error
// limit and shut the watcher down. An explicit operator reset is required.
type SyncHaltedError struct {
	ErrorCount int
	Limit      int
}

// Error implements the error interface.
func (e *SyncHaltedError) Error() string {
	return fmt.Sprintf("sync halted after %d consecutive failures (limit %d); explicit reset required",
		e.ErrorCount, e.Limit)
}

// IsSyncHalted reports whether err is (or wraps) a SyncHaltedError.
func IsSyncHalted(err error) bool {
	var she *SyncHaltedError
	return errors.As(err, &she)
}
