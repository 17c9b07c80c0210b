// Package model holds types shared across the biz, data and service layers.
package model

import "time"

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	// BreakerClosed is the normal operating state: calls pass through.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means the breaker has tripped: calls are rejected.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen permits a single probe call to test recovery.
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerStatus is a point-in-time snapshot of a circuit breaker.
type BreakerStatus struct {
	Name             string       `json:"name"`
	State            BreakerState `json:"state"`
	FailureCount     int          `json:"failure_count"`
	FailureThreshold int          `json:"failure_threshold"`
	OpenedAt         *time.Time   `json:"opened_at,omitempty"`
	NextAttemptAt    *time.Time   `json:"next_attempt_at,omitempty"`
	ResetTimeoutMs   int64        `json:"reset_timeout_ms"`
	TotalCalls       int64        `json:"total_calls"`
	TotalSuccesses   int64        `json:"total_successes"`
	TotalFailures    int64        `json:"total_failures"`
	SuccessRate      float64      `json:"success_rate"`
	IsHealthy        bool         `json:"is_healthy"`
}

// SyncStatus is a point-in-time snapshot of the sync coordinator.
type SyncStatus struct {
	IsWatching   bool       `json:"is_watching"`
	Halted       bool       `json:"halted"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	SyncCount    int64      `json:"sync_count"`
	ErrorCount   int        `json:"error_count"`
	Attempts     int64      `json:"attempts"`
	DebounceMs   int64      `json:"debounce_ms"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncPath identifies which path satisfied (or failed) a sync attempt.
type SyncPath string

const (
	// SyncPathPrimary is the breaker-protected TaskMaster API call.
	SyncPathPrimary SyncPath = "primary"
	// SyncPathFallback is the local task CLI invocation.
	SyncPathFallback SyncPath = "fallback"
)

// DependencyHealth reports a single dependency's probe result.
type DependencyHealth struct {
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}
