package biz

import (
	"context"
	"sync"
	"time"

	"TaskSync/internal/model"
	syncerrors "TaskSync/pkg/errors"
	pkglog "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerConfig holds circuit breaker tuning for one dependency.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures while CLOSED
	// that trips the breaker to OPEN.
	FailureThreshold int
	// ResetTimeout is the cooldown before an OPEN breaker permits a probe.
	ResetTimeout time.Duration
	// BackoffMultiplier scales the cooldown after each failed probe.
	// 1.0 (the default) keeps the cooldown constant.
	BackoffMultiplier float64
}

// withDefaults fills zero-valued fields with safe defaults.
func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.BackoffMultiplier < 1.0 {
		c.BackoffMultiplier = 1.0
	}
	return c
}

// CircuitBreaker protects a single named operation against a failing
// dependency. State transitions follow the classic three-state machine:
//
//	CLOSED --(threshold consecutive failures)--> OPEN
//	OPEN   --(cooldown elapsed, one probe)-----> HALF_OPEN
//	HALF_OPEN --(probe succeeds)---------------> CLOSED
//	HALF_OPEN --(probe fails)------------------> OPEN (fresh cooldown)
//
// All transitions are serialized by the mutex; Status may be called
// concurrently with Execute.
type CircuitBreaker struct {
	name   string
	cfg    BreakerConfig
	logger *pkglog.LogHelper

	mu            sync.Mutex
	state         model.BreakerState
	failureCount  int
	openedAt      time.Time
	nextAttemptAt time.Time
	cooldown      time.Duration
	probing       bool

	totalCalls     int64
	totalSuccesses int64
	totalFailures  int64

	// now is replaceable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a CLOSED breaker for the named dependency.
func NewCircuitBreaker(name string, cfg BreakerConfig, logger log.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		cfg:      cfg.withDefaults(),
		logger:   pkglog.NewLogHelper(logger),
		state:    model.BreakerClosed,
		cooldown: cfg.withDefaults().ResetTimeout,
		now:      time.Now,
	}
}

// Name returns the protected dependency name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Execute runs op bounded by timeout, applying breaker semantics. A timeout
// counts as a failure identically to an error returned by op. When the
// breaker is OPEN and the cooldown has not elapsed, op is not invoked and a
// CircuitOpenError is returned; the rejection is counted in total calls but
// not as a failure.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error, timeout time.Duration) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := op(opCtx)
	if err == nil && opCtx.Err() != nil {
		// Operation returned nil but the deadline fired; treat as timeout.
		err = opCtx.Err()
	}

	b.afterCall(err)

	return err
}

// beforeCall counts the call and decides whether it may proceed.
func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case model.BreakerOpen:
		if b.now().Before(b.nextAttemptAt) {
			b.logger.Breaker("circuit breaker rejected call",
				"breaker", b.name,
				"state", b.state,
				"next_attempt_at", b.nextAttemptAt)
			return &syncerrors.CircuitOpenError{Name: b.name, RetryAt: b.nextAttemptAt}
		}
		// Cooldown elapsed: this call becomes the half-open probe.
		b.state = model.BreakerHalfOpen
		b.probing = true
		b.logger.Infow("msg", "circuit breaker half-open, probing",
			"breaker", b.name)
	case model.BreakerHalfOpen:
		if b.probing {
			// Exactly one in-flight probe is permitted.
			return &syncerrors.CircuitOpenError{Name: b.name, RetryAt: b.nextAttemptAt}
		}
		b.probing = true
	}

	return nil
}

// afterCall records the outcome and applies state transitions.
func (b *CircuitBreaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.totalSuccesses++
		b.onSuccess()
		return
	}

	b.totalFailures++
	b.onFailure(err)
}

// onSuccess resets failure tracking; a successful probe closes the breaker.
// Caller holds the mutex.
func (b *CircuitBreaker) onSuccess() {
	if b.state == model.BreakerHalfOpen {
		b.logger.Infow("msg", "circuit breaker recovered",
			"breaker", b.name,
			"open_duration", b.now().Sub(b.openedAt).String())
		b.state = model.BreakerClosed
		b.openedAt = time.Time{}
		b.nextAttemptAt = time.Time{}
		b.cooldown = b.cfg.ResetTimeout
	}
	b.failureCount = 0
	b.probing = false
}

// onFailure advances failure tracking; a failed probe reopens the breaker.
// Caller holds the mutex.
func (b *CircuitBreaker) onFailure(err error) {
	now := b.now()

	switch b.state {
	case model.BreakerHalfOpen:
		// Probe failed: back to OPEN with a fresh cooldown.
		b.cooldown = time.Duration(float64(b.cooldown) * b.cfg.BackoffMultiplier)
		b.state = model.BreakerOpen
		b.openedAt = now
		b.nextAttemptAt = now.Add(b.cooldown)
		b.probing = false
		b.logger.Errorw("msg", "circuit breaker probe failed, reopening",
			"breaker", b.name,
			"next_attempt_at", b.nextAttemptAt,
			"error", err.Error())
	case model.BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = model.BreakerOpen
			b.openedAt = now
			b.nextAttemptAt = now.Add(b.cooldown)
			// failureCount is meaningless while OPEN.
			b.failureCount = 0
			b.logger.Errorw("msg", "circuit breaker opened",
				"breaker", b.name,
				"threshold", b.cfg.FailureThreshold,
				"next_attempt_at", b.nextAttemptAt,
				"error", err.Error())
		} else {
			b.logger.Breaker("circuit breaker recorded failure",
				"breaker", b.name,
				"failure_count", b.failureCount,
				"threshold", b.cfg.FailureThreshold,
				"error", err.Error())
		}
	}
}

// Status returns a snapshot of the breaker including cumulative stats.
func (b *CircuitBreaker) Status() model.BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := model.BreakerStatus{
		Name:             b.name,
		State:            b.state,
		FailureCount:     b.failureCount,
		FailureThreshold: b.cfg.FailureThreshold,
		ResetTimeoutMs:   b.cooldown.Milliseconds(),
		TotalCalls:       b.totalCalls,
		TotalSuccesses:   b.totalSuccesses,
		TotalFailures:    b.totalFailures,
		IsHealthy:        b.state == model.BreakerClosed,
	}

	if !b.openedAt.IsZero() {
		openedAt := b.openedAt
		status.OpenedAt = &openedAt
	}
	if !b.nextAttemptAt.IsZero() {
		nextAttemptAt := b.nextAttemptAt
		status.NextAttemptAt = &nextAttemptAt
	}
	if b.totalCalls > 0 {
		status.SuccessRate = float64(b.totalSuccesses) / float64(b.totalCalls)
	}

	return status
}

// Reset unconditionally forces the breaker to CLOSED and clears failure
// tracking. Cumulative stats are historical and survive a reset.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != model.BreakerClosed {
		b.logger.Infow("msg", "circuit breaker reset",
			"breaker", b.name,
			"previous_state", b.state)
	}

	b.state = model.BreakerClosed
	b.failureCount = 0
	b.openedAt = time.Time{}
	b.nextAttemptAt = time.Time{}
	b.cooldown = b.cfg.ResetTimeout
	b.probing = false
}
