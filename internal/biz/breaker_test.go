package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"TaskSync/internal/model"
	syncerrors "TaskSync/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDependencyDown = errors.New("dependency down")

// newTestBreaker creates a breaker with a controllable clock.
func newTestBreaker(t *testing.T, cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	t.Helper()

	b := NewCircuitBreaker("test-dep", cfg, log.NewStdLogger(os.Stdout))

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	return b, &now
}

func failingOp(context.Context) error { return errDependencyDown }
func succeedingOp(context.Context) error { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{})

	status := b.Status()
	assert.Equal(t, model.BreakerClosed, status.State)
	assert.True(t, status.IsHealthy)
	assert.Equal(t, int64(0), status.TotalCalls)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Execute(ctx, failingOp, time.Second)
		assert.ErrorIs(t, err, errDependencyDown)
		assert.Equal(t, model.BreakerClosed, b.Status().State)
	}

	// Third consecutive failure trips the breaker.
	err := b.Execute(ctx, failingOp, time.Second)
	assert.ErrorIs(t, err, errDependencyDown)

	status := b.Status()
	assert.Equal(t, model.BreakerOpen, status.State)
	assert.False(t, status.IsHealthy)
	// failureCount resets on entering OPEN.
	assert.Equal(t, 0, status.FailureCount)
	require.NotNil(t, status.OpenedAt)
	require.NotNil(t, status.NextAttemptAt)
	assert.Equal(t, 30*time.Second, status.NextAttemptAt.Sub(*status.OpenedAt))
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3})
	ctx := context.Background()

	_ = b.Execute(ctx, failingOp, time.Second)
	_ = b.Execute(ctx, failingOp, time.Second)
	require.NoError(t, b.Execute(ctx, succeedingOp, time.Second))

	// Two more failures should not trip: the streak restarted.
	_ = b.Execute(ctx, failingOp, time.Second)
	_ = b.Execute(ctx, failingOp, time.Second)
	assert.Equal(t, model.BreakerClosed, b.Status().State)
}

func TestBreaker_RejectsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failingOp, time.Second))
	require.Equal(t, model.BreakerOpen, b.Status().State)

	invoked := false
	err := b.Execute(ctx, func(context.Context) error {
		invoked = true
		return nil
	}, time.Second)

	// Short-circuited: op never runs, caller gets CircuitOpenError.
	assert.False(t, invoked)
	assert.True(t, syncerrors.IsCircuitOpen(err))

	var openErr *syncerrors.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test-dep", openErr.Name)

	// The rejection counts as a call but not as a failure.
	status := b.Status()
	assert.Equal(t, int64(2), status.TotalCalls)
	assert.Equal(t, int64(1), status.TotalFailures)
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failingOp, time.Second))
	require.Equal(t, model.BreakerOpen, b.Status().State)

	// Cooldown elapses; the next call becomes the probe and succeeds.
	*now = now.Add(31 * time.Second)
	require.NoError(t, b.Execute(ctx, succeedingOp, time.Second))

	status := b.Status()
	assert.Equal(t, model.BreakerClosed, status.State)
	assert.Nil(t, status.OpenedAt)
	assert.Nil(t, status.NextAttemptAt)
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failingOp, time.Second))
	firstAttemptAt := *b.Status().NextAttemptAt

	*now = now.Add(31 * time.Second)
	require.Error(t, b.Execute(ctx, failingOp, time.Second))

	status := b.Status()
	assert.Equal(t, model.BreakerOpen, status.State)
	require.NotNil(t, status.NextAttemptAt)
	// The failed probe re-arms the cooldown from the probe time, so the
	// next attempt is strictly later than the original one.
	assert.True(t, status.NextAttemptAt.After(firstAttemptAt))
}

func TestBreaker_BackoffMultiplierExtendsCooldown(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{
		FailureThreshold:  1,
		ResetTimeout:      10 * time.Second,
		BackoffMultiplier: 2.0,
	})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failingOp, time.Second))

	*now = now.Add(11 * time.Second)
	require.Error(t, b.Execute(ctx, failingOp, time.Second))

	status := b.Status()
	require.NotNil(t, status.OpenedAt)
	require.NotNil(t, status.NextAttemptAt)
	assert.Equal(t, 20*time.Second, status.NextAttemptAt.Sub(*status.OpenedAt))
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	err := b.Execute(ctx, func(opCtx context.Context) error {
		<-opCtx.Done()
		return opCtx.Err()
	}, 10*time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.BreakerOpen, b.Status().State)
}

func TestBreaker_ResetPreservesStats(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	require.NoError(t, b.Execute(ctx, succeedingOp, time.Second))
	require.Error(t, b.Execute(ctx, failingOp, time.Second))
	require.Equal(t, model.BreakerOpen, b.Status().State)

	b.Reset()

	status := b.Status()
	assert.Equal(t, model.BreakerClosed, status.State)
	assert.Equal(t, 0, status.FailureCount)
	assert.Nil(t, status.OpenedAt)
	// Cumulative stats are historical and survive.
	assert.Equal(t, int64(2), status.TotalCalls)
	assert.Equal(t, int64(1), status.TotalSuccesses)
	assert.Equal(t, int64(1), status.TotalFailures)
}

func TestBreaker_ResetIdempotent(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{})

	b.Reset()
	b.Reset()

	assert.Equal(t, model.BreakerClosed, b.Status().State)
}

func TestBreaker_SuccessRate(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 10})
	ctx := context.Background()

	assert.Equal(t, float64(0), b.Status().SuccessRate)

	require.NoError(t, b.Execute(ctx, succeedingOp, time.Second))
	require.NoError(t, b.Execute(ctx, succeedingOp, time.Second))
	require.NoError(t, b.Execute(ctx, succeedingOp, time.Second))
	require.Error(t, b.Execute(ctx, failingOp, time.Second))

	assert.InDelta(t, 0.75, b.Status().SuccessRate, 0.0001)
}
