package biz

import (
	"context"
	"sync"
	"time"

	"TaskSync/internal/conf"
	"TaskSync/internal/model"
	syncerrors "TaskSync/pkg/errors"
	pkglog "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerPrimarySync is the registry name of the breaker protecting the
// TaskMaster API sync call.
const BreakerPrimarySync = "taskmaster-sync"

// TriggerFileChange and friends label what initiated a sync attempt.
const (
	TriggerFileChange = "file-change"
	TriggerManual     = "manual"
	TriggerScheduled  = "scheduled"
)

// SyncGateway is the primary, networked sync path against the TaskMaster API.
type SyncGateway interface {
	// TriggerSync posts a sync trigger; any non-2xx response or transport
	// failure is an error.
	TriggerSync(ctx context.Context, trigger string) error
	// HealthEndpoint returns the full URL of the API's health surface.
	HealthEndpoint() string
}

// FallbackRunner is the secondary, local sync path (the task CLI).
type FallbackRunner interface {
	Run(ctx context.Context) error
}

// StatusPublisher mirrors coordinator and breaker state for the dashboard.
// Implementations must degrade gracefully: publishing is best effort and a
// failure never fails a sync.
type StatusPublisher interface {
	PublishSyncStatus(ctx context.Context, status model.SyncStatus) error
	PublishBreakerStatus(ctx context.Context, status model.BreakerStatus) error
}

// SyncConfig carries the coordinator tuning derived from bootstrap config.
type SyncConfig struct {
	WatchFile            string
	Debounce             time.Duration
	SyncTimeout          time.Duration
	HealthTimeout        time.Duration
	FallbackTimeout      time.Duration
	MaxConsecutiveErrors int
	Breaker              BreakerConfig
}

// NewSyncConfig derives the coordinator configuration from bootstrap config.
func NewSyncConfig(bc *conf.Bootstrap) SyncConfig {
	return SyncConfig{
		WatchFile:            bc.Watch.File,
		Debounce:             bc.Watch.Debounce.AsDuration(),
		SyncTimeout:          bc.Sync.Timeout.AsDuration(),
		HealthTimeout:        bc.Sync.HealthTimeout.AsDuration(),
		FallbackTimeout:      bc.Sync.FallbackTimeout.AsDuration(),
		MaxConsecutiveErrors: bc.Sync.MaxConsecutiveErrors,
		Breaker: BreakerConfig{
			FailureThreshold: bc.Breaker.FailureThreshold,
			ResetTimeout:     bc.Breaker.ResetTimeout.AsDuration(),
		},
	}
}

// SyncUsecase coordinates the response to file changes: primary
// breaker-protected sync against the TaskMaster API with a local CLI
// fallback, consecutive-failure tracking, and a fail-fast halt once the
// dependency is persistently down.
//
// Sync attempts are strictly sequential: triggers land in a single-slot
// queue, so a change arriving mid-sync produces exactly one follow-up
// attempt rather than a pile-up.
type SyncUsecase struct {
	cfg      SyncConfig
	gateway  SyncGateway
	fallback FallbackRunner
	status   StatusPublisher
	registry *BreakerRegistry
	probe    *HealthProbe
	watcher  *ChangeWatcher
	breaker  *CircuitBreaker
	logger   *pkglog.LogHelper

	mu           sync.Mutex
	halted       bool
	lastSyncTime time.Time
	syncCount    int64
	errorCount   int
	attempts     int64

	// syncMu serializes performSync across the trigger loop and ManualSync.
	syncMu sync.Mutex

	triggers chan string
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now is replaceable for tests.
	now func() time.Time
}

// NewSyncUsecase wires the coordinator. The primary breaker is obtained from
// the shared registry so other surfaces (status endpoints, health sweep) see
// the same fault state.
func NewSyncUsecase(
	cfg SyncConfig,
	gateway SyncGateway,
	fallback FallbackRunner,
	status StatusPublisher,
	registry *BreakerRegistry,
	probe *HealthProbe,
	watcher *ChangeWatcher,
	logger log.Logger,
) *SyncUsecase {
	return &SyncUsecase{
		cfg:      cfg,
		gateway:  gateway,
		fallback: fallback,
		status:   status,
		registry: registry,
		probe:    probe,
		watcher:  watcher,
		breaker:  registry.GetOrCreate(BreakerPrimarySync, cfg.Breaker),
		logger:   pkglog.NewLogHelper(logger),
		triggers: make(chan string, 1),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins watching the configured file and processing triggers.
// It returns a WatchSetupError if the tracked file does not exist.
func (uc *SyncUsecase) Start(ctx context.Context) error {
	if err := uc.watcher.Start(uc.cfg.WatchFile, func() {
		uc.enqueue(TriggerFileChange)
	}); err != nil {
		return err
	}

	uc.wg.Add(1)
	go uc.run()

	uc.logger.Sync("sync coordinator started",
		"watch_file", uc.cfg.WatchFile,
		"debounce", uc.cfg.Debounce.String(),
		"max_consecutive_errors", uc.cfg.MaxConsecutiveErrors)

	return nil
}

// Stop shuts down the trigger loop and the watcher. Idempotent.
func (uc *SyncUsecase) Stop(ctx context.Context) error {
	uc.stopOnce.Do(func() {
		close(uc.stop)
	})
	uc.watcher.Stop()
	uc.wg.Wait()
	return nil
}

// run is the single coordinator goroutine: it drains the trigger queue and
// performs one sync at a time.
func (uc *SyncUsecase) run() {
	defer uc.wg.Done()

	for {
		select {
		case <-uc.stop:
			return
		case trigger := <-uc.triggers:
			_ = uc.performSync(context.Background(), trigger)
		}
	}
}

// enqueue records a pending trigger. The single-slot channel coalesces
// triggers arriving while a sync is in flight into one follow-up attempt.
func (uc *SyncUsecase) enqueue(trigger string) {
	uc.mu.Lock()
	halted := uc.halted
	uc.mu.Unlock()

	if halted {
		return
	}

	select {
	case uc.triggers <- trigger:
	default:
		// A trigger is already pending; the queued sync will pick up this
		// change as well.
	}
}

// ManualSync performs one sync attempt outside the file-change path (CLI or
// HTTP trigger). It shares SyncState with automatic syncs and is subject to
// the same halt rule. A halted coordinator rejects manual syncs until an
// explicit Resume.
func (uc *SyncUsecase) ManualSync(ctx context.Context) error {
	uc.mu.Lock()
	if uc.halted {
		err := &syncerrors.SyncHaltedError{ErrorCount: uc.errorCount, Limit: uc.cfg.MaxConsecutiveErrors}
		uc.mu.Unlock()
		return err
	}
	uc.mu.Unlock()

	return uc.performSync(ctx, TriggerManual)
}

// ScheduledSync performs the periodic reconcile sync issued by the cron job.
func (uc *SyncUsecase) ScheduledSync(ctx context.Context) error {
	uc.mu.Lock()
	if uc.halted {
		err := &syncerrors.SyncHaltedError{ErrorCount: uc.errorCount, Limit: uc.cfg.MaxConsecutiveErrors}
		uc.mu.Unlock()
		return err
	}
	uc.mu.Unlock()

	return uc.performSync(ctx, TriggerScheduled)
}

// performSync runs one best-effort sync attempt: pre-flight health check,
// breaker-protected primary path, then the local fallback.
func (uc *SyncUsecase) performSync(ctx context.Context, trigger string) error {
	uc.syncMu.Lock()
	defer uc.syncMu.Unlock()

	uc.mu.Lock()
	// The halt is a cancellation: a trigger that slipped into the queue
	// while the final failing sync was in flight must not run now.
	if uc.halted {
		err := &syncerrors.SyncHaltedError{ErrorCount: uc.errorCount, Limit: uc.cfg.MaxConsecutiveErrors}
		uc.mu.Unlock()
		return err
	}
	uc.attempts++
	attempt := uc.attempts
	uc.mu.Unlock()

	start := uc.now()

	// Pre-flight: a cheap, breaker-exempt connectivity check. A dependency
	// already known to be unreachable should not burn a breaker attempt.
	var primaryErr error
	if uc.probe.Check(ctx, uc.gateway.HealthEndpoint(), uc.cfg.HealthTimeout) {
		primaryErr = uc.breaker.Execute(ctx, func(opCtx context.Context) error {
			return uc.gateway.TriggerSync(opCtx, trigger)
		}, uc.cfg.SyncTimeout)

		if primaryErr == nil {
			uc.recordSuccess(ctx, model.SyncPathPrimary, trigger, attempt, start)
			return nil
		}

		if syncerrors.IsCircuitOpen(primaryErr) {
			uc.logger.Warnw("msg", "primary sync short-circuited, using fallback",
				"trigger", trigger,
				"attempt", attempt)
		} else {
			uc.logger.Warnw("msg", "primary sync failed, using fallback",
				"trigger", trigger,
				"attempt", attempt,
				"error", primaryErr.Error())
		}
	} else {
		uc.logger.Warnw("msg", "pre-flight health check failed, using fallback",
			"trigger", trigger,
			"attempt", attempt,
			"endpoint", uc.gateway.HealthEndpoint())
	}

	// Fallback: local path, deliberately not breaker-wrapped. Its failures
	// are not an external dependency's failures to rate-limit.
	fbCtx, cancel := context.WithTimeout(ctx, uc.cfg.FallbackTimeout)
	defer cancel()

	if err := uc.fallback.Run(fbCtx); err != nil {
		uc.recordFailure(ctx, trigger, attempt, start, err)
		return err
	}

	uc.recordSuccess(ctx, model.SyncPathFallback, trigger, attempt, start)
	return nil
}

// recordSuccess updates SyncState after a successful attempt on either path.
func (uc *SyncUsecase) recordSuccess(ctx context.Context, path model.SyncPath, trigger string, attempt int64, start time.Time) {
	uc.mu.Lock()
	uc.syncCount++
	uc.errorCount = 0
	uc.lastSyncTime = uc.now()
	uc.mu.Unlock()

	uc.logger.Success("sync completed",
		"path", string(path),
		"trigger", trigger,
		"attempt", attempt,
		"duration_ms", uc.now().Sub(start).Milliseconds())

	uc.publish(ctx)
}

// recordFailure updates SyncState after both paths failed, halting the
// watcher once the consecutive error limit is reached.
func (uc *SyncUsecase) recordFailure(ctx context.Context, trigger string, attempt int64, start time.Time, err error) {
	uc.mu.Lock()
	uc.errorCount++
	errorCount := uc.errorCount
	halt := errorCount >= uc.cfg.MaxConsecutiveErrors && !uc.halted
	if halt {
		uc.halted = true
	}
	uc.mu.Unlock()

	uc.logger.Errorw("msg", "sync failed on all paths",
		"trigger", trigger,
		"attempt", attempt,
		"error_count", errorCount,
		"duration_ms", uc.now().Sub(start).Milliseconds(),
		"error", err.Error())

	if halt {
		// Fail-fast: stop retrying a dependency that is persistently down.
		// A human restarts the process or issues an explicit reset.
		uc.watcher.Stop()
		uc.logger.Errorw("msg", "sync halted, watcher stopped",
			"error_count", errorCount,
			"limit", uc.cfg.MaxConsecutiveErrors)
	}

	uc.publish(ctx)
}

// publish mirrors the current coordinator and breaker state. Best effort.
func (uc *SyncUsecase) publish(ctx context.Context) {
	if uc.status == nil {
		return
	}

	if err := uc.status.PublishSyncStatus(ctx, uc.Status()); err != nil {
		uc.logger.Warnw("msg", "failed to publish sync status", "error", err.Error())
	}
	if err := uc.status.PublishBreakerStatus(ctx, uc.breaker.Status()); err != nil {
		uc.logger.Warnw("msg", "failed to publish breaker status", "error", err.Error())
	}
}

// Status returns a snapshot of the coordinator's SyncState.
func (uc *SyncUsecase) Status() model.SyncStatus {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	status := model.SyncStatus{
		IsWatching: uc.watcher.Active(),
		Halted:     uc.halted,
		SyncCount:  uc.syncCount,
		ErrorCount: uc.errorCount,
		Attempts:   uc.attempts,
		DebounceMs: uc.cfg.Debounce.Milliseconds(),
		UpdatedAt:  uc.now(),
	}

	if !uc.lastSyncTime.IsZero() {
		lastSync := uc.lastSyncTime
		status.LastSyncTime = &lastSync
	}

	return status
}

// Resume clears a halt and restarts the watcher. This is the explicit
// operator recovery action paired with a breaker reset.
func (uc *SyncUsecase) Resume(ctx context.Context) error {
	uc.mu.Lock()
	wasHalted := uc.halted
	uc.halted = false
	uc.errorCount = 0
	uc.mu.Unlock()

	if !uc.watcher.Active() {
		if err := uc.watcher.Start(uc.cfg.WatchFile, func() {
			uc.enqueue(TriggerFileChange)
		}); err != nil {
			return err
		}
	}

	if wasHalted {
		uc.logger.Sync("sync coordinator resumed after halt")
	}

	uc.publish(ctx)
	return nil
}
