package main

import (
	"context"
	"fmt"
	"time"

	"TaskSync/internal/biz"
	"TaskSync/internal/conf"
	pkglog "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// cronServer runs the daemon's scheduled jobs as a Kratos transport server:
//   - reconcile sync every 6 hours, catching changes the watcher missed
//     (e.g. edits made while the process was down)
//   - dependency health sweep every minute, run through the breakers so
//     dashboard state reflects real connectivity
type cronServer struct {
	cron     *cron.Cron
	uc       *biz.SyncUsecase
	registry *biz.BreakerRegistry
	probe    *biz.HealthProbe
	bc       *conf.Bootstrap
	logger   *pkglog.LogHelper
}

// newCronServer registers the scheduled jobs without starting them.
func newCronServer(uc *biz.SyncUsecase, registry *biz.BreakerRegistry, probe *biz.HealthProbe, bc *conf.Bootstrap, logger log.Logger) (*cronServer, error) {
	s := &cronServer{
		cron:     cron.New(cron.WithSeconds()),
		uc:       uc,
		registry: registry,
		probe:    probe,
		bc:       bc,
		logger:   pkglog.NewLogHelper(logger),
	}

	// Reconcile every 6 hours on the hour (0:00, 6:00, 12:00, 18:00).
	if _, err := s.cron.AddFunc("0 0 */6 * * *", s.reconcile); err != nil {
		return nil, fmt.Errorf("register reconcile job: %w", err)
	}

	// Health sweep at the top of every minute.
	if _, err := s.cron.AddFunc("0 * * * * *", s.healthSweep); err != nil {
		return nil, fmt.Errorf("register health sweep job: %w", err)
	}

	return s, nil
}

// Start begins the schedule. Implements transport.Server.
func (s *cronServer) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Scheduler("scheduled jobs started",
		"reconcile", "every 6 hours",
		"health_sweep", "every minute")
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (s *cronServer) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduled jobs stopped")
	return nil
}

// reconcile performs a scheduled sync so state converges even when file
// events were missed.
func (s *cronServer) reconcile() {
	s.logger.Scheduler("starting scheduled reconcile sync")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.uc.ScheduledSync(ctx); err != nil {
		s.logger.Errorw("msg", "scheduled reconcile sync failed", "error", err.Error())
		return
	}
	s.logger.Scheduler("scheduled reconcile sync completed")
}

// healthSweep probes each monitored dependency through its breaker so an
// unreachable dependency trips its breaker even between syncs.
func (s *cronServer) healthSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := s.bc.Sync.HealthTimeout.AsDuration()
	breakerCfg := biz.BreakerConfig{
		FailureThreshold: s.bc.Breaker.FailureThreshold,
		ResetTimeout:     s.bc.Breaker.ResetTimeout.AsDuration(),
	}

	// The sweep uses its own breaker per dependency so probe traffic never
	// skews the sync breaker's call stats.
	targets := []struct {
		breaker  string
		endpoint string
	}{
		{"taskmaster-health", s.bc.Sync.ApiBase + s.bc.Sync.HealthPath},
		{"ai-proxy", s.bc.AIProxy.Base + s.bc.AIProxy.HealthPath},
	}

	for _, t := range targets {
		breaker := s.registry.GetOrCreate(t.breaker, breakerCfg)
		endpoint := t.endpoint

		err := breaker.Execute(ctx, func(opCtx context.Context) error {
			if !s.probe.Probe(opCtx, endpoint, timeout) {
				return fmt.Errorf("health probe failed for %s", endpoint)
			}
			return nil
		}, timeout)
		if err != nil {
			s.logger.Debugw("msg", "health sweep target unhealthy",
				"breaker", t.breaker,
				"endpoint", endpoint,
				"error", err.Error())
		}
	}
}
