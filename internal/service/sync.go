// Package service implements the HTTP-facing application services.
package service

import (
	"context"
	"errors"
	"time"

	"TaskSync/internal/biz"
	"TaskSync/internal/conf"
	"TaskSync/internal/model"
	syncerrors "TaskSync/pkg/errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewSyncService)

// SyncService exposes the daemon's control surface over HTTP: manual sync
// triggers, status snapshots, breaker inspection and reset, and dependency
// health.
type SyncService struct {
	uc       *biz.SyncUsecase
	registry *biz.BreakerRegistry
	probe    *biz.HealthProbe
	bc       *conf.Bootstrap
	logger   *log.Helper

	startedAt time.Time
}

// NewSyncService creates the service.
func NewSyncService(uc *biz.SyncUsecase, registry *biz.BreakerRegistry, probe *biz.HealthProbe, bc *conf.Bootstrap, logger log.Logger) *SyncService {
	return &SyncService{
		uc:        uc,
		registry:  registry,
		probe:     probe,
		bc:        bc,
		logger:    log.NewHelper(logger),
		startedAt: time.Now(),
	}
}

// RegisterRoutes attaches the service's routes to the HTTP server.
func (s *SyncService) RegisterRoutes(srv *khttp.Server) {
	r := srv.Route("/")
	r.GET("/health", s.handleHealth)
	r.GET("/api/sync/status", s.handleStatus)
	r.POST("/api/sync/trigger", s.handleTrigger)
	r.POST("/api/sync/resume", s.handleResume)
	r.GET("/api/breakers", s.handleBreakers)
	r.POST("/api/breakers/reset", s.handleBreakersReset)
	r.GET("/api/dependencies", s.handleDependencies)
}

type triggerReply struct {
	Status string `json:"status"`
}

// handleTrigger performs one manual sync attempt.
func (s *SyncService) handleTrigger(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := s.uc.ManualSync(c); err != nil {
			return nil, mapSyncError(err)
		}
		return &triggerReply{Status: "ok"}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// handleResume clears a halt and restarts the watcher.
func (s *SyncService) handleResume(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := s.uc.Resume(c); err != nil {
			return nil, mapSyncError(err)
		}
		return &triggerReply{Status: "ok"}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// handleStatus returns the coordinator's SyncState snapshot.
func (s *SyncService) handleStatus(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		status := s.uc.Status()
		return &status, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

type breakersReply struct {
	Breakers []model.BreakerStatus `json:"breakers"`
}

// handleBreakers returns the status of every registered breaker.
func (s *SyncService) handleBreakers(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return &breakersReply{Breakers: s.registry.Snapshot()}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

type breakersResetRequest struct {
	// Name selects one breaker; empty resets all.
	Name string `json:"name"`
}

type breakersResetReply struct {
	Status string   `json:"status"`
	Reset  []string `json:"reset"`
}

// handleBreakersReset forces breakers back to CLOSED. With a name in the
// body only that breaker is reset; otherwise all of them.
func (s *SyncService) handleBreakersReset(ctx khttp.Context) error {
	// An empty body resets everything; a bad body is treated the same way.
	var req breakersResetRequest
	_ = ctx.Bind(&req)

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if req.Name != "" {
			breaker, ok := s.registry.Get(req.Name)
			if !ok {
				return nil, kerrors.NotFound("BREAKER_NOT_FOUND", "no breaker named "+req.Name)
			}
			breaker.Reset()
			return &breakersResetReply{Status: "ok", Reset: []string{req.Name}}, nil
		}

		names := make([]string, 0)
		for _, st := range s.registry.Snapshot() {
			names = append(names, st.Name)
		}
		s.registry.ResetAll()

		// A full reset is the operator recovery action: it also clears a
		// halted coordinator and restarts the watcher.
		if err := s.uc.Resume(c); err != nil {
			return nil, mapSyncError(err)
		}

		return &breakersResetReply{Status: "ok", Reset: names}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

type healthReply struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_seconds"`
	Watching  bool   `json:"watching"`
	Halted    bool   `json:"halted"`
}

// handleHealth is the daemon's own liveness surface. It reports healthy as
// long as the process is serving; a halted coordinator is visible but not
// fatal.
func (s *SyncService) handleHealth(ctx khttp.Context) error {
	status := s.uc.Status()
	return ctx.Result(200, &healthReply{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
		Watching:  status.IsWatching,
		Halted:    status.Halted,
	})
}

type dependenciesReply struct {
	Dependencies []model.DependencyHealth `json:"dependencies"`
}

// handleDependencies probes the monitored dependency health endpoints,
// serving cached results when fresh.
func (s *SyncService) handleDependencies(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		timeout := s.bc.Sync.HealthTimeout.AsDuration()
		now := time.Now()

		deps := []model.DependencyHealth{
			{
				Name:      s.bc.Sync.Dependency,
				Endpoint:  s.taskmasterHealthURL(),
				Healthy:   s.probe.Check(c, s.taskmasterHealthURL(), timeout),
				CheckedAt: now,
			},
			{
				Name:      "ai-proxy",
				Endpoint:  s.aiProxyHealthURL(),
				Healthy:   s.probe.Check(c, s.aiProxyHealthURL(), timeout),
				CheckedAt: now,
			},
		}

		return &dependenciesReply{Dependencies: deps}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

func (s *SyncService) taskmasterHealthURL() string {
	return s.bc.Sync.ApiBase + s.bc.Sync.HealthPath
}

func (s *SyncService) aiProxyHealthURL() string {
	return s.bc.AIProxy.Base + s.bc.AIProxy.HealthPath
}

// mapSyncError translates the domain error taxonomy into transport errors.
func mapSyncError(err error) error {
	switch {
	case syncerrors.IsSyncHalted(err):
		return kerrors.Conflict("SYNC_HALTED", err.Error())
	case syncerrors.IsCircuitOpen(err):
		return kerrors.ServiceUnavailable("CIRCUIT_OPEN", err.Error())
	default:
		var fbErr *syncerrors.FallbackError
		if errors.As(err, &fbErr) {
			// Both paths exhausted: the upstream side failed.
			return kerrors.New(502, "FALLBACK_FAILED", err.Error())
		}
		var watchErr *syncerrors.WatchSetupError
		if errors.As(err, &watchErr) {
			return kerrors.BadRequest("WATCH_SETUP_FAILED", err.Error())
		}
		return kerrors.New(502, "SYNC_FAILED", err.Error())
	}
}
