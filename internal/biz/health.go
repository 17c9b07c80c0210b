package biz

import (
	"context"
	"net/http"
	"time"

	pkglog "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// healthCacheSize bounds the number of cached probe results; the daemon
	// only ever probes a handful of endpoints.
	healthCacheSize = 16
	// healthCacheTTL is how long a probe result stays fresh. Dashboard
	// widgets poll the health surface faster than dependencies change.
	healthCacheTTL = 5 * time.Second
)

// HealthProbe performs bounded-time connectivity checks against dependency
// health endpoints. Results are cached briefly so the pre-flight check and
// the HTTP health surface don't hammer a dependency's /health.
//
// Check never returns an error: every failure mode (connection refused,
// timeout, non-2xx status) collapses to unhealthy.
type HealthProbe struct {
	client *http.Client
	cache  *expirable.LRU[string, bool]
	logger *pkglog.LogHelper
}

// NewHealthProbe creates a probe with a shared HTTP client. Per-call
// timeouts come from the request context, not the client.
func NewHealthProbe(logger log.Logger) *HealthProbe {
	return &HealthProbe{
		client: &http.Client{},
		cache:  expirable.NewLRU[string, bool](healthCacheSize, nil, healthCacheTTL),
		logger: pkglog.NewLogHelper(logger),
	}
}

// Check reports whether the endpoint answered 2xx within the timeout,
// serving a cached result when one is fresh.
func (p *HealthProbe) Check(ctx context.Context, endpoint string, timeout time.Duration) bool {
	if healthy, ok := p.cache.Get(endpoint); ok {
		return healthy
	}
	return p.Probe(ctx, endpoint, timeout)
}

// Probe performs a fresh check, bypassing and then updating the cache.
// Used by the diagnostic `test` command and the scheduled health sweep,
// which need current truth rather than a recent answer.
func (p *HealthProbe) Probe(ctx context.Context, endpoint string, timeout time.Duration) bool {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy := p.probe(reqCtx, endpoint)
	p.cache.Add(endpoint, healthy)

	return healthy
}

func (p *HealthProbe) probe(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		p.logger.Warnw("msg", "health probe request construction failed",
			"endpoint", endpoint,
			"error", err.Error())
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Health("health probe failed",
			"endpoint", endpoint,
			"error", err.Error())
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !healthy {
		p.logger.Health("health probe returned non-success status",
			"endpoint", endpoint,
			"status", resp.StatusCode)
	}

	return healthy
}
