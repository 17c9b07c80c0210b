package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"TaskSync/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// TaskmasterRepo is the outbound client for the TaskMaster dashboard API,
// the primary sync path. Call timeouts come from the request context; the
// circuit breaker owns the deadline.
type TaskmasterRepo struct {
	client     *http.Client
	base       string
	dependency string
	healthPath string
	logger     *log.Helper
}

// syncTriggerRequest is the POST body for a sync trigger.
type syncTriggerRequest struct {
	Trigger string `json:"trigger"`
}

// NewTaskmasterRepo creates the API client from bootstrap config.
func NewTaskmasterRepo(bc *conf.Bootstrap, logger log.Logger) *TaskmasterRepo {
	return &TaskmasterRepo{
		client:     &http.Client{},
		base:       strings.TrimRight(bc.Sync.ApiBase, "/"),
		dependency: bc.Sync.Dependency,
		healthPath: bc.Sync.HealthPath,
		logger:     log.NewHelper(logger),
	}
}

// TriggerSync posts a sync trigger for the configured dependency. Any
// transport failure or non-2xx response is an error.
func (r *TaskmasterRepo) TriggerSync(ctx context.Context, trigger string) error {
	url := fmt.Sprintf("%s/api/sync/%s", r.base, r.dependency)

	body, err := json.Marshal(syncTriggerRequest{Trigger: trigger})
	if err != nil {
		return fmt.Errorf("marshal sync trigger: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sync trigger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep a short response excerpt for the log line; API errors
		// usually carry a JSON message.
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		r.logger.Warnw("msg", "sync trigger rejected",
			"url", url,
			"status", resp.StatusCode,
			"body", string(excerpt))
		return fmt.Errorf("sync trigger returned status %d", resp.StatusCode)
	}

	return nil
}

// HealthEndpoint returns the full URL of the API's health surface.
func (r *TaskmasterRepo) HealthEndpoint() string {
	return r.base + r.healthPath
}
