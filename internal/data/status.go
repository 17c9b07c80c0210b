package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TaskSync/internal/model"
	pkglog "TaskSync/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Redis key scheme for the status mirror read by the dashboard widgets.
const (
	syncStatusKey    = "tasksync:sync_status"
	breakerKeyPrefix = "tasksync:breaker:"
)

// statusTTL expires stale mirror entries; a dead daemon should not look
// healthy forever.
const statusTTL = 5 * time.Minute

// StatusRepo mirrors coordinator and breaker state into Redis for the
// dashboard. All operations degrade gracefully when Redis is unavailable:
// publishing is best effort and never fails a sync.
type StatusRepo struct {
	data   *Data
	logger *pkglog.LogHelper
}

// NewStatusRepo creates the status mirror repository.
func NewStatusRepo(data *Data, logger log.Logger) *StatusRepo {
	return &StatusRepo{
		data:   data,
		logger: pkglog.NewLogHelper(logger),
	}
}

// PublishSyncStatus writes the coordinator snapshot to the mirror.
func (r *StatusRepo) PublishSyncStatus(ctx context.Context, status model.SyncStatus) error {
	rdb := r.data.GetRedisClient()
	if rdb == nil {
		// Degraded mode: no mirror configured.
		return nil
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal sync status: %w", err)
	}

	if err := rdb.Set(ctx, syncStatusKey, payload, statusTTL).Err(); err != nil {
		r.logger.Warnw("msg", "failed to mirror sync status",
			"key", syncStatusKey,
			"error", err.Error())
		return fmt.Errorf("mirror sync status: %w", err)
	}

	r.logger.Redis("mirrored sync status", "key", syncStatusKey)

	return nil
}

// PublishBreakerStatus writes one breaker snapshot to the mirror under its
// own key.
func (r *StatusRepo) PublishBreakerStatus(ctx context.Context, status model.BreakerStatus) error {
	rdb := r.data.GetRedisClient()
	if rdb == nil {
		return nil
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal breaker status: %w", err)
	}

	key := breakerKeyPrefix + status.Name
	if err := rdb.Set(ctx, key, payload, statusTTL).Err(); err != nil {
		r.logger.Warnw("msg", "failed to mirror breaker status",
			"key", key,
			"error", err.Error())
		return fmt.Errorf("mirror breaker status: %w", err)
	}

	r.logger.Redis("mirrored breaker status", "key", key)

	return nil
}

// LoadSyncStatus reads the mirrored coordinator snapshot. Returns nil when
// no snapshot exists (daemon not running or mirror expired).
func (r *StatusRepo) LoadSyncStatus(ctx context.Context) (*model.SyncStatus, error) {
	rdb := r.data.GetRedisClient()
	if rdb == nil {
		return nil, nil
	}

	payload, err := rdb.Get(ctx, syncStatusKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync status: %w", err)
	}

	var status model.SyncStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("unmarshal sync status: %w", err)
	}

	return &status, nil
}

// LoadBreakerStatuses reads all mirrored breaker snapshots.
func (r *StatusRepo) LoadBreakerStatuses(ctx context.Context) ([]model.BreakerStatus, error) {
	rdb := r.data.GetRedisClient()
	if rdb == nil {
		return nil, nil
	}

	keys, err := rdb.Keys(ctx, breakerKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list breaker keys: %w", err)
	}

	statuses := make([]model.BreakerStatus, 0, len(keys))
	for _, key := range keys {
		payload, err := rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load breaker status %s: %w", key, err)
		}

		var status model.BreakerStatus
		if err := json.Unmarshal(payload, &status); err != nil {
			return nil, fmt.Errorf("unmarshal breaker status %s: %w", key, err)
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}
