package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBootstrap_Defaults(t *testing.T) {
	// Create a minimal valid config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `server:
  http:
    addr: :8600
watch:
  file: /data/tasks.json
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Load configuration
	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Verify server defaults
	assert.Equal(t, ":8600", bc.Server.Http.Addr)
	assert.Equal(t, "tcp", bc.Server.Http.Network)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout.AsDuration())

	// Verify watch values
	assert.Equal(t, "/data/tasks.json", bc.Watch.File)
	assert.Equal(t, 2*time.Second, bc.Watch.Debounce.AsDuration())

	// Verify sync defaults
	assert.Equal(t, "http://localhost:3001", bc.Sync.ApiBase)
	assert.Equal(t, "taskmaster", bc.Sync.Dependency)
	assert.Equal(t, "/api/health", bc.Sync.HealthPath)
	assert.Equal(t, 10*time.Second, bc.Sync.Timeout.AsDuration())
	assert.Equal(t, 3*time.Second, bc.Sync.HealthTimeout.AsDuration())
	assert.Equal(t, 5, bc.Sync.MaxConsecutiveErrors)
	assert.Equal(t, []string{"task-master", "sync"}, bc.Sync.FallbackCommand)
	assert.Equal(t, 30*time.Second, bc.Sync.FallbackTimeout.AsDuration())

	// Verify breaker defaults
	assert.Equal(t, 5, bc.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.Breaker.ResetTimeout.AsDuration())

	// Verify AI proxy defaults
	assert.Equal(t, "http://localhost:4000", bc.AIProxy.Base)
	assert.Equal(t, "/health", bc.AIProxy.HealthPath)

	// Verify redis defaults (mirror disabled by default)
	assert.Equal(t, "", bc.Data.Redis.Addr)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())

	// Verify log defaults
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedVal func(*Bootstrap) bool
		description string
	}{
		{
			name: "override_api_base_compat",
			envVars: map[string]string{
				"TASKMASTER_API_URL": "http://taskmaster:3001",
				"TASKSYNC_WATCH_FILE": "/data/tasks.json",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Sync.ApiBase == "http://taskmaster:3001"
			},
			description: "TASKMASTER_API_URL should override default api base",
		},
		{
			name: "override_http_addr",
			envVars: map[string]string{
				"TASKSYNC_SERVER_HTTP_ADDR": ":9999",
				"TASKSYNC_WATCH_FILE":       "/data/tasks.json",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Server.Http.Addr == ":9999"
			},
			description: "TASKSYNC_SERVER_HTTP_ADDR should override default :8600",
		},
		{
			name: "override_redis_addr",
			envVars: map[string]string{
				"TASKSYNC_DATA_REDIS_ADDR": "redis.example.com:6379",
				"TASKSYNC_WATCH_FILE":      "/data/tasks.json",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Data.Redis.Addr == "redis.example.com:6379"
			},
			description: "TASKSYNC_DATA_REDIS_ADDR should enable the status mirror",
		},
		{
			name: "override_debounce",
			envVars: map[string]string{
				"TASKSYNC_WATCH_DEBOUNCE": "500ms",
				"TASKSYNC_WATCH_FILE":     "/data/tasks.json",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Watch.Debounce.AsDuration() == 500*time.Millisecond
			},
			description: "TASKSYNC_WATCH_DEBOUNCE should override default 2s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			bc, err := NewBootstrap("")
			require.NoError(t, err)
			assert.True(t, tt.expectedVal(bc), tt.description)
		})
	}
}

func TestNewBootstrap_MissingConfigFile(t *testing.T) {
	_, err := NewBootstrap("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	// No watch file configured anywhere
	_, err := NewBootstrap("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch.file")
}

func TestValidate_InvalidThresholds(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `watch:
  file: /data/tasks.json
breaker:
  failure_threshold: 0
sync:
  max_consecutive_errors: -1
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	_, err = NewBootstrap(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker.failure_threshold")
	assert.Contains(t, err.Error(), "sync.max_consecutive_errors")
}
