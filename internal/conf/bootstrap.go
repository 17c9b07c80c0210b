// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with TASKSYNC_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Commonly overridden environment variables:
//   - TASKMASTER_API_URL or TASKSYNC_SYNC_API_BASE: TaskMaster API base URL
//   - TASKSYNC_WATCH_FILE: path to the watched tasks.json
//   - TASKSYNC_DATA_REDIS_ADDR: Redis address for the status mirror
//
// Parameters:
//   - configPath: Path to the configuration file (empty to rely on defaults/env)
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with TASKSYNC_ prefix
	v.SetEnvPrefix("TASKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without TASKSYNC_ prefix) for
	// compatibility with the dashboard's existing environment.
	_ = v.BindEnv("sync.api_base", "TASKMASTER_API_URL", "TASKSYNC_SYNC_API_BASE")
	_ = v.BindEnv("watch.file", "TASKSYNC_WATCH_FILE")
	_ = v.BindEnv("aiproxy.base", "LITELLM_PROXY_URL", "TASKSYNC_AIPROXY_BASE")
	_ = v.BindEnv("data.redis.addr", "TASKSYNC_DATA_REDIS_ADDR")
	_ = v.BindEnv("server.http.api_key", "TASKSYNC_API_KEY", "TASKSYNC_SERVER_HTTP_API_KEY")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
				ApiKey:  v.GetString("server.http.api_key"),
			},
		},
		Watch: &Watch{
			File:     v.GetString("watch.file"),
			Debounce: durationpb.New(v.GetDuration("watch.debounce")),
		},
		Sync: &Sync{
			ApiBase:              v.GetString("sync.api_base"),
			Dependency:           v.GetString("sync.dependency"),
			HealthPath:           v.GetString("sync.health_path"),
			Timeout:              durationpb.New(v.GetDuration("sync.timeout")),
			HealthTimeout:        durationpb.New(v.GetDuration("sync.health_timeout")),
			MaxConsecutiveErrors: v.GetInt("sync.max_consecutive_errors"),
			FallbackCommand:      v.GetStringSlice("sync.fallback_command"),
			FallbackTimeout:      durationpb.New(v.GetDuration("sync.fallback_timeout")),
		},
		Breaker: &Breaker{
			FailureThreshold: v.GetInt("breaker.failure_threshold"),
			ResetTimeout:     durationpb.New(v.GetDuration("breaker.reset_timeout")),
		},
		AIProxy: &AIProxy{
			Base:       v.GetString("aiproxy.base"),
			HealthPath: v.GetString("aiproxy.health_path"),
		},
		Data: &Data{
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8600")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Watch defaults
	// Note: watch.file is required (TASKSYNC_WATCH_FILE)
	v.SetDefault("watch.debounce", 2*time.Second)

	// Sync defaults
	v.SetDefault("sync.api_base", "http://localhost:3001")
	v.SetDefault("sync.dependency", "taskmaster")
	v.SetDefault("sync.health_path", "/api/health")
	v.SetDefault("sync.timeout", 10*time.Second)
	v.SetDefault("sync.health_timeout", 3*time.Second)
	v.SetDefault("sync.max_consecutive_errors", 5)
	v.SetDefault("sync.fallback_command", []string{"task-master", "sync"})
	v.SetDefault("sync.fallback_timeout", 30*time.Second)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)

	// AI proxy defaults (litellm proxy)
	v.SetDefault("aiproxy.base", "http://localhost:4000")
	v.SetDefault("aiproxy.health_path", "/health")

	// Data defaults
	// Note: data.redis.addr is optional; empty disables the status mirror
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or invalid required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Watch == nil || bc.Watch.File == "" {
		missingFields = append(missingFields, "watch.file (TASKSYNC_WATCH_FILE)")
	}
	if bc.Watch != nil && bc.Watch.Debounce.AsDuration() <= 0 {
		missingFields = append(missingFields, "watch.debounce (must be positive)")
	}

	if bc.Sync == nil || bc.Sync.ApiBase == "" {
		missingFields = append(missingFields, "sync.api_base (TASKMASTER_API_URL)")
	}
	if bc.Sync != nil && bc.Sync.Dependency == "" {
		missingFields = append(missingFields, "sync.dependency")
	}
	if bc.Sync != nil && len(bc.Sync.FallbackCommand) == 0 {
		missingFields = append(missingFields, "sync.fallback_command")
	}
	if bc.Sync != nil && bc.Sync.MaxConsecutiveErrors <= 0 {
		missingFields = append(missingFields, "sync.max_consecutive_errors (must be positive)")
	}

	if bc.Breaker == nil || bc.Breaker.FailureThreshold <= 0 {
		missingFields = append(missingFields, "breaker.failure_threshold (must be positive)")
	}
	if bc.Breaker != nil && bc.Breaker.ResetTimeout.AsDuration() <= 0 {
		missingFields = append(missingFields, "breaker.reset_timeout (must be positive)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
