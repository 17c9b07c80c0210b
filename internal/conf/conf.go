// Package conf provides configuration management using Viper.
package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the top-level configuration for the TaskSync daemon.
type Bootstrap struct {
	Server  *Server
	Watch   *Watch
	Sync    *Sync
	Breaker *Breaker
	AIProxy *AIProxy
	Data    *Data
	Log     *Log
}

// Server holds the HTTP server configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP holds HTTP listener settings.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
	// ApiKey, when non-empty, is required as a Bearer token on mutating endpoints.
	ApiKey string
}

// Watch holds the change watcher configuration.
type Watch struct {
	// File is the path to the task state file (tasks.json) to observe.
	File string
	// Debounce is the quiet period before a change notification fires.
	Debounce *durationpb.Duration
}

// Sync holds the sync coordinator configuration.
type Sync struct {
	// ApiBase is the base URL of the TaskMaster API (primary sync path).
	ApiBase string
	// Dependency names the protected dependency, used as the circuit
	// breaker key and in the sync trigger URL.
	Dependency string
	// HealthPath is the health endpoint path on ApiBase.
	HealthPath string
	// Timeout bounds the primary sync call.
	Timeout *durationpb.Duration
	// HealthTimeout bounds the pre-flight health probe.
	HealthTimeout *durationpb.Duration
	// MaxConsecutiveErrors is the consecutive failed attempts after which
	// the watcher halts itself.
	MaxConsecutiveErrors int
	// FallbackCommand is the argv of the local fallback sync utility.
	FallbackCommand []string
	// FallbackTimeout bounds the fallback invocation.
	FallbackTimeout *durationpb.Duration
}

// Breaker holds circuit breaker tuning shared by all registered breakers.
type Breaker struct {
	FailureThreshold int
	ResetTimeout     *durationpb.Duration
}

// AIProxy holds the AI inference proxy endpoint monitored by the health sweep.
type AIProxy struct {
	Base       string
	HealthPath string
}

// Data holds data layer configuration.
type Data struct {
	Redis *Data_Redis
}

// Data_Redis holds Redis connection settings for the status mirror.
// An empty Addr disables the mirror entirely (graceful degradation).
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
