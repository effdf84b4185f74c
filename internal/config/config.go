// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML config file, and environment variables.
//
// Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access
// from multiple goroutines.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Rules     RulesConfig     `koanf:"rules"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Bus       BusConfig       `koanf:"bus"`
	Archive   ArchiveConfig   `koanf:"archive"`
	NATS      NATSConfig      `koanf:"nats"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8085)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - SHUTDOWN_TIMEOUT: Graceful shutdown deadline (default: 15s)
//   - ENVIRONMENT: "development" or "production"
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// IsProduction reports whether the server runs in production mode.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// PipelineConfig controls the analysis pipeline.
//
// BranchTimeout bounds each of the two concurrent analysis branches (rule
// evaluation and model scoring) independently. A branch that exceeds the
// deadline is degraded, not failed: the event still produces an assessment
// from whatever signals completed in time.
type PipelineConfig struct {
	BranchTimeout        time.Duration `koanf:"branch_timeout"`
	ModelMetricsInterval time.Duration `koanf:"model_metrics_interval"`
}

// RulesConfig carries the tunable thresholds of the built-in detection rules.
type RulesConfig struct {
	BruteForceAttempts  int      `koanf:"brute_force_attempts"`
	PortScanUniquePorts int      `koanf:"port_scan_unique_ports"`
	PayloadSizeLimit    int      `koanf:"payload_size_limit"`
	OffHoursStart       int      `koanf:"off_hours_start"`
	OffHoursEnd         int      `koanf:"off_hours_end"`
	BlockedSources      []string `koanf:"blocked_sources"`
}

// ScoringConfig holds the default retraining parameters for the threat model.
type ScoringConfig struct {
	SampleCount  int     `koanf:"sample_count"`
	LearningRate float64 `koanf:"learning_rate"`
	Seed         int64   `koanf:"seed"`

	// TrainOnStartup installs a freshly trained model at boot instead of
	// the static baseline.
	TrainOnStartup bool `koanf:"train_on_startup"`
}

// DashboardConfig controls the live dashboard aggregation window.
type DashboardConfig struct {
	WindowCapacity int           `koanf:"window_capacity"`
	RateWindow     time.Duration `koanf:"rate_window"`
	RateBuckets    int           `koanf:"rate_buckets"`
}

// BusConfig controls the in-process broadcast bus.
type BusConfig struct {
	MailboxCapacity int `koanf:"mailbox_capacity"`
}

// ArchiveConfig controls the embedded assessment archive.
//
// The archive is best-effort: writes flow through a circuit breaker and a
// failing store never blocks or fails the analysis pipeline.
type ArchiveConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Path           string        `koanf:"path"`
	InMemory       bool          `koanf:"in_memory"`
	RetentionDays  int           `koanf:"retention_days"`
	GCInterval     time.Duration `koanf:"gc_interval"`
	BreakerMaxFail uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// NATSConfig holds optional external event forwarding settings. Forwarding
// is compiled behind the "nats" build tag and disabled by default.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	SubjectPrefix  string        `koanf:"subject_prefix"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// APIConfig holds pagination and response limits.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds rate limiting and CORS settings for the HTTP API.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load loads and validates the full application configuration.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
