// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/threatlens/config.yaml",
	"/etc/threatlens/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values. These are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8085,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Pipeline: PipelineConfig{
			BranchTimeout:        500 * time.Millisecond,
			ModelMetricsInterval: 5 * time.Second,
		},
		Rules: RulesConfig{
			BruteForceAttempts:  10,
			PortScanUniquePorts: 15,
			PayloadSizeLimit:    64 * 1024,
			OffHoursStart:       7,
			OffHoursEnd:         20,
			BlockedSources:      []string{},
		},
		Scoring: ScoringConfig{
			SampleCount:    1000,
			LearningRate:   0.05,
			Seed:           42,
			TrainOnStartup: false,
		},
		Dashboard: DashboardConfig{
			WindowCapacity: 20,
			RateWindow:     5 * time.Minute,
			RateBuckets:    10,
		},
		Bus: BusConfig{
			MailboxCapacity: 64,
		},
		Archive: ArchiveConfig{
			Enabled:        true,
			Path:           "/data/threatlens/archive",
			InMemory:       false,
			RetentionDays:  30,
			GCInterval:     10 * time.Minute,
			BreakerMaxFail: 5,
			BreakerTimeout: 30 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			SubjectPrefix:  "threatlens",
			ConnectTimeout: 5 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			TrustedProxies:    []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"rules.blocked_sources",
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - PIPELINE_BRANCH_TIMEOUT -> pipeline.branch_timeout
//   - RULES_BLOCKED_SOURCES -> rules.blocked_sources
//   - ARCHIVE_PATH -> archive.path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":        "server.port",
		"http_host":        "server.host",
		"http_timeout":     "server.timeout",
		"shutdown_timeout": "server.shutdown_timeout",
		"environment":      "server.environment",

		// Pipeline mappings
		"pipeline_branch_timeout":         "pipeline.branch_timeout",
		"pipeline_model_metrics_interval": "pipeline.model_metrics_interval",

		// Rule threshold mappings
		"rules_brute_force_attempts":   "rules.brute_force_attempts",
		"rules_port_scan_unique_ports": "rules.port_scan_unique_ports",
		"rules_payload_size_limit":     "rules.payload_size_limit",
		"rules_off_hours_start":        "rules.off_hours_start",
		"rules_off_hours_end":          "rules.off_hours_end",
		"rules_blocked_sources":        "rules.blocked_sources",

		// Scoring mappings
		"scoring_sample_count":     "scoring.sample_count",
		"scoring_learning_rate":    "scoring.learning_rate",
		"scoring_seed":             "scoring.seed",
		"scoring_train_on_startup": "scoring.train_on_startup",

		// Dashboard mappings
		"dashboard_window_capacity": "dashboard.window_capacity",
		"dashboard_rate_window":     "dashboard.rate_window",
		"dashboard_rate_buckets":    "dashboard.rate_buckets",

		// Bus mappings
		"bus_mailbox_capacity": "bus.mailbox_capacity",

		// Archive mappings
		"archive_enabled":              "archive.enabled",
		"archive_path":                 "archive.path",
		"archive_in_memory":            "archive.in_memory",
		"archive_retention_days":       "archive.retention_days",
		"archive_gc_interval":          "archive.gc_interval",
		"archive_breaker_max_failures": "archive.breaker_max_failures",
		"archive_breaker_timeout":      "archive.breaker_timeout",

		// NATS mappings
		"nats_enabled":         "nats.enabled",
		"nats_url":             "nats.url",
		"nats_subject_prefix":  "nats.subject_prefix",
		"nats_connect_timeout": "nats.connect_timeout",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Security mappings
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",
		"trusted_proxies":     "security.trusted_proxies",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables do not
	// pollute the config.
	return ""
}
