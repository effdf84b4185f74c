// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the full configuration for consistency. It is called by
// Load() after all layers are merged; a validation failure aborts startup.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validatePipeline,
		c.validateRules,
		c.validateScoring,
		c.validateDashboard,
		c.validateBus,
		c.validateArchive,
		c.validateNATS,
		c.validateAPI,
		c.validateSecurity,
		c.validateLogging,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.BranchTimeout <= 0 {
		return fmt.Errorf("pipeline.branch_timeout must be positive, got %s", c.Pipeline.BranchTimeout)
	}
	if c.Pipeline.ModelMetricsInterval <= 0 {
		return fmt.Errorf("pipeline.model_metrics_interval must be positive, got %s", c.Pipeline.ModelMetricsInterval)
	}
	return nil
}

func (c *Config) validateRules() error {
	if c.Rules.BruteForceAttempts < 1 {
		return fmt.Errorf("rules.brute_force_attempts must be at least 1, got %d", c.Rules.BruteForceAttempts)
	}
	if c.Rules.PortScanUniquePorts < 1 {
		return fmt.Errorf("rules.port_scan_unique_ports must be at least 1, got %d", c.Rules.PortScanUniquePorts)
	}
	if c.Rules.PayloadSizeLimit < 1 {
		return fmt.Errorf("rules.payload_size_limit must be at least 1, got %d", c.Rules.PayloadSizeLimit)
	}
	if c.Rules.OffHoursStart < 0 || c.Rules.OffHoursStart > 23 {
		return fmt.Errorf("rules.off_hours_start must be an hour 0-23, got %d", c.Rules.OffHoursStart)
	}
	if c.Rules.OffHoursEnd < 0 || c.Rules.OffHoursEnd > 24 {
		return fmt.Errorf("rules.off_hours_end must be an hour 0-24, got %d", c.Rules.OffHoursEnd)
	}
	if c.Rules.OffHoursStart >= c.Rules.OffHoursEnd {
		return fmt.Errorf("rules.off_hours_start (%d) must be before rules.off_hours_end (%d)",
			c.Rules.OffHoursStart, c.Rules.OffHoursEnd)
	}
	return c.validateBlockedSources()
}

// validateBlockedSources accepts plain identifiers, IP addresses, and CIDR
// ranges. Invalid CIDR notation is rejected up front so the blocklist rule
// never silently skips an entry.
func (c *Config) validateBlockedSources() error {
	for _, source := range c.Rules.BlockedSources {
		if !strings.Contains(source, "/") {
			continue
		}
		if _, _, err := net.ParseCIDR(source); err != nil {
			return fmt.Errorf("rules.blocked_sources entry %q is not valid CIDR notation: %w", source, err)
		}
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.SampleCount < 10 {
		return fmt.Errorf("scoring.sample_count must be at least 10, got %d", c.Scoring.SampleCount)
	}
	if c.Scoring.LearningRate <= 0 || c.Scoring.LearningRate > 1 {
		return fmt.Errorf("scoring.learning_rate must be in (0, 1], got %g", c.Scoring.LearningRate)
	}
	return nil
}

func (c *Config) validateDashboard() error {
	if c.Dashboard.WindowCapacity < 1 {
		return fmt.Errorf("dashboard.window_capacity must be at least 1, got %d", c.Dashboard.WindowCapacity)
	}
	if c.Dashboard.RateWindow <= 0 {
		return fmt.Errorf("dashboard.rate_window must be positive, got %s", c.Dashboard.RateWindow)
	}
	if c.Dashboard.RateBuckets < 1 {
		return fmt.Errorf("dashboard.rate_buckets must be at least 1, got %d", c.Dashboard.RateBuckets)
	}
	return nil
}

func (c *Config) validateBus() error {
	if c.Bus.MailboxCapacity < 1 {
		return fmt.Errorf("bus.mailbox_capacity must be at least 1, got %d", c.Bus.MailboxCapacity)
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if !c.Archive.InMemory && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when the archive is enabled and not in-memory")
	}
	if c.Archive.RetentionDays < 1 {
		return fmt.Errorf("archive.retention_days must be at least 1, got %d", c.Archive.RetentionDays)
	}
	if c.Archive.GCInterval <= 0 {
		return fmt.Errorf("archive.gc_interval must be positive, got %s", c.Archive.GCInterval)
	}
	if c.Archive.BreakerMaxFail < 1 {
		return fmt.Errorf("archive.breaker_max_failures must be at least 1, got %d", c.Archive.BreakerMaxFail)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when NATS forwarding is enabled")
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("nats.url must start with nats:// or tls://, got %q", c.NATS.URL)
	}
	if c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when NATS forwarding is enabled")
	}
	if c.NATS.ConnectTimeout <= 0 {
		return fmt.Errorf("nats.connect_timeout must be positive, got %s", c.NATS.ConnectTimeout)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be at least 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
