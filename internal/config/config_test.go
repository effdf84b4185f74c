// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Defaults
// ============================================================================

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8085 {
		t.Errorf("server.port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Pipeline.BranchTimeout != 500*time.Millisecond {
		t.Errorf("pipeline.branch_timeout = %s, want 500ms", cfg.Pipeline.BranchTimeout)
	}
	if cfg.Rules.BruteForceAttempts != 10 {
		t.Errorf("rules.brute_force_attempts = %d, want 10", cfg.Rules.BruteForceAttempts)
	}
	if cfg.Rules.PortScanUniquePorts != 15 {
		t.Errorf("rules.port_scan_unique_ports = %d, want 15", cfg.Rules.PortScanUniquePorts)
	}
	if cfg.Dashboard.WindowCapacity != 20 {
		t.Errorf("dashboard.window_capacity = %d, want 20", cfg.Dashboard.WindowCapacity)
	}
	if cfg.Bus.MailboxCapacity != 64 {
		t.Errorf("bus.mailbox_capacity = %d, want 64", cfg.Bus.MailboxCapacity)
	}
	if cfg.NATS.Enabled {
		t.Error("nats.enabled should default to false")
	}
	if cfg.Server.IsProduction() {
		t.Error("default environment should not be production")
	}
}

// ============================================================================
// Layered loading
// ============================================================================

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9099")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PIPELINE_BRANCH_TIMEOUT", "250ms")
	t.Setenv("RULES_BLOCKED_SOURCES", "10.0.0.0/8, bad-host ,192.168.1.50")
	t.Setenv("ARCHIVE_ENABLED", "false")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}

	if cfg.Server.Port != 9099 {
		t.Errorf("server.port = %d, want 9099", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Pipeline.BranchTimeout != 250*time.Millisecond {
		t.Errorf("pipeline.branch_timeout = %s, want 250ms", cfg.Pipeline.BranchTimeout)
	}
	want := []string{"10.0.0.0/8", "bad-host", "192.168.1.50"}
	if len(cfg.Rules.BlockedSources) != len(want) {
		t.Fatalf("blocked_sources = %v, want %v", cfg.Rules.BlockedSources, want)
	}
	for i, w := range want {
		if cfg.Rules.BlockedSources[i] != w {
			t.Errorf("blocked_sources[%d] = %q, want %q", i, cfg.Rules.BlockedSources[i], w)
		}
	}
	if cfg.Archive.Enabled {
		t.Error("archive.enabled should be overridden to false")
	}
}

func TestLoadWithKoanf_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"server:",
		"  port: 7070",
		"dashboard:",
		"  window_capacity: 50",
		"security:",
		"  cors_origins:",
		"    - https://soc.example.com",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070 from file", cfg.Server.Port)
	}
	if cfg.Dashboard.WindowCapacity != 50 {
		t.Errorf("dashboard.window_capacity = %d, want 50 from file", cfg.Dashboard.WindowCapacity)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "https://soc.example.com" {
		t.Errorf("cors_origins = %v", cfg.Security.CORSOrigins)
	}
	// Untouched sections keep defaults.
	if cfg.Bus.MailboxCapacity != 64 {
		t.Errorf("bus.mailbox_capacity = %d, want default 64", cfg.Bus.MailboxCapacity)
	}
}

func TestLoadWithKoanf_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9191")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("server.port = %d, want env override 9191", cfg.Server.Port)
	}
}

// ============================================================================
// Validation
// ============================================================================

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantSub: "server.port",
		},
		{
			name:    "bad environment",
			mutate:  func(c *Config) { c.Server.Environment = "staging" },
			wantSub: "server.environment",
		},
		{
			name:    "zero branch timeout",
			mutate:  func(c *Config) { c.Pipeline.BranchTimeout = 0 },
			wantSub: "pipeline.branch_timeout",
		},
		{
			name:    "off hours inverted",
			mutate:  func(c *Config) { c.Rules.OffHoursStart = 21; c.Rules.OffHoursEnd = 7 },
			wantSub: "off_hours_start",
		},
		{
			name:    "malformed blocklist CIDR",
			mutate:  func(c *Config) { c.Rules.BlockedSources = []string{"10.0.0.0/99"} },
			wantSub: "blocked_sources",
		},
		{
			name:    "sample count too small",
			mutate:  func(c *Config) { c.Scoring.SampleCount = 5 },
			wantSub: "scoring.sample_count",
		},
		{
			name:    "learning rate above one",
			mutate:  func(c *Config) { c.Scoring.LearningRate = 1.5 },
			wantSub: "scoring.learning_rate",
		},
		{
			name:    "zero window capacity",
			mutate:  func(c *Config) { c.Dashboard.WindowCapacity = 0 },
			wantSub: "dashboard.window_capacity",
		},
		{
			name:    "zero mailbox",
			mutate:  func(c *Config) { c.Bus.MailboxCapacity = 0 },
			wantSub: "bus.mailbox_capacity",
		},
		{
			name:    "archive enabled without path",
			mutate:  func(c *Config) { c.Archive.Enabled = true; c.Archive.InMemory = false; c.Archive.Path = "" },
			wantSub: "archive.path",
		},
		{
			name:    "nats enabled without url",
			mutate:  func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
			wantSub: "nats.url",
		},
		{
			name:    "nats bad scheme",
			mutate:  func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "http://localhost:4222" },
			wantSub: "nats.url",
		},
		{
			name:    "max page below default",
			mutate:  func(c *Config) { c.API.MaxPageSize = 5 },
			wantSub: "api.max_page_size",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantSub: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidateAcceptsCornerCases(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rules.BlockedSources = []string{"198.51.100.7", "internal-scanner", "2001:db8::/32"}
	cfg.Security.RateLimitDisabled = true
	cfg.Security.RateLimitReqs = 0 // ignored when disabled
	cfg.Archive.InMemory = true
	cfg.Archive.Path = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}
