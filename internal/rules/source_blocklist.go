// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package rules

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/event"
)

// SourceBlocklistConfig configures the source blocklist rule.
type SourceBlocklistConfig struct {
	// Sources are exact source identifiers to flag.
	Sources []string `json:"sources"`

	// CIDRs are network ranges to flag when the source parses as an IP.
	CIDRs []string `json:"cidrs"`

	// Severity for generated findings.
	Severity Severity `json:"severity"`
}

// DefaultSourceBlocklistConfig returns an empty blocklist.
// Operators populate it from threat intelligence at deploy time.
func DefaultSourceBlocklistConfig() SourceBlocklistConfig {
	return SourceBlocklistConfig{
		Sources:  nil,
		CIDRs:    nil,
		Severity: SeverityHigh,
	}
}

// SourceBlocklistRule flags events originating from known-bad sources,
// matched either by exact identifier or by CIDR when the source is an IP.
type SourceBlocklistRule struct {
	config  SourceBlocklistConfig
	nets    []*net.IPNet // parsed from config.CIDRs
	enabled bool
	mu      sync.RWMutex
}

// NewSourceBlocklistRule creates the rule with default configuration.
func NewSourceBlocklistRule() *SourceBlocklistRule {
	return &SourceBlocklistRule{
		config:  DefaultSourceBlocklistConfig(),
		enabled: true,
	}
}

// Type returns the rule type.
func (r *SourceBlocklistRule) Type() RuleType {
	return RuleTypeSourceBlocklist
}

// Check evaluates the event against the blocklist.
func (r *SourceBlocklistRule) Check(_ context.Context, ev *event.SecurityEvent) (*Finding, error) {
	r.mu.RLock()
	config := r.config
	nets := r.nets
	r.mu.RUnlock()

	for _, blocked := range config.Sources {
		if ev.Source == blocked {
			return &Finding{
				RuleID:      string(RuleTypeSourceBlocklist),
				Severity:    config.Severity,
				Description: fmt.Sprintf("source %s is blocklisted", ev.Source),
			}, nil
		}
	}

	if len(nets) > 0 {
		if ip := net.ParseIP(ev.Source); ip != nil {
			for _, n := range nets {
				if n.Contains(ip) {
					return &Finding{
						RuleID:      string(RuleTypeSourceBlocklist),
						Severity:    config.Severity,
						Description: fmt.Sprintf("source %s is in blocklisted range %s", ev.Source, n),
					}, nil
				}
			}
		}
	}

	return nil, nil
}

// Configure updates the rule configuration.
func (r *SourceBlocklistRule) Configure(config json.RawMessage) error {
	var newConfig SourceBlocklistConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !newConfig.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", newConfig.Severity)
	}

	nets := make([]*net.IPNet, 0, len(newConfig.CIDRs))
	for _, cidr := range newConfig.CIDRs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return fmt.Errorf("invalid cidr %q: %w", cidr, err)
		}
		nets = append(nets, n)
	}

	r.mu.Lock()
	r.config = newConfig
	r.nets = nets
	r.mu.Unlock()

	return nil
}

// Enabled returns whether this rule is enabled.
func (r *SourceBlocklistRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *SourceBlocklistRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Config returns the current configuration.
func (r *SourceBlocklistRule) Config() SourceBlocklistConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
