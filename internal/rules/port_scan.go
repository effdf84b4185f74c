// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/event"
)

// PortScanConfig configures the port scan rule.
type PortScanConfig struct {
	// EventType is the event type this rule inspects.
	EventType string `json:"event_type"`

	// UniquePortsThreshold is the distinct-port count at or above which the
	// pattern is treated as a scan rather than stray connection noise.
	UniquePortsThreshold int `json:"unique_ports_threshold"`

	// Severity for generated findings.
	Severity Severity `json:"severity"`
}

// DefaultPortScanConfig returns sensible defaults.
func DefaultPortScanConfig() PortScanConfig {
	return PortScanConfig{
		EventType:            "port_scan",
		UniquePortsThreshold: 15,
		Severity:             SeverityHigh,
	}
}

// PortScanRule flags port scanning patterns reported by network sensors.
// Sensors pre-aggregate the distinct-port count into the event payload.
type PortScanRule struct {
	config  PortScanConfig
	enabled bool
	mu      sync.RWMutex
}

// NewPortScanRule creates the rule with default configuration.
func NewPortScanRule() *PortScanRule {
	return &PortScanRule{
		config:  DefaultPortScanConfig(),
		enabled: true,
	}
}

// Type returns the rule type.
func (r *PortScanRule) Type() RuleType {
	return RuleTypePortScan
}

// Check evaluates the event against the port scan rule.
func (r *PortScanRule) Check(_ context.Context, ev *event.SecurityEvent) (*Finding, error) {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	if ev.EventType != config.EventType {
		return nil, nil
	}

	uniquePorts, ok := ev.PayloadInt("unique_ports")
	if !ok {
		// A sensor labelled the event a scan but omitted the evidence.
		return nil, fmt.Errorf("missing unique_ports in %s payload", config.EventType)
	}

	if uniquePorts < config.UniquePortsThreshold {
		return nil, nil
	}

	return &Finding{
		RuleID:   string(RuleTypePortScan),
		Severity: config.Severity,
		Description: fmt.Sprintf(
			"%s probed %d unique ports (threshold: %d)",
			ev.Source, uniquePorts, config.UniquePortsThreshold,
		),
	}, nil
}

// Configure updates the rule configuration.
func (r *PortScanRule) Configure(config json.RawMessage) error {
	var newConfig PortScanConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.UniquePortsThreshold <= 0 {
		return fmt.Errorf("unique_ports_threshold must be positive")
	}
	if newConfig.EventType == "" {
		return fmt.Errorf("event_type must not be empty")
	}
	if !newConfig.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", newConfig.Severity)
	}

	r.mu.Lock()
	r.config = newConfig
	r.mu.Unlock()

	return nil
}

// Enabled returns whether this rule is enabled.
func (r *PortScanRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *PortScanRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Config returns the current configuration.
func (r *PortScanRule) Config() PortScanConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
