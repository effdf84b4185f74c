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

// OffHoursConfig configures the off-hours activity rule.
type OffHoursConfig struct {
	// StartHour and EndHour bound the business window in UTC, [StartHour, EndHour).
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`

	// EventTypes are the sensitive event types checked against the window.
	// Routine events outside business hours are expected and not flagged.
	EventTypes []string `json:"event_types"`

	// Severity for generated findings.
	Severity Severity `json:"severity"`
}

// DefaultOffHoursConfig returns sensible defaults.
func DefaultOffHoursConfig() OffHoursConfig {
	return OffHoursConfig{
		StartHour:  7,
		EndHour:    20,
		EventTypes: []string{"admin_login", "config_change", "data_export", "privilege_escalation"},
		Severity:   SeverityMedium,
	}
}

// OffHoursRule flags sensitive activity outside the configured business window.
type OffHoursRule struct {
	config  OffHoursConfig
	enabled bool
	mu      sync.RWMutex
}

// NewOffHoursRule creates the rule with default configuration.
func NewOffHoursRule() *OffHoursRule {
	return &OffHoursRule{
		config:  DefaultOffHoursConfig(),
		enabled: true,
	}
}

// Type returns the rule type.
func (r *OffHoursRule) Type() RuleType {
	return RuleTypeOffHours
}

// Check evaluates the event occurrence time against the business window.
func (r *OffHoursRule) Check(_ context.Context, ev *event.SecurityEvent) (*Finding, error) {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	matched := false
	for _, t := range config.EventTypes {
		if ev.EventType == t {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}

	hour := ev.OccurredAt.UTC().Hour()
	if hour >= config.StartHour && hour < config.EndHour {
		return nil, nil
	}

	return &Finding{
		RuleID:   string(RuleTypeOffHours),
		Severity: config.Severity,
		Description: fmt.Sprintf(
			"%s at %02d:00 UTC is outside business hours (%02d:00-%02d:00)",
			ev.EventType, hour, config.StartHour, config.EndHour,
		),
	}, nil
}

// Configure updates the rule configuration.
func (r *OffHoursRule) Configure(config json.RawMessage) error {
	var newConfig OffHoursConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.StartHour < 0 || newConfig.StartHour > 23 {
		return fmt.Errorf("start_hour must be in [0,23]")
	}
	if newConfig.EndHour < 1 || newConfig.EndHour > 24 {
		return fmt.Errorf("end_hour must be in [1,24]")
	}
	if newConfig.StartHour >= newConfig.EndHour {
		return fmt.Errorf("start_hour must be before end_hour")
	}
	if len(newConfig.EventTypes) == 0 {
		return fmt.Errorf("event_types must not be empty")
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
func (r *OffHoursRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *OffHoursRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Config returns the current configuration.
func (r *OffHoursRule) Config() OffHoursConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
