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

// PrivilegeEscalationConfig configures the privilege escalation rule.
type PrivilegeEscalationConfig struct {
	// EventTypes are the event types treated as privilege elevation.
	EventTypes []string `json:"event_types"`

	// SensitiveRoles escalate the finding to critical when targeted.
	SensitiveRoles []string `json:"sensitive_roles"`

	// Severity for generated findings targeting non-sensitive roles.
	Severity Severity `json:"severity"`
}

// DefaultPrivilegeEscalationConfig returns sensible defaults.
func DefaultPrivilegeEscalationConfig() PrivilegeEscalationConfig {
	return PrivilegeEscalationConfig{
		EventTypes:     []string{"privilege_escalation", "role_change", "sudo_failure"},
		SensitiveRoles: []string{"admin", "root", "domain_admin"},
		Severity:       SeverityHigh,
	}
}

// PrivilegeEscalationRule flags privilege or role elevation events.
// Elevation into a sensitive role is always Critical.
type PrivilegeEscalationRule struct {
	config  PrivilegeEscalationConfig
	enabled bool
	mu      sync.RWMutex
}

// NewPrivilegeEscalationRule creates the rule with default configuration.
func NewPrivilegeEscalationRule() *PrivilegeEscalationRule {
	return &PrivilegeEscalationRule{
		config:  DefaultPrivilegeEscalationConfig(),
		enabled: true,
	}
}

// Type returns the rule type.
func (r *PrivilegeEscalationRule) Type() RuleType {
	return RuleTypePrivilegeEscalation
}

// Check evaluates the event against the privilege escalation rule.
func (r *PrivilegeEscalationRule) Check(_ context.Context, ev *event.SecurityEvent) (*Finding, error) {
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

	severity := config.Severity
	description := fmt.Sprintf("privilege elevation event %s from %s", ev.EventType, ev.Source)

	if role, ok := ev.PayloadString("target_role"); ok {
		for _, sensitive := range config.SensitiveRoles {
			if role == sensitive {
				severity = SeverityCritical
				description = fmt.Sprintf(
					"privilege elevation into sensitive role %q from %s", role, ev.Source,
				)
				break
			}
		}
	}

	return &Finding{
		RuleID:      string(RuleTypePrivilegeEscalation),
		Severity:    severity,
		Description: description,
	}, nil
}

// Configure updates the rule configuration.
func (r *PrivilegeEscalationRule) Configure(config json.RawMessage) error {
	var newConfig PrivilegeEscalationConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
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
func (r *PrivilegeEscalationRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *PrivilegeEscalationRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Config returns the current configuration.
func (r *PrivilegeEscalationRule) Config() PrivilegeEscalationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
