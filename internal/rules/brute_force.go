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

// BruteForceConfig configures the brute force rule.
type BruteForceConfig struct {
	// EventType is the event type this rule inspects.
	EventType string `json:"event_type"`

	// AttemptsThreshold is the failure count at or above which the rule fires.
	AttemptsThreshold int `json:"attempts_threshold"`

	// Severity for generated findings.
	Severity Severity `json:"severity"`
}

// DefaultBruteForceConfig returns sensible defaults.
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		EventType:         "login_failure",
		AttemptsThreshold: 10,
		Severity:          SeverityCritical,
	}
}

// BruteForceRule flags repeated authentication failures against one target.
// The attempt count arrives in the event payload; the rule itself keeps no
// cross-event state.
type BruteForceRule struct {
	config  BruteForceConfig
	enabled bool
	mu      sync.RWMutex
}

// NewBruteForceRule creates a brute force rule with default configuration.
func NewBruteForceRule() *BruteForceRule {
	return &BruteForceRule{
		config:  DefaultBruteForceConfig(),
		enabled: true,
	}
}

// Type returns the rule type.
func (r *BruteForceRule) Type() RuleType {
	return RuleTypeBruteForce
}

// Check evaluates the event against the brute force rule.
func (r *BruteForceRule) Check(_ context.Context, ev *event.SecurityEvent) (*Finding, error) {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	if ev.EventType != config.EventType {
		return nil, nil
	}

	attempts, ok := ev.PayloadInt("attempts")
	if !ok {
		// No attempt counter present; a single failure is not a pattern.
		return nil, nil
	}

	if attempts < config.AttemptsThreshold {
		return nil, nil
	}

	return &Finding{
		RuleID:   string(RuleTypeBruteForce),
		Severity: config.Severity,
		Description: fmt.Sprintf(
			"%d failed authentication attempts from %s (threshold: %d)",
			attempts, ev.Source, config.AttemptsThreshold,
		),
	}, nil
}

// Configure updates the rule configuration.
func (r *BruteForceRule) Configure(config json.RawMessage) error {
	var newConfig BruteForceConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.AttemptsThreshold <= 0 {
		return fmt.Errorf("attempts_threshold must be positive")
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
func (r *BruteForceRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *BruteForceRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Config returns the current configuration.
func (r *BruteForceRule) Config() BruteForceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
