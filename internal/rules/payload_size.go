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

// PayloadSizeConfig configures the payload size rule.
type PayloadSizeConfig struct {
	// MaxBytes is the serialized payload size at or above which the rule fires.
	// Oversized payloads often indicate exfiltration staging or log injection.
	MaxBytes int `json:"max_bytes"`

	// Severity for generated findings.
	Severity Severity `json:"severity"`
}

// DefaultPayloadSizeConfig returns sensible defaults.
func DefaultPayloadSizeConfig() PayloadSizeConfig {
	return PayloadSizeConfig{
		MaxBytes: 64 * 1024,
		Severity: SeverityMedium,
	}
}

// PayloadSizeRule flags events carrying abnormally large payloads.
type PayloadSizeRule struct {
	config  PayloadSizeConfig
	enabled bool
	mu      sync.RWMutex
}

// NewPayloadSizeRule creates the rule with default configuration.
func NewPayloadSizeRule() *PayloadSizeRule {
	return &PayloadSizeRule{
		config:  DefaultPayloadSizeConfig(),
		enabled: true,
	}
}

// Type returns the rule type.
func (r *PayloadSizeRule) Type() RuleType {
	return RuleTypePayloadSize
}

// Check evaluates the event payload size.
func (r *PayloadSizeRule) Check(_ context.Context, ev *event.SecurityEvent) (*Finding, error) {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	if len(ev.Payload) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	if len(raw) < config.MaxBytes {
		return nil, nil
	}

	return &Finding{
		RuleID:   string(RuleTypePayloadSize),
		Severity: config.Severity,
		Description: fmt.Sprintf(
			"payload size %d bytes exceeds limit %d", len(raw), config.MaxBytes,
		),
	}, nil
}

// Configure updates the rule configuration.
func (r *PayloadSizeRule) Configure(config json.RawMessage) error {
	var newConfig PayloadSizeConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be positive")
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
func (r *PayloadSizeRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *PayloadSizeRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Config returns the current configuration.
func (r *PayloadSizeRule) Config() PayloadSizeConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
