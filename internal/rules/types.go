// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package rules

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/event"
)

// RuleType identifies the type of anomaly rule.
type RuleType string

const (
	// RuleTypeBruteForce flags repeated authentication failures.
	RuleTypeBruteForce RuleType = "brute_force"

	// RuleTypePrivilegeEscalation flags privilege or role elevation events.
	RuleTypePrivilegeEscalation RuleType = "privilege_escalation"

	// RuleTypeSourceBlocklist flags events from known-bad sources.
	RuleTypeSourceBlocklist RuleType = "source_blocklist"

	// RuleTypePayloadSize flags events carrying abnormally large payloads.
	RuleTypePayloadSize RuleType = "payload_size"

	// RuleTypeOffHours flags sensitive activity outside business hours.
	RuleTypeOffHours RuleType = "off_hours"

	// RuleTypePortScan flags port scanning patterns.
	RuleTypePortScan RuleType = "port_scan"
)

// RuleErrorID is the synthetic rule identifier attached to findings produced
// when a rule itself fails. One broken rule degrades to a Low-severity
// finding instead of aborting the whole evaluation.
const RuleErrorID = "rule_error"

// Severity indicates the severity of an anomaly finding.
// Severities are ordered: Low < Medium < High < Critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the numeric weight used when merging findings with the
// model score. Unknown severities weigh 0 so they can never escalate risk.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityMedium:
		return 0.5
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Finding is a discrete anomaly flagged by a single rule.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// MaxSeverityWeight returns the highest severity weight among findings,
// or 0 when there are none.
func MaxSeverityWeight(findings []Finding) float64 {
	maxWeight := 0.0
	for _, f := range findings {
		if w := f.Severity.Weight(); w > maxWeight {
			maxWeight = w
		}
	}
	return maxWeight
}

// Rule evaluates a single event against one anomaly pattern.
// Implementations must be safe for concurrent Check calls and must not
// retain references to the event.
type Rule interface {
	// Type returns the rule type this rule handles.
	Type() RuleType

	// Check evaluates the event against the rule.
	// Returns a finding if the pattern matched, nil otherwise.
	Check(ctx context.Context, ev *event.SecurityEvent) (*Finding, error)

	// Configure updates the rule configuration.
	Configure(config json.RawMessage) error

	// Enabled returns whether this rule is currently enabled.
	Enabled() bool

	// SetEnabled enables or disables the rule.
	SetEnabled(enabled bool)
}
