// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package assessment merges rule findings and the model prediction into the
// single threat verdict published for each event.
package assessment

import (
	"time"

	"github.com/tomtom215/threatlens/internal/rules"
	"github.com/tomtom215/threatlens/internal/scoring"
)

// RiskLevel is the coarse human-facing bucket derived from the combined score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk-level thresholds on the combined score.
const (
	thresholdMedium   = 0.25
	thresholdHigh     = 0.5
	thresholdCritical = 0.75
)

// ThreatAssessment is the terminal artifact for one event: the merged
// verdict of both analysis branches.
type ThreatAssessment struct {
	EventID       string                   `json:"event_id"`
	RiskLevel     RiskLevel                `json:"risk_level"`
	CombinedScore float64                  `json:"combined_score"` // in [0,1]
	Findings      []rules.Finding          `json:"findings,omitempty"`
	Prediction    scoring.ThreatPrediction `json:"prediction"`
	Timestamp     time.Time                `json:"timestamp"`

	// Degradation flags: set when a branch timed out and contributed
	// nothing instead of failing the event.
	RulesDegraded   bool `json:"rules_degraded,omitempty"`
	ScoringDegraded bool `json:"scoring_degraded,omitempty"`
}

// Merge combines findings and the prediction into an assessment.
//
// The combined score is the maximum of the model score and the highest
// finding severity weight: either branch alone can escalate risk, neither
// can suppress the other. Deterministic and monotonic in both inputs.
//
// The assessment timestamp never precedes occurredAt. Sources are allowed
// modest clock skew at validation, so an event stamped slightly ahead of
// this host would otherwise produce an assessment dated before its own
// event.
func Merge(eventID string, occurredAt time.Time, findings []rules.Finding, prediction scoring.ThreatPrediction) ThreatAssessment {
	combined := prediction.ThreatScore
	if w := rules.MaxSeverityWeight(findings); w > combined {
		combined = w
	}

	ts := time.Now().UTC()
	if occurredAt.After(ts) {
		ts = occurredAt.UTC()
	}

	return ThreatAssessment{
		EventID:       eventID,
		RiskLevel:     LevelForScore(combined),
		CombinedScore: combined,
		Findings:      findings,
		Prediction:    prediction,
		Timestamp:     ts,
	}
}

// LevelForScore buckets a combined score into a risk level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < thresholdMedium:
		return RiskLow
	case score < thresholdHigh:
		return RiskMedium
	case score < thresholdCritical:
		return RiskHigh
	default:
		return RiskCritical
	}
}
