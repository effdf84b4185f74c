// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package assessment

import (
	"testing"
	"time"

	"github.com/tomtom215/threatlens/internal/rules"
	"github.com/tomtom215/threatlens/internal/scoring"
)

func TestLevelForScore_ThresholdTable(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLow},
		{0.1, RiskLow},
		{0.2499, RiskLow},
		{0.25, RiskMedium},
		{0.4, RiskMedium},
		{0.4999, RiskMedium},
		{0.5, RiskHigh},
		{0.7, RiskHigh},
		{0.7499, RiskHigh},
		{0.75, RiskCritical},
		{0.9, RiskCritical},
		{1.0, RiskCritical},
	}

	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.want {
			t.Errorf("LevelForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestMerge_MaxOfIndependentSignals(t *testing.T) {
	tests := []struct {
		name      string
		findings  []rules.Finding
		score     float64
		wantScore float64
		wantLevel RiskLevel
	}{
		{
			name:      "critical finding dominates low model score",
			findings:  []rules.Finding{{RuleID: "brute_force", Severity: rules.SeverityCritical}},
			score:     0.3,
			wantScore: 1.0,
			wantLevel: RiskCritical,
		},
		{
			name:      "model score dominates weak finding",
			findings:  []rules.Finding{{RuleID: "off_hours", Severity: rules.SeverityLow}},
			score:     0.6,
			wantScore: 0.6,
			wantLevel: RiskHigh,
		},
		{
			name:      "no findings, medium model score",
			findings:  nil,
			score:     0.4,
			wantScore: 0.4,
			wantLevel: RiskMedium,
		},
		{
			name:      "no findings, no score",
			findings:  nil,
			score:     0,
			wantScore: 0,
			wantLevel: RiskLow,
		},
		{
			name: "highest of several findings wins",
			findings: []rules.Finding{
				{RuleID: "a", Severity: rules.SeverityLow},
				{RuleID: "b", Severity: rules.SeverityHigh},
				{RuleID: "c", Severity: rules.SeverityMedium},
			},
			score:     0.1,
			wantScore: 0.75,
			wantLevel: RiskCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Merge("e1", time.Now(), tt.findings, scoring.ThreatPrediction{ThreatScore: tt.score})

			if a.CombinedScore != tt.wantScore {
				t.Errorf("CombinedScore = %v, want %v", a.CombinedScore, tt.wantScore)
			}
			if a.RiskLevel != tt.wantLevel {
				t.Errorf("RiskLevel = %s, want %s", a.RiskLevel, tt.wantLevel)
			}
			if a.EventID != "e1" {
				t.Errorf("EventID = %s, want e1", a.EventID)
			}
		})
	}
}

func TestMerge_ScoreInRange(t *testing.T) {
	severities := []rules.Severity{
		rules.SeverityLow, rules.SeverityMedium, rules.SeverityHigh, rules.SeverityCritical,
	}
	scores := []float64{0, 0.2, 0.5, 0.8, 1.0}

	for _, sev := range severities {
		for _, score := range scores {
			a := Merge("e1", time.Now(), []rules.Finding{{Severity: sev}}, scoring.ThreatPrediction{ThreatScore: score})
			if a.CombinedScore < 0 || a.CombinedScore > 1 {
				t.Errorf("CombinedScore = %v out of range for sev=%s score=%v", a.CombinedScore, sev, score)
			}
		}
	}
}

func TestMerge_Monotonic(t *testing.T) {
	// Raising the model score never lowers the combined score
	prev := -1.0
	for _, score := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
		a := Merge("e1", time.Now(), nil, scoring.ThreatPrediction{ThreatScore: score})
		if a.CombinedScore < prev {
			t.Errorf("combined score decreased when model score rose to %v", score)
		}
		prev = a.CombinedScore
	}

	// Raising the max finding severity never lowers the combined score
	prev = -1.0
	for _, sev := range []rules.Severity{rules.SeverityLow, rules.SeverityMedium, rules.SeverityHigh, rules.SeverityCritical} {
		a := Merge("e1", time.Now(), []rules.Finding{{Severity: sev}}, scoring.ThreatPrediction{ThreatScore: 0.1})
		if a.CombinedScore < prev {
			t.Errorf("combined score decreased when severity rose to %s", sev)
		}
		prev = a.CombinedScore
	}
}

func TestMerge_TimestampSet(t *testing.T) {
	before := time.Now().UTC()
	a := Merge("e1", time.Now(), nil, scoring.ThreatPrediction{})
	after := time.Now().UTC()

	if a.Timestamp.Before(before) || a.Timestamp.After(after) {
		t.Errorf("Timestamp %v outside [%v, %v]", a.Timestamp, before, after)
	}
}

func TestMerge_TimestampClampedToSkewedEvent(t *testing.T) {
	// Validation tolerates small clock skew, so an event stamped slightly
	// ahead of this host can reach Merge. The assessment must not predate it.
	occurredAt := time.Now().UTC().Add(2 * time.Minute)
	a := Merge("e1", occurredAt, nil, scoring.ThreatPrediction{})

	if a.Timestamp.Before(occurredAt) {
		t.Errorf("Timestamp %v precedes occurredAt %v", a.Timestamp, occurredAt)
	}
}

func TestMerge_ColdStartPrediction(t *testing.T) {
	// Cold start: unavailable prediction, findings alone drive the verdict
	p := scoring.ThreatPrediction{Unavailable: true}
	a := Merge("e1", time.Now(), []rules.Finding{{RuleID: "brute_force", Severity: rules.SeverityCritical}}, p)

	if a.CombinedScore != 1.0 {
		t.Errorf("CombinedScore = %v, want 1.0", a.CombinedScore)
	}
	if a.RiskLevel != RiskCritical {
		t.Errorf("RiskLevel = %s, want critical", a.RiskLevel)
	}
	if !a.Prediction.Unavailable {
		t.Error("prediction flag should be preserved in the assessment")
	}
}
