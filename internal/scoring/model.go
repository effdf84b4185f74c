// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package scoring holds the live threat-scoring model and the retraining
// machinery around it. Exactly one model is active at a time; replacement is
// a single atomic pointer swap, so in-flight predictions always finish
// against the model version they started with.
package scoring

import (
	"math"
	"time"

	"github.com/tomtom215/threatlens/internal/event"
)

// Feature names extracted from events. Details maps in predictions use
// these keys so dashboards can explain a score.
const (
	FeatureAttempts    = "attempts"
	FeatureUniquePorts = "unique_ports"
	FeaturePayloadSize = "payload_size"
	FeatureTypeRisk    = "event_type_risk"
	FeatureOffHours    = "off_hours"
)

// Model is an immutable versioned scoring function. Fields are never
// mutated after construction; retraining builds a whole new Model.
type Model struct {
	Version   int       `json:"version"`
	Accuracy  float64   `json:"accuracy"`
	TrainedAt time.Time `json:"trained_at"`

	// Logistic regression parameters over the extracted feature vector.
	Weights map[string]float64 `json:"weights"`
	Bias    float64            `json:"bias"`
}

// baseTypeRisk maps known event types to a prior risk in [0,1].
// Unknown types fall back to a small nonzero prior.
var baseTypeRisk = map[string]float64{
	"login_failure":        0.4,
	"privilege_escalation": 0.8,
	"role_change":          0.6,
	"port_scan":            0.6,
	"data_export":          0.5,
	"config_change":        0.4,
	"admin_login":          0.3,
	"malware_detected":     0.9,
}

const defaultTypeRisk = 0.2

// ExtractFeatures converts an event into the normalized feature vector the
// model consumes. All features are clamped to [0,1].
func ExtractFeatures(ev *event.SecurityEvent) map[string]float64 {
	features := make(map[string]float64, 5)

	if attempts, ok := ev.PayloadFloat("attempts"); ok {
		features[FeatureAttempts] = clamp01(attempts / 100)
	}
	if ports, ok := ev.PayloadFloat("unique_ports"); ok {
		features[FeatureUniquePorts] = clamp01(ports / 50)
	}
	if n := len(ev.Payload); n > 0 {
		features[FeaturePayloadSize] = clamp01(float64(n) / 20)
	}

	risk, ok := baseTypeRisk[ev.EventType]
	if !ok {
		risk = defaultTypeRisk
	}
	features[FeatureTypeRisk] = risk

	hour := ev.OccurredAt.UTC().Hour()
	if hour < 7 || hour >= 20 {
		features[FeatureOffHours] = 1
	}

	return features
}

// Score applies the model to the event and returns the threat score in
// [0,1] plus per-feature contributions for explainability.
func (m *Model) Score(ev *event.SecurityEvent) (float64, map[string]float64) {
	features := ExtractFeatures(ev)

	details := make(map[string]float64, len(features))
	z := m.Bias
	for name, value := range features {
		w := m.Weights[name]
		contribution := w * value
		z += contribution
		details[name] = contribution
	}

	return logistic(z), details
}

// logistic squashes z into (0,1).
func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
