// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package event defines the canonical SecurityEvent record ingested by the
// analysis pipeline. Events are validated at the boundary and treated as
// read-only once inside the pipeline.
package event

import (
	"time"

	"github.com/google/uuid"
)

// SecurityEvent represents a single observation from monitored infrastructure.
// This is the canonical event format used across all ingestion sources
// (firewalls, auth services, host agents, application logs).
type SecurityEvent struct {
	// Identification
	ID     string `json:"id"`
	Source string `json:"source"` // emitting system, e.g. "edge-fw-01", "10.0.0.5"

	// Classification
	EventType string `json:"event_type"` // e.g. login_failure, privilege_escalation, port_scan

	// Payload carries source-specific fields the rule engine inspects.
	// Opaque to the pipeline itself.
	Payload map[string]any `json:"payload,omitempty"`

	// OccurredAt is when the event happened at the source, not when it
	// was received.
	OccurredAt time.Time `json:"occurred_at"`
}

// New creates an event with a unique ID and the occurrence time set to now.
func New(source, eventType string) *SecurityEvent {
	return &SecurityEvent{
		ID:         uuid.New().String(),
		Source:     source,
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate checks required fields and returns an error if validation fails.
func (e *SecurityEvent) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if e.Source == "" {
		return &ValidationError{Field: "source", Message: "required"}
	}
	if e.EventType == "" {
		return &ValidationError{Field: "event_type", Message: "required"}
	}
	if e.OccurredAt.IsZero() {
		return &ValidationError{Field: "occurred_at", Message: "required"}
	}
	if e.OccurredAt.After(time.Now().Add(clockSkewTolerance)) {
		return &ValidationError{Field: "occurred_at", Message: "in the future"}
	}
	return nil
}

// clockSkewTolerance allows for modest clock drift between event sources
// and this host before a future timestamp is rejected.
const clockSkewTolerance = 5 * time.Minute

// PayloadString returns a string payload field, with ok reporting presence.
// Values of other types return ok=false rather than a formatted fallback so
// rules can distinguish "absent" from "wrong type".
func (e *SecurityEvent) PayloadString(key string) (string, bool) {
	v, present := e.Payload[key]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// PayloadFloat returns a numeric payload field as float64.
// JSON decoding produces float64 for all numbers; native ints from in-process
// callers are accepted too.
func (e *SecurityEvent) PayloadFloat(key string) (float64, bool) {
	v, present := e.Payload[key]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// PayloadInt returns a numeric payload field truncated to int.
func (e *SecurityEvent) PayloadInt(key string) (int, bool) {
	f, ok := e.PayloadFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ValidationError indicates a malformed event rejected before processing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
