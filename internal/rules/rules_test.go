// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/event"
)

func ev(eventType, source string, payload map[string]any) *event.SecurityEvent {
	return &event.SecurityEvent{
		ID:         "e1",
		Source:     source,
		EventType:  eventType,
		Payload:    payload,
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

// ===================================================================================================
// Brute Force
// ===================================================================================================

func TestBruteForceRule(t *testing.T) {
	r := NewBruteForceRule()

	tests := []struct {
		name     string
		event    *event.SecurityEvent
		wantHit  bool
		wantCrit bool
	}{
		{
			name:     "attempts at threshold fires critical",
			event:    ev("login_failure", "10.0.0.5", map[string]any{"attempts": float64(10)}),
			wantHit:  true,
			wantCrit: true,
		},
		{
			name:     "attempts well above threshold",
			event:    ev("login_failure", "10.0.0.5", map[string]any{"attempts": float64(50)}),
			wantHit:  true,
			wantCrit: true,
		},
		{
			name:    "attempts below threshold",
			event:   ev("login_failure", "10.0.0.5", map[string]any{"attempts": float64(3)}),
			wantHit: false,
		},
		{
			name:    "wrong event type",
			event:   ev("login_success", "10.0.0.5", map[string]any{"attempts": float64(50)}),
			wantHit: false,
		},
		{
			name:    "missing attempts field",
			event:   ev("login_failure", "10.0.0.5", nil),
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := r.Check(context.Background(), tt.event)
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}
			if (f != nil) != tt.wantHit {
				t.Fatalf("Check() finding = %v, wantHit %v", f, tt.wantHit)
			}
			if tt.wantCrit && f.Severity != SeverityCritical {
				t.Errorf("Severity = %s, want critical", f.Severity)
			}
		})
	}
}

func TestBruteForceRule_Configure(t *testing.T) {
	r := NewBruteForceRule()

	if err := r.Configure(json.RawMessage(`{"event_type":"auth_fail","attempts_threshold":3,"severity":"high"}`)); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	f, err := r.Check(context.Background(), ev("auth_fail", "x", map[string]any{"attempts": float64(3)}))
	if err != nil || f == nil {
		t.Fatalf("expected finding after reconfigure, got %v, %v", f, err)
	}
	if f.Severity != SeverityHigh {
		t.Errorf("Severity = %s, want high", f.Severity)
	}

	invalid := []string{
		`{"event_type":"a","attempts_threshold":0,"severity":"high"}`,
		`{"event_type":"","attempts_threshold":5,"severity":"high"}`,
		`{"event_type":"a","attempts_threshold":5,"severity":"extreme"}`,
		`{not json`,
	}
	for _, cfg := range invalid {
		if err := r.Configure(json.RawMessage(cfg)); err == nil {
			t.Errorf("Configure(%s) should error", cfg)
		}
	}
}

// ===================================================================================================
// Privilege Escalation
// ===================================================================================================

func TestPrivilegeEscalationRule(t *testing.T) {
	r := NewPrivilegeEscalationRule()

	f, err := r.Check(context.Background(), ev("privilege_escalation", "host-7", nil))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if f == nil {
		t.Fatal("expected finding for privilege_escalation event")
	}
	if f.Severity != SeverityHigh {
		t.Errorf("Severity = %s, want high", f.Severity)
	}

	// Sensitive target role escalates to critical
	f, err = r.Check(context.Background(), ev("role_change", "host-7", map[string]any{"target_role": "admin"}))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if f == nil || f.Severity != SeverityCritical {
		t.Errorf("expected critical finding for admin role change, got %+v", f)
	}
	if !strings.Contains(f.Description, "admin") {
		t.Errorf("description should mention the role: %s", f.Description)
	}

	// Unrelated event type passes
	f, err = r.Check(context.Background(), ev("login_failure", "host-7", nil))
	if err != nil || f != nil {
		t.Errorf("expected no finding, got %v, %v", f, err)
	}
}

// ===================================================================================================
// Source Blocklist
// ===================================================================================================

func TestSourceBlocklistRule(t *testing.T) {
	r := NewSourceBlocklistRule()

	// Default blocklist is empty
	f, err := r.Check(context.Background(), ev("login_failure", "10.0.0.5", nil))
	if err != nil || f != nil {
		t.Errorf("empty blocklist should not fire, got %v, %v", f, err)
	}

	cfg := json.RawMessage(`{"sources":["bad-host"],"cidrs":["192.0.2.0/24"],"severity":"high"}`)
	if err := r.Configure(cfg); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	// Exact source match
	f, err = r.Check(context.Background(), ev("login_failure", "bad-host", nil))
	if err != nil || f == nil {
		t.Fatalf("expected finding for blocklisted source, got %v, %v", f, err)
	}

	// CIDR match
	f, err = r.Check(context.Background(), ev("login_failure", "192.0.2.77", nil))
	if err != nil || f == nil {
		t.Fatalf("expected finding for blocklisted range, got %v, %v", f, err)
	}

	// Outside range
	f, err = r.Check(context.Background(), ev("login_failure", "198.51.100.1", nil))
	if err != nil || f != nil {
		t.Errorf("expected no finding outside range, got %v, %v", f, err)
	}

	// Invalid CIDR rejected
	if err := r.Configure(json.RawMessage(`{"cidrs":["not-a-cidr"],"severity":"high"}`)); err == nil {
		t.Error("Configure() with invalid CIDR should error")
	}
}

// ===================================================================================================
// Payload Size
// ===================================================================================================

func TestPayloadSizeRule(t *testing.T) {
	r := NewPayloadSizeRule()
	if err := r.Configure(json.RawMessage(`{"max_bytes":64,"severity":"medium"}`)); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	big := map[string]any{"blob": strings.Repeat("x", 200)}
	f, err := r.Check(context.Background(), ev("data_export", "host-1", big))
	if err != nil || f == nil {
		t.Fatalf("expected finding for oversized payload, got %v, %v", f, err)
	}
	if f.Severity != SeverityMedium {
		t.Errorf("Severity = %s, want medium", f.Severity)
	}

	small := map[string]any{"k": "v"}
	f, err = r.Check(context.Background(), ev("data_export", "host-1", small))
	if err != nil || f != nil {
		t.Errorf("expected no finding for small payload, got %v, %v", f, err)
	}

	// Empty payload never fires
	f, err = r.Check(context.Background(), ev("data_export", "host-1", nil))
	if err != nil || f != nil {
		t.Errorf("expected no finding for empty payload, got %v, %v", f, err)
	}
}

// ===================================================================================================
// Off Hours
// ===================================================================================================

func TestOffHoursRule(t *testing.T) {
	r := NewOffHoursRule()

	midnight := &event.SecurityEvent{
		ID:         "e1",
		Source:     "host-3",
		EventType:  "admin_login",
		OccurredAt: time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC),
	}
	f, err := r.Check(context.Background(), midnight)
	if err != nil || f == nil {
		t.Fatalf("expected finding for 02:30 admin login, got %v, %v", f, err)
	}

	noon := &event.SecurityEvent{
		ID:         "e2",
		Source:     "host-3",
		EventType:  "admin_login",
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f, err = r.Check(context.Background(), noon)
	if err != nil || f != nil {
		t.Errorf("expected no finding at noon, got %v, %v", f, err)
	}

	// Non-sensitive event types ignored even at night
	routine := &event.SecurityEvent{
		ID:         "e3",
		Source:     "host-3",
		EventType:  "heartbeat",
		OccurredAt: time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC),
	}
	f, err = r.Check(context.Background(), routine)
	if err != nil || f != nil {
		t.Errorf("expected no finding for routine night event, got %v, %v", f, err)
	}
}

func TestOffHoursRule_ConfigureValidation(t *testing.T) {
	r := NewOffHoursRule()

	invalid := []string{
		`{"start_hour":-1,"end_hour":20,"event_types":["x"],"severity":"medium"}`,
		`{"start_hour":7,"end_hour":25,"event_types":["x"],"severity":"medium"}`,
		`{"start_hour":20,"end_hour":7,"event_types":["x"],"severity":"medium"}`,
		`{"start_hour":7,"end_hour":20,"event_types":[],"severity":"medium"}`,
	}
	for _, cfg := range invalid {
		if err := r.Configure(json.RawMessage(cfg)); err == nil {
			t.Errorf("Configure(%s) should error", cfg)
		}
	}
}

// ===================================================================================================
// Port Scan
// ===================================================================================================

func TestPortScanRule(t *testing.T) {
	r := NewPortScanRule()

	f, err := r.Check(context.Background(), ev("port_scan", "203.0.113.9", map[string]any{"unique_ports": float64(40)}))
	if err != nil || f == nil {
		t.Fatalf("expected finding for 40-port scan, got %v, %v", f, err)
	}
	if f.Severity != SeverityHigh {
		t.Errorf("Severity = %s, want high", f.Severity)
	}

	f, err = r.Check(context.Background(), ev("port_scan", "203.0.113.9", map[string]any{"unique_ports": float64(2)}))
	if err != nil || f != nil {
		t.Errorf("expected no finding below threshold, got %v, %v", f, err)
	}

	// Missing evidence is a rule error, surfaced as a synthetic finding by the engine
	_, err = r.Check(context.Background(), ev("port_scan", "203.0.113.9", nil))
	if err == nil {
		t.Error("expected error for port_scan event without unique_ports")
	}

	// Other event types pass
	f, err = r.Check(context.Background(), ev("login_failure", "203.0.113.9", nil))
	if err != nil || f != nil {
		t.Errorf("expected no finding for other event type, got %v, %v", f, err)
	}
}

func TestPortScanRule_ErrorThroughEngine(t *testing.T) {
	e := NewEngine(NewPortScanRule())

	findings := e.Evaluate(context.Background(), ev("port_scan", "203.0.113.9", nil))
	if len(findings) != 1 {
		t.Fatalf("expected 1 synthetic finding, got %d", len(findings))
	}
	if findings[0].RuleID != RuleErrorID {
		t.Errorf("RuleID = %s, want %s", findings[0].RuleID, RuleErrorID)
	}
	if findings[0].Severity != SeverityLow {
		t.Errorf("Severity = %s, want low", findings[0].Severity)
	}
}
