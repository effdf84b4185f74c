// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package rules implements the anomaly rule engine. Each event is checked
// against an atomically swappable set of rules; every rule failure degrades
// to a synthetic finding so one broken rule cannot block the others.
package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/event"
	"github.com/tomtom215/threatlens/internal/logging"
)

// ruleSet is an immutable snapshot of the active rules.
// Replaced wholesale on update, never mutated in place, so Evaluate can
// iterate without holding a lock.
type ruleSet struct {
	rules []Rule
}

// Engine evaluates events against the active rule set.
type Engine struct {
	active atomic.Pointer[ruleSet]

	metricsMu    sync.RWMutex // guards metricsStore
	metricsStore EngineMetrics
}

// EngineMetrics is a point-in-time snapshot of rule engine counters.
// Plain data, safe to copy and embed in API responses.
type EngineMetrics struct {
	EventsProcessed int64
	FindingsEmitted int64
	RuleErrors      int64
	LastProcessedAt time.Time
	RuleMetrics     map[RuleType]*RuleMetrics
}

// RuleMetrics tracks individual rule performance.
type RuleMetrics struct {
	EventsChecked   int64
	FindingsEmitted int64
	Errors          int64
	LastTriggeredAt *time.Time
}

// NewEngine creates an engine with the given initial rule set.
func NewEngine(rules ...Rule) *Engine {
	e := &Engine{
		metricsStore: EngineMetrics{
			RuleMetrics: make(map[RuleType]*RuleMetrics),
		},
	}
	e.SetRules(rules)
	return e
}

// SetRules atomically replaces the active rule set.
// In-flight Evaluate calls finish against the snapshot they captured.
func (e *Engine) SetRules(rules []Rule) {
	set := &ruleSet{rules: make([]Rule, len(rules))}
	copy(set.rules, rules)

	e.metricsMu.Lock()
	for _, r := range set.rules {
		if _, ok := e.metricsStore.RuleMetrics[r.Type()]; !ok {
			e.metricsStore.RuleMetrics[r.Type()] = &RuleMetrics{}
		}
	}
	e.metricsMu.Unlock()

	e.active.Store(set)
	logging.Info().Int("rules", len(set.rules)).Msg("rule set replaced")
}

// Rules returns the rules in the active set.
func (e *Engine) Rules() []Rule {
	set := e.active.Load()
	if set == nil {
		return nil
	}
	out := make([]Rule, len(set.rules))
	copy(out, set.rules)
	return out
}

// GetRule returns the active rule of the given type.
func (e *Engine) GetRule(ruleType RuleType) (Rule, bool) {
	set := e.active.Load()
	if set == nil {
		return nil, false
	}
	for _, r := range set.rules {
		if r.Type() == ruleType {
			return r, true
		}
	}
	return nil, false
}

// ConfigureRule updates the configuration of the active rule of the given type.
func (e *Engine) ConfigureRule(ruleType RuleType, config json.RawMessage) error {
	r, ok := e.GetRule(ruleType)
	if !ok {
		return fmt.Errorf("rule not found: %s", ruleType)
	}
	return r.Configure(config)
}

// SetRuleEnabled enables or disables the active rule of the given type.
func (e *Engine) SetRuleEnabled(ruleType RuleType, enabled bool) error {
	r, ok := e.GetRule(ruleType)
	if !ok {
		return fmt.Errorf("rule not found: %s", ruleType)
	}
	r.SetEnabled(enabled)
	return nil
}

// Evaluate checks the event against every enabled rule in the active set.
// A rule error or panic yields a synthetic Low-severity finding attributed
// to RuleErrorID; the remaining rules still run.
func (e *Engine) Evaluate(ctx context.Context, ev *event.SecurityEvent) []Finding {
	set := e.active.Load()
	if set == nil || len(set.rules) == 0 {
		return nil
	}

	var findings []Finding
	for _, r := range set.rules {
		if !r.Enabled() {
			continue
		}

		finding, err := e.checkRule(ctx, r, ev)
		if err != nil {
			e.recordRuleError(r.Type())
			findings = append(findings, Finding{
				RuleID:      RuleErrorID,
				Severity:    SeverityLow,
				Description: fmt.Sprintf("rule %s failed: %v", r.Type(), err),
			})
			continue
		}
		if finding != nil {
			e.recordFinding(r.Type())
			findings = append(findings, *finding)
		}
	}

	e.metricsMu.Lock()
	e.metricsStore.EventsProcessed++
	e.metricsStore.LastProcessedAt = time.Now()
	e.metricsMu.Unlock()

	return findings
}

// checkRule runs one rule with panic recovery.
func (e *Engine) checkRule(ctx context.Context, r Rule, ev *event.SecurityEvent) (finding *Finding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			finding = nil
			err = fmt.Errorf("panic: %v", rec)
			logging.Error().
				Str("rule", string(r.Type())).
				Interface("panic", rec).
				Msg("rule panicked during evaluation")
		}
	}()

	e.metricsMu.Lock()
	if m, ok := e.metricsStore.RuleMetrics[r.Type()]; ok {
		m.EventsChecked++
	}
	e.metricsMu.Unlock()

	return r.Check(ctx, ev)
}

func (e *Engine) recordFinding(ruleType RuleType) {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()

	e.metricsStore.FindingsEmitted++
	if m, ok := e.metricsStore.RuleMetrics[ruleType]; ok {
		m.FindingsEmitted++
		now := time.Now()
		m.LastTriggeredAt = &now
	}
}

func (e *Engine) recordRuleError(ruleType RuleType) {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()

	e.metricsStore.RuleErrors++
	if m, ok := e.metricsStore.RuleMetrics[ruleType]; ok {
		m.Errors++
	}
}

// Metrics returns a copy of the engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	e.metricsMu.RLock()
	defer e.metricsMu.RUnlock()

	ruleMetrics := make(map[RuleType]*RuleMetrics, len(e.metricsStore.RuleMetrics))
	for k, v := range e.metricsStore.RuleMetrics {
		c := *v
		ruleMetrics[k] = &c
	}

	return EngineMetrics{
		EventsProcessed: e.metricsStore.EventsProcessed,
		FindingsEmitted: e.metricsStore.FindingsEmitted,
		RuleErrors:      e.metricsStore.RuleErrors,
		LastProcessedAt: e.metricsStore.LastProcessedAt,
		RuleMetrics:     ruleMetrics,
	}
}

// DefaultRules returns the built-in rule set with default configurations.
func DefaultRules() []Rule {
	return []Rule{
		NewBruteForceRule(),
		NewPrivilegeEscalationRule(),
		NewSourceBlocklistRule(),
		NewPayloadSizeRule(),
		NewOffHoursRule(),
		NewPortScanRule(),
	}
}
