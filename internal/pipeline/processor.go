// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package pipeline orchestrates per-event analysis: rule evaluation and model
// scoring run concurrently under independent deadlines, their signals merge
// into a single threat assessment, and the result fans out to the dashboard,
// the broadcast bus, and the archive.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/threatlens/internal/archive"
	"github.com/tomtom215/threatlens/internal/assessment"
	"github.com/tomtom215/threatlens/internal/bus"
	"github.com/tomtom215/threatlens/internal/config"
	"github.com/tomtom215/threatlens/internal/dashboard"
	"github.com/tomtom215/threatlens/internal/event"
	"github.com/tomtom215/threatlens/internal/metrics"
	"github.com/tomtom215/threatlens/internal/rules"
	"github.com/tomtom215/threatlens/internal/scoring"
)

// ThreatUpdate is the bus payload broadcast for every assessed event.
type ThreatUpdate struct {
	ThreatLevel float64   `json:"threatLevel"`
	EventID     string    `json:"eventId"`
	RiskLevel   string    `json:"riskLevel"`
	Timestamp   time.Time `json:"timestamp"`
}

// AnomalyNotice is broadcast when rule evaluation produced findings.
type AnomalyNotice struct {
	EventID   string          `json:"eventId"`
	Source    string          `json:"source"`
	Findings  []rules.Finding `json:"findings"`
	Timestamp time.Time       `json:"timestamp"`
}

// Processor drives a security event through the full analysis pipeline.
//
// Both analysis branches are best-effort under their shared per-branch
// deadline: a branch that cannot answer in time contributes nothing and the
// assessment is flagged as degraded, but the event is never dropped.
type Processor struct {
	engine     *rules.Engine
	scorer     *scoring.Service
	dash       *dashboard.Aggregator
	broadcast  *bus.Bus
	archivePub wmmessage.Publisher

	branchTimeout  time.Duration
	metricsLimiter *rate.Limiter
	logger         zerolog.Logger
}

// NewProcessor wires the analysis pipeline. archivePub may be nil, in which
// case assessments are not persisted.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewProcessor(
	cfg config.PipelineConfig,
	engine *rules.Engine,
	scorer *scoring.Service,
	dash *dashboard.Aggregator,
	broadcast *bus.Bus,
	archivePub wmmessage.Publisher,
	logger zerolog.Logger,
) *Processor {
	timeout := cfg.BranchTimeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	interval := cfg.ModelMetricsInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Processor{
		engine:         engine,
		scorer:         scorer,
		dash:           dash,
		broadcast:      broadcast,
		archivePub:     archivePub,
		branchTimeout:  timeout,
		metricsLimiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:         logger.With().Str("component", "pipeline").Logger(),
	}
}

// Submit validates the event, runs both analysis branches, and returns the
// merged assessment. A validation failure is the only error path; analysis
// branch failures degrade the assessment instead.
func (p *Processor) Submit(ctx context.Context, ev *event.SecurityEvent) (*assessment.ThreatAssessment, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	if verr := ev.Validate(); verr != nil {
		metrics.EventsRejected.Inc()
		return nil, fmt.Errorf("invalid event: %w", verr)
	}

	start := time.Now()

	// Both branches fan out together and run under their own deadlines.
	// The join below is the only point Submit blocks on analysis, so the
	// worst case is one branch timeout, not the sum of both.
	rulesCh := make(chan rulesOutcome, 1)
	go func() {
		findings, degraded := p.runRulesBranch(ctx, ev)
		rulesCh <- rulesOutcome{findings: findings, degraded: degraded}
	}()

	scoreCh := make(chan scoringOutcome, 1)
	go func() {
		prediction, degraded := p.runScoringBranch(ctx, ev)
		scoreCh <- scoringOutcome{prediction: prediction, degraded: degraded}
	}()

	rulesRes := <-rulesCh
	scoreRes := <-scoreCh
	findings, rulesDegraded := rulesRes.findings, rulesRes.degraded
	prediction, scoringDegraded := scoreRes.prediction, scoreRes.degraded

	ta := assessment.Merge(ev.ID, ev.OccurredAt, findings, prediction)
	ta.RulesDegraded = rulesDegraded
	ta.ScoringDegraded = scoringDegraded

	p.dash.Record(&ta, ev.Source)
	p.publishAssessment(ev, &ta)
	p.archiveAssessment(&ta)

	elapsed := time.Since(start)
	metrics.RecordAssessment(string(ta.RiskLevel), elapsed)
	for i := range ta.Findings {
		metrics.RecordFinding(ta.Findings[i].RuleID, string(ta.Findings[i].Severity))
	}

	p.logger.Debug().
		Str("event_id", ev.ID).
		Str("risk_level", string(ta.RiskLevel)).
		Float64("combined_score", ta.CombinedScore).
		Int("findings", len(ta.Findings)).
		Bool("rules_degraded", rulesDegraded).
		Bool("scoring_degraded", scoringDegraded).
		Dur("elapsed", elapsed).
		Msg("event assessed")

	return &ta, nil
}

// rulesOutcome and scoringOutcome carry one branch's result across the
// fan-in join.
type rulesOutcome struct {
	findings []rules.Finding
	degraded bool
}

type scoringOutcome struct {
	prediction scoring.ThreatPrediction
	degraded   bool
}

// runRulesBranch evaluates all rules under the branch deadline. The result
// channel is buffered so a branch that finishes after the deadline does not
// leak its goroutine.
func (p *Processor) runRulesBranch(ctx context.Context, ev *event.SecurityEvent) ([]rules.Finding, bool) {
	bctx, cancel := context.WithTimeout(ctx, p.branchTimeout)
	defer cancel()

	resCh := make(chan []rules.Finding, 1)
	go func() {
		resCh <- p.engine.Evaluate(bctx, ev)
	}()

	select {
	case findings := <-resCh:
		return findings, false
	case <-bctx.Done():
		metrics.RecordBranchTimeout("rules")
		p.logger.Warn().
			Str("event_id", ev.ID).
			Dur("timeout", p.branchTimeout).
			Msg("rule evaluation exceeded branch deadline, assessment degraded")
		return nil, true
	}
}

// runScoringBranch obtains a model prediction under the branch deadline.
// On timeout the prediction is marked unavailable, mirroring a cold start.
func (p *Processor) runScoringBranch(ctx context.Context, ev *event.SecurityEvent) (scoring.ThreatPrediction, bool) {
	bctx, cancel := context.WithTimeout(ctx, p.branchTimeout)
	defer cancel()

	resCh := make(chan scoring.ThreatPrediction, 1)
	go func() {
		resCh <- p.scorer.Predict(bctx, ev)
	}()

	select {
	case prediction := <-resCh:
		return prediction, false
	case <-bctx.Done():
		metrics.RecordBranchTimeout("scoring")
		p.logger.Warn().
			Str("event_id", ev.ID).
			Dur("timeout", p.branchTimeout).
			Msg("model scoring exceeded branch deadline, assessment degraded")
		return scoring.ThreatPrediction{Unavailable: true}, true
	}
}

// publishAssessment fans the assessment out on the broadcast bus. Model
// metric snapshots piggyback on the event flow but are rate limited so a
// burst of events does not flood subscribers with identical snapshots.
func (p *Processor) publishAssessment(ev *event.SecurityEvent, ta *assessment.ThreatAssessment) {
	p.broadcast.Publish(bus.TopicThreatUpdate, ThreatUpdate{
		ThreatLevel: ta.CombinedScore,
		EventID:     ta.EventID,
		RiskLevel:   string(ta.RiskLevel),
		Timestamp:   ta.Timestamp,
	})
	metrics.BusPublished.WithLabelValues(string(bus.TopicThreatUpdate)).Inc()

	if len(ta.Findings) > 0 {
		p.broadcast.Publish(bus.TopicAnomalyDetected, AnomalyNotice{
			EventID:   ta.EventID,
			Source:    ev.Source,
			Findings:  ta.Findings,
			Timestamp: ta.Timestamp,
		})
		metrics.BusPublished.WithLabelValues(string(bus.TopicAnomalyDetected)).Inc()
	}

	if p.metricsLimiter.Allow() {
		p.broadcast.Publish(bus.TopicModelMetrics, p.scorer.Metrics())
		metrics.BusPublished.WithLabelValues(string(bus.TopicModelMetrics)).Inc()
	}
}

// archiveAssessment hands the assessment to the archive topic. Persistence
// is fire-and-forget: a marshal or publish failure is logged and counted but
// never surfaces to the caller.
func (p *Processor) archiveAssessment(ta *assessment.ThreatAssessment) {
	if p.archivePub == nil {
		return
	}

	payload, err := json.Marshal(ta)
	if err != nil {
		metrics.ArchiveWrites.WithLabelValues("failed").Inc()
		p.logger.Error().Err(err).Str("event_id", ta.EventID).Msg("failed to marshal assessment for archive")
		return
	}

	msg := wmmessage.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_id", ta.EventID)
	if err := p.archivePub.Publish(archive.TopicAssessmentArchived, msg); err != nil {
		metrics.ArchiveWrites.WithLabelValues("failed").Inc()
		p.logger.Error().Err(err).Str("event_id", ta.EventID).Msg("failed to publish assessment to archive")
	}
}
