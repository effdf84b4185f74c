// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package metrics provides Prometheus instrumentation for the analysis
// pipeline, the rule engine, the scoring model, the broadcast bus, and the
// HTTP API. All collectors are registered at init via promauto and exposed
// on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_events_processed_total",
			Help: "Total number of security events submitted for analysis",
		},
	)

	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_events_rejected_total",
			Help: "Total number of security events rejected by validation",
		},
	)

	AssessmentsByRiskLevel = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_assessments_total",
			Help: "Total threat assessments produced, by risk level",
		},
		[]string{"risk_level"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatlens_pipeline_duration_seconds",
			Help:    "End-to-end analysis duration per event in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	BranchTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_branch_timeouts_total",
			Help: "Analysis branches degraded after exceeding their deadline",
		},
		[]string{"branch"}, // "rules" or "scoring"
	)

	// Rule Engine Metrics
	RuleFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_rule_findings_total",
			Help: "Total rule findings emitted, by rule and severity",
		},
		[]string{"rule", "severity"},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_rule_errors_total",
			Help: "Rule evaluation failures converted to synthetic findings",
		},
		[]string{"rule"},
	)

	// Scoring Metrics
	Predictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_predictions_total",
			Help: "Total model predictions served",
		},
	)

	PredictionsUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_predictions_unavailable_total",
			Help: "Predictions requested while no model was installed",
		},
	)

	RetrainRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_retrain_runs_total",
			Help: "Model retraining attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failed", "conflict"
	)

	RetrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatlens_retrain_duration_seconds",
			Help:    "Model retraining duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ModelAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_model_accuracy",
			Help: "Accuracy of the currently installed model",
		},
	)

	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_model_version",
			Help: "Version of the currently installed model",
		},
	)

	// Broadcast Bus Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_bus_published_total",
			Help: "Messages published to the broadcast bus, by topic",
		},
		[]string{"topic"},
	)

	BusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_bus_dropped_total",
			Help: "Messages dropped from overflowing subscriber mailboxes, by topic",
		},
		[]string{"topic"},
	)

	// Archive Metrics
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_archive_writes_total",
			Help: "Assessment archive writes by outcome",
		},
		[]string{"outcome"}, // "success", "failed", "rejected"
	)

	ArchiveBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_archive_breaker_state",
			Help: "Archive circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// WebSocket Metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_websocket_clients",
			Help: "Currently connected WebSocket clients",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_websocket_messages_sent_total",
			Help: "Messages delivered to WebSocket clients",
		},
	)

	WebSocketMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_websocket_messages_dropped_total",
			Help: "Messages dropped because a client send buffer was full",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatlens_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAssessment records one completed analysis: its risk level and the
// end-to-end duration.
func RecordAssessment(riskLevel string, duration time.Duration) {
	EventsProcessed.Inc()
	AssessmentsByRiskLevel.WithLabelValues(riskLevel).Inc()
	PipelineDuration.Observe(duration.Seconds())
}

// RecordBranchTimeout records an analysis branch degraded by its deadline.
// branch is "rules" or "scoring".
func RecordBranchTimeout(branch string) {
	BranchTimeouts.WithLabelValues(branch).Inc()
}

// RecordFinding records one emitted rule finding.
func RecordFinding(rule, severity string) {
	RuleFindings.WithLabelValues(rule, severity).Inc()
}

// RecordRuleError records a rule evaluation failure.
func RecordRuleError(rule string) {
	RuleErrors.WithLabelValues(rule).Inc()
}

// RecordRetrain records one retraining attempt. On success the model gauges
// are updated to the newly installed model.
func RecordRetrain(outcome string, duration time.Duration, version int64, accuracy float64) {
	RetrainRuns.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		RetrainDuration.Observe(duration.Seconds())
		ModelVersion.Set(float64(version))
		ModelAccuracy.Set(accuracy)
	}
}

// RecordAPIRequest records an API request with its response code and latency.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
