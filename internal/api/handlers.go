// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/threatlens/internal/archive"
	"github.com/tomtom215/threatlens/internal/config"
	"github.com/tomtom215/threatlens/internal/dashboard"
	"github.com/tomtom215/threatlens/internal/event"
	"github.com/tomtom215/threatlens/internal/metrics"
	"github.com/tomtom215/threatlens/internal/models"
	"github.com/tomtom215/threatlens/internal/pipeline"
	"github.com/tomtom215/threatlens/internal/rules"
	"github.com/tomtom215/threatlens/internal/scoring"
	"github.com/tomtom215/threatlens/internal/websocket"
)

// Handler bundles the pipeline components behind the HTTP endpoints.
// The archive store and WebSocket hub are optional; endpoints depending on
// them respond 503 when the component is not wired.
type Handler struct {
	cfg       *config.Config
	processor *pipeline.Processor
	engine    *rules.Engine
	scorer    *scoring.Service
	dash      *dashboard.Aggregator
	store     *archive.Store
	hub       *websocket.Hub
	logger    zerolog.Logger
}

// NewHandler creates the endpoint handler set.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewHandler(
	cfg *config.Config,
	processor *pipeline.Processor,
	engine *rules.Engine,
	scorer *scoring.Service,
	dash *dashboard.Aggregator,
	store *archive.Store,
	hub *websocket.Hub,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		processor: processor,
		engine:    engine,
		scorer:    scorer,
		dash:      dash,
		store:     store,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// AnalyzeRequest is the ingestion payload for a single security event.
// ID and OccurredAt are optional; when absent the server assigns a UUID and
// stamps the arrival time.
type AnalyzeRequest struct {
	ID         string         `json:"id" validate:"omitempty,uuid4"`
	Source     string         `json:"source" validate:"required,min=1,max=255"`
	EventType  string         `json:"event_type" validate:"required,min=1,max=128"`
	Payload    map[string]any `json:"payload"`
	OccurredAt *time.Time     `json:"occurred_at"`
}

// HandleAnalyze runs one event through the full pipeline and returns the
// resulting threat assessment.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request body must be valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	ev := event.New(req.Source, req.EventType)
	ev.Payload = req.Payload
	if req.ID != "" {
		ev.ID = req.ID
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = req.OccurredAt.UTC()
	}

	ta, err := h.processor.Submit(r.Context(), ev)
	if err != nil {
		var vErr *event.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Event processing failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, ta, started)
}

// DashboardResponse aggregates the live dashboard state in one payload.
type DashboardResponse struct {
	Summary dashboard.Metrics    `json:"summary"`
	Series  []dashboard.Point    `json:"series"`
	Engine  rules.EngineMetrics  `json:"engine"`
	Model   scoring.ModelMetrics `json:"model"`
}

// HandleDashboard returns the rolling dashboard window plus engine and model
// counters.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	respondSuccess(w, http.StatusOK, DashboardResponse{
		Summary: h.dash.Summary(),
		Series:  h.dash.Snapshot(),
		Engine:  h.engine.Metrics(),
		Model:   h.scorer.Metrics(),
	}, started)
}

// HandleRecentAssessments returns the newest archived assessments,
// newest first. The limit query parameter is clamped to the configured
// page bounds.
func (h *Handler) HandleRecentAssessments(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if h.store == nil {
		respondError(w, r, http.StatusServiceUnavailable, "ARCHIVE_ERROR", "Assessment archive is disabled", nil)
		return
	}

	limit := clampPageSize(
		getIntParam(r, "limit", h.cfg.API.DefaultPageSize),
		h.cfg.API.DefaultPageSize,
		h.cfg.API.MaxPageSize,
	)

	assessments, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "ARCHIVE_ERROR", "Failed to read recent assessments", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"count":       len(assessments),
		"assessments": assessments,
	}, started)
}

// HandleAssessmentByID looks up one archived assessment by event ID.
func (h *Handler) HandleAssessmentByID(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if h.store == nil {
		respondError(w, r, http.StatusServiceUnavailable, "ARCHIVE_ERROR", "Assessment archive is disabled", nil)
		return
	}

	eventID := chi.URLParam(r, "id")
	ta, err := h.store.Get(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No assessment for event "+sanitizeLogValue(eventID), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "ARCHIVE_ERROR", "Failed to read assessment", err)
		return
	}

	respondSuccess(w, http.StatusOK, ta, started)
}

// RuleStatus describes one detection rule for the admin endpoints.
type RuleStatus struct {
	Type    rules.RuleType `json:"type"`
	Enabled bool           `json:"enabled"`
}

// HandleListRules returns every registered detection rule and its state.
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	active := h.engine.Rules()
	statuses := make([]RuleStatus, len(active))
	for i, rule := range active {
		statuses[i] = RuleStatus{Type: rule.Type(), Enabled: rule.Enabled()}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"count": len(statuses),
		"rules": statuses,
	}, started)
}

// UpdateRuleRequest carries a partial rule update. Enabled toggles the rule;
// Config is passed to the rule's own Configure and is rule-specific.
type UpdateRuleRequest struct {
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// HandleUpdateRule reconfigures or toggles a single detection rule.
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ruleType := rules.RuleType(chi.URLParam(r, "ruleType"))

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request body must be valid JSON", err)
		return
	}
	if req.Enabled == nil && len(req.Config) == 0 {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Provide enabled and/or config", nil)
		return
	}

	if _, ok := h.engine.GetRule(ruleType); !ok {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Unknown rule: "+sanitizeLogValue(string(ruleType)), nil)
		return
	}

	if len(req.Config) > 0 {
		if err := h.engine.ConfigureRule(ruleType, req.Config); err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule configuration: "+err.Error(), nil)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.engine.SetRuleEnabled(ruleType, *req.Enabled); err != nil {
			respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
			return
		}
	}

	rule, _ := h.engine.GetRule(ruleType)
	h.logger.Info().
		Str("rule", string(ruleType)).
		Bool("enabled", rule.Enabled()).
		Msg("Rule updated")

	respondSuccess(w, http.StatusOK, RuleStatus{Type: rule.Type(), Enabled: rule.Enabled()}, started)
}

// HandleModelMetrics returns the active model description and prediction
// counters.
func (h *Handler) HandleModelMetrics(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	respondSuccess(w, http.StatusOK, h.scorer.Metrics(), started)
}

// HandleRetrain triggers a synchronous model retraining run. A concurrent
// request while one is running is rejected with 409 rather than queued.
// The request body may override the configured training parameters.
func (h *Handler) HandleRetrain(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	trainCfg := scoring.RetrainingConfig{
		SampleCount:  h.cfg.Scoring.SampleCount,
		LearningRate: h.cfg.Scoring.LearningRate,
		Seed:         h.cfg.Scoring.Seed,
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&trainCfg); err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request body must be valid JSON", err)
			return
		}
	}
	if apiErr := validateRequest(&trainCfg); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.scorer.Retrain(r.Context(), trainCfg)
	if err != nil {
		if errors.Is(err, scoring.ErrRetrainingInProgress) {
			metrics.RetrainRuns.WithLabelValues("rejected").Inc()
			respondError(w, r, http.StatusConflict, "RETRAIN_IN_PROGRESS", "A retraining run is already in progress", nil)
			return
		}
		metrics.RecordRetrain("failed", time.Since(started), 0, 0)
		respondError(w, r, http.StatusInternalServerError, "RETRAIN_FAILED", "Model retraining failed", err)
		return
	}

	metrics.RecordRetrain("success", result.TrainingTime, int64(result.ModelVersion), result.Accuracy)
	respondSuccess(w, http.StatusOK, result, started)
}

// HealthResponse reports liveness plus coarse component state.
type HealthResponse struct {
	Status           string `json:"status"`
	ModelAvailable   bool   `json:"model_available"`
	WebSocketClients int    `json:"websocket_clients"`
	ArchiveEnabled   bool   `json:"archive_enabled"`
}

// HandleHealth reports service health. The service is healthy as soon as the
// HTTP listener is up; a missing model degrades scoring but does not fail
// health checks.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	resp := HealthResponse{
		Status:         "ok",
		ModelAvailable: h.scorer.Metrics().Available,
		ArchiveEnabled: h.store != nil,
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.GetClientCount()
	}

	respondSuccess(w, http.StatusOK, resp, started)
}

// HandleNotFound responds with the standard error envelope for unknown
// routes.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
		Error: &models.APIError{
			Code:    "NOT_FOUND",
			Message: "Unknown endpoint",
		},
	})
}
