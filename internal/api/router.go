// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/threatlens/internal/middleware"
)

// Router wires the handlers and middleware into the chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router around the given handler set. A nil mw falls
// back to the secure default middleware configuration.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Applied to ALL routes in order
	r.Use(middleware.RequestID)        // X-Request-ID header plus logging context
	r.Use(chimiddleware.RealIP)        // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)     // Recover from panics
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	r.NotFound(router.handler.HandleNotFound)

	// ========================
	// Health and Metrics
	// ========================
	// Permissive rate limiting so monitoring can poll frequently.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(SecurityHeaders)
		r.Get("/", router.handler.HandleHealth)
	})

	// Prometheus scrape endpoint, no envelope and no rate limit.
	r.Handle("/metrics", promhttp.Handler())

	// ========================
	// Security Event Endpoints
	// ========================
	r.Route("/api/v1/security", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(SecurityHeaders)
		r.Use(middleware.PrometheusMetrics)

		r.Post("/analyze", router.handler.HandleAnalyze)
		r.Get("/dashboard", router.handler.HandleDashboard)

		r.Get("/events/recent", router.handler.HandleRecentAssessments)
		r.Get("/events/{id}", router.handler.HandleAssessmentByID)

		r.Get("/rules", router.handler.HandleListRules)
		r.Patch("/rules/{ruleType}", router.handler.HandleUpdateRule)
	})

	// ========================
	// Model Management Endpoints
	// ========================
	r.Route("/api/v1/ml", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(SecurityHeaders)
		r.Use(middleware.PrometheusMetrics)

		r.Get("/model/metrics", router.handler.HandleModelMetrics)
		r.Post("/model/retrain", router.handler.HandleRetrain)
	})

	// ========================
	// Live Updates
	// ========================
	// The WebSocket endpoint sits outside the rate-limited groups: the
	// handshake is a single request and the hub enforces its own
	// per-client backpressure.
	r.Get("/api/v1/ws", router.handler.HandleWebSocket)

	return r
}
