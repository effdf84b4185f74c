// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package api implements the HTTP surface: event ingestion, dashboard and
// archive queries, model management, rule administration, and the WebSocket
// upgrade endpoint for live updates.
//
// The router is chi-based with production middleware from the chi ecosystem
// (go-chi/cors for CORS, go-chi/httprate for rate limiting). All responses
// use the models.APIResponse envelope.
package api
