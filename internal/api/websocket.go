// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package api

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/threatlens/internal/websocket"
)

// HandleWebSocket upgrades the connection and registers the client with the
// hub for live THREAT_UPDATE, ANOMALY_DETECTED and MODEL_METRICS pushes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, "WEBSOCKET_UNAVAILABLE", "Live updates are not available", nil)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()

	h.logger.Debug().
		Uint64("client_id", client.ID()).
		Str("remote", sanitizeLogValue(r.RemoteAddr)).
		Msg("WebSocket client connected")
}

func (h *Handler) upgrader() *gorillaws.Upgrader {
	return &gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
}

// checkWebSocketOrigin validates the Origin header against the configured
// CORS origins. Browsers always send Origin on WebSocket handshakes, so an
// absent header means a non-browser client; those are rejected unless a
// wildcard origin is configured.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" {
			return true
		}
		if origin != "" && allowed == origin {
			return true
		}
	}

	h.logger.Warn().
		Str("origin", sanitizeLogValue(origin)).
		Msg("WebSocket origin rejected")
	return false
}
