// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/fleetwatch/internal/streaming"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Uptime        float64 `json:"uptime"`
	SessionActive bool    `json:"session_active"`
	Connected     bool    `json:"connected"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Mode       streaming.AggregateMode    `json:"aggregate_mode"`
	Connected  bool                       `json:"connected"`
	Generation uint64                     `json:"generation"`
	Channels   map[string]streaming.State `json:"channels"`
	Session    SessionResponse            `json:"session"`
	Stores     map[string]int             `json:"stores"`
	WebSockets int                        `json:"websocket_clients"`
}

// Health reports liveness. Streaming being down while a session is active
// degrades the status but still answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.session.State()
	connected := h.live.Connected()

	status := "healthy"
	if state.Active() && !connected {
		status = "degraded"
	}

	NewResponseWriter(w, r).Success(HealthResponse{
		Status:        status,
		Uptime:        time.Since(h.startTime).Seconds(),
		SessionActive: state.Active(),
		Connected:     connected,
	})
}

// HealthReady answers 503 while an active session has no live connection.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	state := h.session.State()
	ready := !state.Active() || h.live.Connected()

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).StatusWithData(code, map[string]interface{}{
		"ready":          ready,
		"session_active": state.Active(),
	})
}

// Status reports channel states, aggregation mode and store sizes.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.wsHub != nil {
		clients = h.wsHub.GetClientCount()
	}

	NewResponseWriter(w, r).Success(StatusResponse{
		Mode:       h.streams.Mode(),
		Connected:  h.live.Connected(),
		Generation: h.live.Generation(),
		Channels:   h.streams.States(),
		Session:    h.sessionResponse(),
		Stores: map[string]int{
			"roi":       h.live.Roi().Len(),
			"positions": h.live.Positions().Len(),
		},
		WebSockets: clients,
	})
}
