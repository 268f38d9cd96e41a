// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/cache"
	"github.com/tomtom215/fleetwatch/internal/models"
	"github.com/tomtom215/fleetwatch/internal/store"
	"github.com/tomtom215/fleetwatch/internal/streaming"
	ws "github.com/tomtom215/fleetwatch/internal/websocket"
)

// LiveState exposes the session-scoped stores. *session.Controller
// implements it.
type LiveState interface {
	Roi() *store.Keyed[string, models.RoiState]
	Positions() *store.Keyed[string, models.VehiclePosition]
	Connected() bool
	Generation() uint64
}

// StreamStatus reports per-channel state. *streaming.Client implements it.
type StreamStatus interface {
	States() map[string]streaming.State
	Mode() streaming.AggregateMode
}

// SessionManager installs and discards credentials.
type SessionManager interface {
	State() auth.SessionState
	Login(tok auth.Token) error
	Logout()
}

// Handler serves the REST and WebSocket endpoints.
type Handler struct {
	live      LiveState
	streams   StreamStatus
	session   SessionManager
	wsHub     *ws.Hub
	origins   []string
	responses *cache.Versioned
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates a Handler. wsHub may be nil, in which case /ws answers
// 503. origins are the allowed WebSocket origins; "*" allows any.
func NewHandler(live LiveState, streams StreamStatus, sess SessionManager, wsHub *ws.Hub, origins []string) *Handler {
	return &Handler{
		live:      live,
		streams:   streams,
		session:   sess,
		wsHub:     wsHub,
		origins:   origins,
		responses: cache.NewVersioned(),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// notModified sets a version ETag and reports whether the client already
// holds that version.
func notModified(w http.ResponseWriter, r *http.Request, version uint64) bool {
	etag := `"` + strconv.FormatUint(version, 10) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func listMeta(count int, version uint64) *APIMeta {
	return &APIMeta{Count: &count, Version: &version}
}
