// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"

	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/models"
)

// Content types for the position exports.
const (
	ContentTypeGeoJSON  = "application/geo+json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// RoiStates lists the latest state of every region of interest.
func (h *Handler) RoiStates(w http.ResponseWriter, r *http.Request) {
	items, version := h.live.Roi().SnapshotVersion()
	if notModified(w, r, version) {
		return
	}
	NewResponseWriter(w, r).SuccessWithMeta(items, listMeta(len(items), version))
}

// RoiState returns one region of interest by id.
func (h *Handler) RoiState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, ok := h.live.Roi().Get(id)
	if !ok {
		NewResponseWriter(w, r).NotFound("Unknown region of interest: " + id)
		return
	}
	NewResponseWriter(w, r).Success(item)
}

// Positions lists the latest position of every vehicle.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	items, version := h.live.Positions().SnapshotVersion()
	if notModified(w, r, version) {
		return
	}
	NewResponseWriter(w, r).SuccessWithMeta(items, listMeta(len(items), version))
}

// Position returns one vehicle by gid.
func (h *Handler) Position(w http.ResponseWriter, r *http.Request) {
	gid := chi.URLParam(r, "vehicleGid")
	item, ok := h.live.Positions().Get(gid)
	if !ok {
		NewResponseWriter(w, r).NotFound("Unknown vehicle: " + gid)
		return
	}
	NewResponseWriter(w, r).Success(item)
}

// PositionsGeoJSON returns the positions as a bare GeoJSON
// FeatureCollection for map layers.
func (h *Handler) PositionsGeoJSON(w http.ResponseWriter, r *http.Request) {
	items, version := h.live.Positions().SnapshotVersion()
	if notModified(w, r, version) {
		return
	}

	body, err := h.responses.Get("geojson", version, func() ([]byte, error) {
		return json.Marshal(models.ToFeatureCollection(items))
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode GeoJSON")
		NewResponseWriter(w, r).InternalError("Failed to build GeoJSON")
		return
	}
	writeBody(w, r, ContentTypeGeoJSON, body)
}

// PositionsProtobuf returns the positions as a GTFS-Realtime FeedMessage.
// The header timestamp is the time the feed was rendered for this version.
func (h *Handler) PositionsProtobuf(w http.ResponseWriter, r *http.Request) {
	items, version := h.live.Positions().SnapshotVersion()
	if notModified(w, r, version) {
		return
	}

	body, err := h.responses.Get("gtfs-rt", version, func() ([]byte, error) {
		return proto.Marshal(models.ToFeedMessage(items, h.now()))
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal GTFS-Realtime feed")
		NewResponseWriter(w, r).InternalError("Failed to build feed")
		return
	}
	writeBody(w, r, ContentTypeProtobuf, body)
}

func writeBody(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(body); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Str("content_type", contentType).Msg("Failed to write response body")
	}
}
