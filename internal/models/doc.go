// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package models defines the domain values carried by the streaming hubs and
// their projections for map consumers.
//
// Wire names follow the hub payloads exactly:
//
//	RoiState         {"id": "...", "state": "..."}
//	VehiclePosition  {"vehicleGid", "journeyGid", "speed", "heading", "pos": {"lng", "lat"}}
//
// Identity: RoiState by ID, VehiclePosition by VehicleGid. Speed and heading
// arrive as strings; NumericString also accepts bare JSON numbers so that a
// hub serializing them as numbers still decodes.
//
// Projections:
//
//   - ToFeatureCollection builds the GeoJSON layer the map renders (heading
//     parsed as a float, 0 when unparsable).
//   - ToFeedMessage builds a GTFS-Realtime VehiclePositions feed.
package models
