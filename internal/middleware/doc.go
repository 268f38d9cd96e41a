// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package middleware provides HTTP middleware for the fleetwatch API.

All middleware has the chi signature func(http.Handler) http.Handler:

  - RequestID: honours or assigns X-Request-ID and seeds the logging context
  - PrometheusMetrics: records fleetwatch_api_requests_total and latency,
    labelled by chi route pattern to bound cardinality
  - Compression: gzip for clients that accept it, skipped for WebSocket
    upgrades and protobuf bodies

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.With(middleware.Compression).Get("/api/positions", h.Positions)

Response writers are wrapped with chi's WrapResponseWriter so the WebSocket
upgrade can still hijack the connection.
*/
package middleware
