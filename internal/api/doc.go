// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package api serves the fleetwatch HTTP surface on a chi router.

Routes:

	GET    /api/health               liveness, degraded while an active session has no connection
	GET    /api/health/ready         503 while an active session has no connection
	GET    /api/status               channel states, aggregation mode, store sizes
	GET    /api/roi                  latest state per region of interest
	GET    /api/roi/{id}             one region of interest
	GET    /api/positions            latest position per vehicle
	GET    /api/positions/{gid}      one vehicle
	GET    /api/positions.geojson    positions as a GeoJSON FeatureCollection
	GET    /api/positions.pb         positions as a GTFS-Realtime FeedMessage
	GET    /api/session              session state
	POST   /api/session              install tokens (login)
	DELETE /api/session              discard tokens (logout)
	GET    /ws                       browser WebSocket: snapshot, then live events
	GET    /metrics                  Prometheus

JSON endpoints answer with the APIResponse envelope. List endpoints carry a
store-version ETag and honour If-None-Match. /api/session and /ws have their
own go-chi/httprate budgets.
*/
package api
