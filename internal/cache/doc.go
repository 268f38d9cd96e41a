// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package cache keeps encoded API responses for the current store version.

The position exports (GeoJSON and GTFS-Realtime) serialize every vehicle on
each request. Between two position updates the bytes are identical, so a
Versioned cache keeps one rendering per format and reuses it until the
store version moves.

	c := cache.NewVersioned()
	body, err := c.Get("geojson", positions.Version(), func() ([]byte, error) {
	    return json.Marshal(models.ToFeatureCollection(positions.Snapshot()))
	})

Read the version before taking the snapshot. A rendering can then only be
newer than its key, and the next version change replaces it.

Concurrent misses for the same format and version share one render
(golang.org/x/sync/singleflight).
*/
package cache
