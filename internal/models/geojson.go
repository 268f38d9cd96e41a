// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package models

// FeatureCollection is a GeoJSON FeatureCollection of vehicle points.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON Feature with a Point geometry.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   PointGeometry     `json:"geometry"`
	Properties VehicleProperties `json:"properties"`
}

// PointGeometry holds [lng, lat] coordinates.
type PointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// VehicleProperties are the per-feature attributes the map layers use for
// labels, popups and icon rotation.
type VehicleProperties struct {
	ID         string        `json:"id"`
	JourneyGid string        `json:"journeyGid"`
	Speed      NumericString `json:"speed"`
	Heading    float64       `json:"heading"`
}

// ToFeatureCollection projects positions into a GeoJSON layer, preserving order.
func ToFeatureCollection(positions []VehiclePosition) FeatureCollection {
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(positions)),
	}
	for _, p := range positions {
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: PointGeometry{
				Type:        "Point",
				Coordinates: [2]float64{p.Pos.Lng, p.Pos.Lat},
			},
			Properties: VehicleProperties{
				ID:         p.VehicleGid,
				JourneyGid: p.JourneyGid,
				Speed:      p.Speed,
				Heading:    p.HeadingDegrees(),
			},
		})
	}
	return fc
}
