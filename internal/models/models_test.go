// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package models

import (
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
)

func TestVehiclePosition_DecodeHubPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		speed   NumericString
		heading float64
	}{
		{
			name:    "string fields",
			payload: `{"vehicleGid":"v1","journeyGid":"j1","speed":"42","heading":"90.5","pos":{"lng":11.77,"lat":58.21}}`,
			speed:   "42",
			heading: 90.5,
		},
		{
			name:    "numeric fields",
			payload: `{"vehicleGid":"v1","journeyGid":"j1","speed":42.5,"heading":180,"pos":{"lng":11.77,"lat":58.21}}`,
			speed:   "42.5",
			heading: 180,
		},
		{
			name:    "null heading",
			payload: `{"vehicleGid":"v1","journeyGid":"j1","speed":"0","heading":null,"pos":{"lng":11.77,"lat":58.21}}`,
			speed:   "0",
			heading: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var p VehiclePosition
			if err := json.Unmarshal([]byte(tt.payload), &p); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if p.Key() != "v1" {
				t.Errorf("Key() = %q, want v1", p.Key())
			}
			if p.Speed != tt.speed {
				t.Errorf("Speed = %q, want %q", p.Speed, tt.speed)
			}
			if p.HeadingDegrees() != tt.heading {
				t.Errorf("HeadingDegrees() = %v, want %v", p.HeadingDegrees(), tt.heading)
			}
			if p.Pos.Lng != 11.77 || p.Pos.Lat != 58.21 {
				t.Errorf("Pos = %+v", p.Pos)
			}
		})
	}
}

func TestNumericString_RejectsNonNumbers(t *testing.T) {
	t.Parallel()

	var n NumericString
	if err := json.Unmarshal([]byte(`true`), &n); err == nil {
		t.Error("expected error for boolean value")
	}
}

func TestNumericString_Float(t *testing.T) {
	t.Parallel()

	tests := map[NumericString]float64{
		"":        0,
		"abc":     0,
		"12":      12,
		" 7.25":   7.25,
		"270deg":  270,
		"-3.5e1":  -35,
		".5":      0.5,
		"NaN-ish": 0,
	}
	for in, want := range tests {
		if got := in.Float(); got != want {
			t.Errorf("NumericString(%q).Float() = %v, want %v", in, got, want)
		}
	}
}

func TestToFeatureCollection(t *testing.T) {
	t.Parallel()

	fc := ToFeatureCollection([]VehiclePosition{
		{VehicleGid: "v1", JourneyGid: "j1", Speed: "30", Heading: "45", Pos: LngLat{Lng: 11.7, Lat: 58.2}},
		{VehicleGid: "v2", JourneyGid: "j2", Speed: "0", Heading: "n/a", Pos: LngLat{Lng: 12.0, Lat: 57.7}},
	})

	if fc.Type != "FeatureCollection" {
		t.Errorf("Type = %q", fc.Type)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(fc.Features))
	}
	f := fc.Features[0]
	if f.Geometry.Coordinates != [2]float64{11.7, 58.2} {
		t.Errorf("Coordinates = %v, want [lng lat]", f.Geometry.Coordinates)
	}
	if f.Properties.ID != "v1" || f.Properties.JourneyGid != "j1" || f.Properties.Heading != 45 {
		t.Errorf("Properties = %+v", f.Properties)
	}
	if fc.Features[1].Properties.Heading != 0 {
		t.Errorf("unparsable heading = %v, want 0", fc.Features[1].Properties.Heading)
	}

	data, err := json.Marshal(ToFeatureCollection(nil))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("empty collection = %s", data)
	}
}

func TestToFeedMessage(t *testing.T) {
	t.Parallel()

	now := time.Unix(1760000000, 0)
	feed := ToFeedMessage([]VehiclePosition{
		{VehicleGid: "v1", JourneyGid: "j1", Speed: "36", Heading: "90", Pos: LngLat{Lng: 11.7, Lat: 58.2}},
		{VehicleGid: "", Speed: "10"},
		{VehicleGid: "v3", Speed: "0", Pos: LngLat{Lng: 12, Lat: 57}},
	}, now)

	raw, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("proto.Marshal() error = %v", err)
	}
	var decoded gtfs.FeedMessage
	if err := proto.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("proto.Unmarshal() error = %v", err)
	}

	if decoded.GetHeader().GetTimestamp() != uint64(now.Unix()) {
		t.Errorf("header timestamp = %d", decoded.GetHeader().GetTimestamp())
	}
	if len(decoded.GetEntity()) != 2 {
		t.Fatalf("len(Entity) = %d, want 2", len(decoded.GetEntity()))
	}

	v1 := decoded.GetEntity()[0].GetVehicle()
	if v1.GetVehicle().GetId() != "v1" || v1.GetTrip().GetTripId() != "j1" {
		t.Errorf("entity 0 = %v", v1)
	}
	if got := v1.GetPosition().GetSpeed(); got < 9.99 || got > 10.01 {
		t.Errorf("speed = %v m/s, want 10", got)
	}
	if v1.GetPosition().GetBearing() != 90 {
		t.Errorf("bearing = %v, want 90", v1.GetPosition().GetBearing())
	}
	if decoded.GetEntity()[1].GetVehicle().Trip != nil {
		t.Error("expected no trip descriptor without a journey id")
	}
}
