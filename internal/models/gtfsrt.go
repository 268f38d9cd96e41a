// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package models

import (
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// kmhToMetersPerSecond converts hub speeds (km/h) to GTFS-RT speeds (m/s).
const kmhToMetersPerSecond = 1 / 3.6

// ToFeedMessage builds a full-dataset GTFS-Realtime VehiclePositions feed.
// Positions without a vehicle id are skipped.
func ToFeedMessage(positions []VehiclePosition, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(positions)),
	}

	for _, p := range positions {
		if p.VehicleGid == "" {
			continue
		}
		vp := &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(p.VehicleGid)},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(p.Pos.Lat)),
				Longitude: proto.Float32(float32(p.Pos.Lng)),
				Bearing:   proto.Float32(float32(p.HeadingDegrees())),
				Speed:     proto.Float32(float32(p.Speed.Float() * kmhToMetersPerSecond)),
			},
		}
		if p.JourneyGid != "" {
			vp.Trip = &gtfs.TripDescriptor{TripId: proto.String(p.JourneyGid)}
		}
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(p.VehicleGid),
			Vehicle: vp,
		})
	}
	return feed
}
