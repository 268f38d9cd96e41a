// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package websocket

import (
	"github.com/tomtom215/fleetwatch/internal/events"
	"github.com/tomtom215/fleetwatch/internal/models"
	"github.com/tomtom215/fleetwatch/internal/session"
)

// ConnectionData is the payload of connection messages.
type ConnectionData struct {
	Connected bool `json:"connected"`
}

// SnapshotData is the first message a browser receives.
type SnapshotData struct {
	Connected bool                     `json:"connected"`
	Roi       []models.RoiState        `json:"roi"`
	Positions []models.VehiclePosition `json:"positions"`
}

// EventMessage converts a controller event to its browser message.
func EventMessage(ev session.Event) Message {
	switch ev.Kind {
	case session.EventRoiState:
		return Message{Type: MessageTypeRoiState, Data: ev.Roi}
	case session.EventPosition:
		return Message{Type: MessageTypePosition, Data: ev.Position}
	case session.EventConnection:
		return Message{Type: MessageTypeConnection, Data: ConnectionData{Connected: ev.Connected}}
	default:
		return Message{Type: MessageTypeReset}
	}
}

// Follow republishes controller events to every browser client.
func (h *Hub) Follow(r *events.Router[session.Event]) (unsubscribe func()) {
	return r.Subscribe(func(ev session.Event) {
		msg := EventMessage(ev)
		h.BroadcastJSON(msg.Type, msg.Data)
	})
}

// ControllerSnapshot returns a SnapshotFunc reading the controller's stores.
func ControllerSnapshot(c *session.Controller) SnapshotFunc {
	return func() Message {
		roi := c.Roi().Snapshot()
		positions := c.Positions().Snapshot()
		if roi == nil {
			roi = []models.RoiState{}
		}
		if positions == nil {
			positions = []models.VehiclePosition{}
		}
		return Message{
			Type: MessageTypeSnapshot,
			Data: SnapshotData{
				Connected: c.Connected(),
				Roi:       roi,
				Positions: positions,
			},
		}
	}
}
