// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

// State is the connection state of a Channel.
//
//	Idle -> Connecting -> Connected
//	Connected -> Reconnecting -> Connected
//	Connected | Reconnecting -> Closed
type State int

// Channel states.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionEvent reports a connectivity change. Channel is the channel name,
// or AggregateChannel for the client-wide signal.
type ConnectionEvent struct {
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
	State     State  `json:"state"`
}
