// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package websocket republishes live streaming state to browser clients.

It uses the gorilla/websocket library with a hub-client architecture: the Hub
owns the client set and fans messages out; each Client runs a read and a write
goroutine.

Message Types:

  - snapshot: sent once on connect (connected, roi, positions)
  - roi_state: one ROI state change
  - position: one vehicle position update
  - connection: the aggregate streaming connection flag changed
  - reset: the session ended and all state was cleared
  - ping / pong: application keep-alive initiated by the browser

Usage:

	hub := websocket.NewHub(websocket.ControllerSnapshot(controller))
	hub.Follow(controller.Events())
	go hub.RunWithContext(ctx)

Slow clients whose 256-message buffer fills are disconnected instead of
blocking the broadcast.
*/
package websocket
