// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package services provides suture.Service wrappers for fleetwatch components
that do not already expose a Serve(ctx) method.

# Available Services

HTTP Server (HTTPServerService):
  - Binds the listen address itself and serves an *http.Server on it
  - Graceful shutdown with a configurable drain timeout
  - Addr reports the bound address, which matters when the port is 0

WebSocket Hub (WebSocketHubService):
  - Runs websocket.Hub.RunWithContext
  - Browser clients are closed when the hub stops

Subscriptions (SubscriptionService):
  - Holds an event subscription for the lifetime of the service
  - Used to bridge session controller events into the hub

The session controller and the OIDC session implement suture.Service
directly and are added to the tree without a wrapper.
*/
package services
