// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package main is the entry point for the fleetwatch server.

Fleetwatch keeps two streaming hub connections open, one for region of
interest states and one for vehicle positions, and republishes what they
deliver to browsers over a REST API and a WebSocket.

# Application Architecture

	RootSupervisor ("fleetwatch")
	├── AuthSupervisor ("auth-layer")
	│   └── oidc-session (AUTH_MODE=oidc)
	├── StreamingSupervisor ("streaming-layer")
	│   ├── websocket-hub
	│   ├── hub-bridge
	│   └── session-controller
	└── APISupervisor ("api-layer")
	    └── http-server

Initialization order:

 1. Configuration: koanf defaults, config.yaml, environment
 2. Logging: zerolog
 3. Session: static token or OIDC relying party behind a circuit breaker
 4. Streaming client and session controller
 5. WebSocket hub following controller events
 6. Chi router and HTTP server
 7. Supervisor tree

# Configuration

	ROI_HUB_URL=https://hub.example.com/streaming/roi
	POSITION_HUB_URL=https://hub.example.com/streaming/position
	AUTH_MODE=oidc                 # oidc or static
	OIDC_ISSUER_URL=https://id.example.com
	OIDC_CLIENT_ID=fleetwatch
	OIDC_REFRESH_TOKEN=<token>     # optional, logs in at startup
	HTTP_PORT=8090
	LOG_LEVEL=info

See package config for the full list.

# Signal Handling

SIGINT and SIGTERM cancel the tree. The session controller stops both
channels, the hub closes browser connections and the HTTP server drains
in-flight requests within HTTP_SHUTDOWN_TIMEOUT.
*/
package main
