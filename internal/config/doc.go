// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package config loads fleetwatch configuration with koanf v2.

Sources, lowest priority first:
  - Built-in defaults (defaultConfig)
  - YAML file at CONFIG_PATH, ./config.yaml or /etc/fleetwatch/config.yaml
  - Environment variables

Example config.yaml:

	streaming:
	  roi_url: https://hub.example.com/streaming/roi
	  position_url: https://hub.example.com/streaming/position
	  retry_delays: [0s, 2s, 5s, 10s, 20s]
	  aggregate_mode: all
	auth:
	  mode: oidc
	  oidc:
	    issuer_url: https://id.example.com/realms/fleet
	    client_id: fleetwatch
	server:
	  port: 8090
	security:
	  cors_origins: [https://map.example.com]

Environment variables:

Streaming:
  - ROI_HUB_URL, POSITION_HUB_URL: hub endpoints
  - STREAM_RETRY_DELAYS: comma-separated durations (default: 0s,2s,5s,10s,20s)
  - STREAM_GIVE_UP: stop reconnecting after the schedule (default: false)
  - STREAM_MIN_TOKEN_VALIDITY (default: 60s)
  - STREAM_HANDSHAKE_TIMEOUT (default: 10s)
  - STREAM_KEEPALIVE_INTERVAL (default: 15s)
  - STREAM_SERVER_TIMEOUT (default: 30s)
  - STREAM_STOP_TIMEOUT (default: 5s)
  - STREAM_AGGREGATE_MODE: all or last (default: all)

Authentication:
  - AUTH_MODE: oidc or static (default: static)
  - AUTH_STATIC_TOKEN: bearer token for static mode
  - OIDC_ISSUER_URL, OIDC_CLIENT_ID, OIDC_CLIENT_SECRET, OIDC_SCOPES
  - OIDC_REFRESH_TOKEN: logs in at startup
  - OIDC_PROACTIVE_REFRESH (default: 30s), OIDC_REFRESH_TIMEOUT (default: 10s)
  - OIDC_BREAKER_MAX_REQUESTS, OIDC_BREAKER_INTERVAL, OIDC_BREAKER_TIMEOUT,
    OIDC_BREAKER_FAILURES

HTTP server and security:
  - HTTP_HOST (default: 0.0.0.0), HTTP_PORT (default: 8090)
  - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT
  - CORS_ORIGINS: comma-separated, also used for WebSocket origins
  - RATE_LIMIT_REQUESTS (default: 100), RATE_LIMIT_WINDOW (default: 1m),
    DISABLE_RATE_LIMIT

Logging:
  - LOG_LEVEL (default: info), LOG_FORMAT (default: json), LOG_CALLER

Validation combines go-playground/validator struct tags with cross-field
checks such as server_timeout exceeding keepalive_interval.
*/
package config
