// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/streaming"
)

// Config holds the application configuration.
//
// Loading order (LoadWithKoanf):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/fleetwatch/config.yaml)
//  3. Environment variables listed in envMappings
type Config struct {
	Streaming StreamingConfig `koanf:"streaming"`
	Auth      AuthConfig      `koanf:"auth"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// StreamingConfig configures both hub channels.
type StreamingConfig struct {
	// RoiURL and PositionURL are the hub endpoints. http(s) URLs are dialed
	// as ws(s).
	RoiURL      string `koanf:"roi_url" validate:"required,hub_endpoint"`
	PositionURL string `koanf:"position_url" validate:"required,hub_endpoint"`

	// RetryDelays is the reconnect schedule. The first entry is the delay
	// before the first reconnect attempt.
	// Default: [0s, 2s, 5s, 10s, 20s]
	RetryDelays []time.Duration `koanf:"retry_delays" validate:"min=1,dive,gte=0s"`

	// GiveUpAfterSchedule stops reconnecting once the schedule is used up
	// instead of repeating its last interval.
	// Default: false
	GiveUpAfterSchedule bool `koanf:"give_up_after_schedule"`

	MinTokenValidity  time.Duration `koanf:"min_token_validity" validate:"gte=0s"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout" validate:"gt=0s"`
	KeepAliveInterval time.Duration `koanf:"keepalive_interval" validate:"gt=0s"`
	ServerTimeout     time.Duration `koanf:"server_timeout" validate:"gt=0s"`
	StopTimeout       time.Duration `koanf:"stop_timeout" validate:"gt=0s"`

	// AggregateMode is "all" (connected only while both channels are) or
	// "last" (the most recent channel event wins).
	// Default: all
	AggregateMode string `koanf:"aggregate_mode" validate:"oneof=all last"`
}

// AuthConfig selects and configures the credential source.
type AuthConfig struct {
	// Mode is "oidc" (refreshable tokens) or "static" (fixed bearer token).
	Mode string `koanf:"mode" validate:"oneof=oidc static"`

	// StaticToken is the bearer token for static mode. Empty starts
	// unauthenticated until POST /api/session.
	StaticToken string `koanf:"static_token"`

	OIDC           OIDCConfig    `koanf:"oidc"`
	RefreshBreaker BreakerConfig `koanf:"refresh_breaker"`
}

// OIDCConfig configures token refresh against an OpenID provider.
type OIDCConfig struct {
	IssuerURL    string   `koanf:"issuer_url"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	Scopes       []string `koanf:"scopes"`

	// RefreshToken logs in at startup when set.
	RefreshToken string `koanf:"refresh_token"`

	// ProactiveRefresh refreshes this long before the access token
	// expires. Zero disables proactive refresh.
	// Default: 30s
	ProactiveRefresh time.Duration `koanf:"proactive_refresh" validate:"gte=0s"`

	RefreshTimeout time.Duration `koanf:"refresh_timeout" validate:"gt=0s"`
}

// BreakerConfig configures the circuit breaker in front of token refresh.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval" validate:"gte=0s"`
	Timeout          time.Duration `koanf:"timeout" validate:"gte=0s"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0s"`
}

// SecurityConfig holds CORS and rate limiting for the HTTP API.
type SecurityConfig struct {
	// CORSOrigins also gates browser WebSocket origins. "*" allows any.
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests" validate:"gte=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0s"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller adds file and line to each entry.
	Caller bool `koanf:"caller"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RetryPolicy builds the reconnect schedule.
func (s StreamingConfig) RetryPolicy() *streaming.ScheduleRetryPolicy {
	delays := make([]time.Duration, len(s.RetryDelays))
	copy(delays, s.RetryDelays)
	return &streaming.ScheduleRetryPolicy{
		Delays:     delays,
		RepeatLast: !s.GiveUpAfterSchedule,
	}
}

// ClientConfig builds the streaming client configuration.
func (s StreamingConfig) ClientConfig() streaming.ClientConfig {
	return streaming.ClientConfig{
		RoiURL:      s.RoiURL,
		PositionURL: s.PositionURL,
		Channel: streaming.ChannelConfig{
			MinTokenValidity:  s.MinTokenValidity,
			HandshakeTimeout:  s.HandshakeTimeout,
			KeepAliveInterval: s.KeepAliveInterval,
			ServerTimeout:     s.ServerTimeout,
			StopTimeout:       s.StopTimeout,
			RetryPolicy:       s.RetryPolicy(),
		},
		AggregateMode: streaming.AggregateMode(s.AggregateMode),
	}
}

// OIDCSessionConfig builds the refresh session configuration.
func (o OIDCConfig) OIDCSessionConfig() auth.OIDCSessionConfig {
	return auth.OIDCSessionConfig{
		ProactiveLead:  o.ProactiveRefresh,
		RefreshTimeout: o.RefreshTimeout,
	}
}

// RefresherConfig builds the relying party configuration.
func (o OIDCConfig) RefresherConfig() auth.OIDCConfig {
	return auth.OIDCConfig{
		IssuerURL:    o.IssuerURL,
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Scopes:       o.Scopes,
	}
}

// BreakerSettings builds the refresh breaker configuration.
func (b BreakerConfig) BreakerSettings() auth.BreakerConfig {
	return auth.BreakerConfig{
		Name:             "oidc-refresh",
		MaxRequests:      b.MaxRequests,
		Interval:         b.Interval,
		Timeout:          b.Timeout,
		FailureThreshold: b.FailureThreshold,
	}
}

// LoggingSettings builds the logging configuration.
func (l LoggingConfig) LoggingSettings() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// String returns a log-safe summary without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("streaming(roi=%s position=%s mode=%s) auth(mode=%s) server(%s)",
		c.Streaming.RoiURL, c.Streaming.PositionURL, c.Streaming.AggregateMode,
		c.Auth.Mode, c.Server.Addr())
}
