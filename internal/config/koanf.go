// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fleetwatch/config.yaml",
	"/etc/fleetwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Streaming: StreamingConfig{
			RoiURL:              "https://localhost:8086/streaming/roi",
			PositionURL:         "https://localhost:8086/streaming/position",
			RetryDelays:         []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second},
			GiveUpAfterSchedule: false,
			MinTokenValidity:    60 * time.Second,
			HandshakeTimeout:    10 * time.Second,
			KeepAliveInterval:   15 * time.Second,
			ServerTimeout:       30 * time.Second,
			StopTimeout:         5 * time.Second,
			AggregateMode:       "all",
		},
		Auth: AuthConfig{
			Mode: "static",
			OIDC: OIDCConfig{
				Scopes:           []string{"openid", "profile", "email"},
				ProactiveRefresh: 30 * time.Second,
				RefreshTimeout:   10 * time.Second,
			},
			RefreshBreaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 3,
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // WebSocket connections outlive any write timeout
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads defaults, then the optional YAML file, then
// environment variables, and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"streaming.retry_delays",
	"auth.oidc.scopes",
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variables (lowercased) to config paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"roi_hub_url":               "streaming.roi_url",
	"position_hub_url":          "streaming.position_url",
	"stream_retry_delays":       "streaming.retry_delays",
	"stream_give_up":            "streaming.give_up_after_schedule",
	"stream_min_token_validity": "streaming.min_token_validity",
	"stream_handshake_timeout":  "streaming.handshake_timeout",
	"stream_keepalive_interval": "streaming.keepalive_interval",
	"stream_server_timeout":     "streaming.server_timeout",
	"stream_stop_timeout":       "streaming.stop_timeout",
	"stream_aggregate_mode":     "streaming.aggregate_mode",
	"auth_mode":                 "auth.mode",
	"auth_static_token":         "auth.static_token",
	"oidc_issuer_url":           "auth.oidc.issuer_url",
	"oidc_client_id":            "auth.oidc.client_id",
	"oidc_client_secret":        "auth.oidc.client_secret",
	"oidc_scopes":               "auth.oidc.scopes",
	"oidc_refresh_token":        "auth.oidc.refresh_token",
	"oidc_proactive_refresh":    "auth.oidc.proactive_refresh",
	"oidc_refresh_timeout":      "auth.oidc.refresh_timeout",
	"oidc_breaker_max_requests": "auth.refresh_breaker.max_requests",
	"oidc_breaker_interval":     "auth.refresh_breaker.interval",
	"oidc_breaker_timeout":      "auth.refresh_breaker.timeout",
	"oidc_breaker_failures":     "auth.refresh_breaker.failure_threshold",
	"http_host":                 "server.host",
	"http_port":                 "server.port",
	"http_read_timeout":         "server.read_timeout",
	"http_write_timeout":        "server.write_timeout",
	"http_idle_timeout":         "server.idle_timeout",
	"http_shutdown_timeout":     "server.shutdown_timeout",
	"cors_origins":              "security.cors_origins",
	"rate_limit_requests":       "security.rate_limit_requests",
	"rate_limit_window":         "security.rate_limit_window",
	"disable_rate_limit":        "security.rate_limit_disabled",
	"log_level":                 "logging.level",
	"log_format":                "logging.format",
	"log_caller":                "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
