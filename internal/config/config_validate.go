// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package config

import (
	"fmt"
	"net/url"

	"github.com/tomtom215/fleetwatch/internal/validation"
)

// Validate runs the struct tag rules, then the cross-field checks.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateStreaming(); err != nil {
		return err
	}
	return c.validateAuth()
}

func (c *Config) validateStreaming() error {
	s := c.Streaming
	if s.ServerTimeout <= s.KeepAliveInterval {
		return fmt.Errorf("streaming.server_timeout (%v) must exceed streaming.keepalive_interval (%v)",
			s.ServerTimeout, s.KeepAliveInterval)
	}
	if s.HandshakeTimeout > s.ServerTimeout {
		return fmt.Errorf("streaming.handshake_timeout (%v) must not exceed streaming.server_timeout (%v)",
			s.HandshakeTimeout, s.ServerTimeout)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.Mode != "oidc" {
		return nil
	}

	o := c.Auth.OIDC
	if o.IssuerURL == "" {
		return fmt.Errorf("auth.oidc.issuer_url is required when auth.mode=oidc")
	}
	u, err := url.Parse(o.IssuerURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("auth.oidc.issuer_url must be an absolute http(s) URL: %q", o.IssuerURL)
	}
	if o.ClientID == "" {
		return fmt.Errorf("auth.oidc.client_id is required when auth.mode=oidc")
	}
	return nil
}

// ShouldWarnAboutCORS reports a wildcard CORS origin, which also opens the
// browser WebSocket to any site.
func (c *Config) ShouldWarnAboutCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
