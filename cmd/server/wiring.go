// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package main

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fleetwatch/internal/api"
	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/config"
	"github.com/tomtom215/fleetwatch/internal/logging"
)

// buildSession creates the credential session for the configured auth mode.
// The returned service is non-nil when the session needs supervision.
func buildSession(ctx context.Context, cfg *config.Config) (auth.Session, suture.Service, error) {
	switch cfg.Auth.Mode {
	case "static":
		if cfg.Auth.StaticToken == "" {
			logging.Info().Msg("No static token configured; waiting for POST /api/session")
		}
		return auth.NewStaticSession(cfg.Auth.StaticToken), nil, nil

	case "oidc":
		refresher, err := auth.NewZitadelRefresher(ctx, cfg.Auth.OIDC.RefresherConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("oidc setup: %w", err)
		}
		guarded := auth.NewBreakerRefresher(refresher, cfg.Auth.RefreshBreaker.BreakerSettings())
		sess := auth.NewOIDCSession(guarded, cfg.Auth.OIDC.OIDCSessionConfig())
		loginWithRefreshToken(ctx, sess, guarded, cfg.Auth.OIDC.RefreshToken)
		return sess, sess, nil

	default:
		return nil, nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// loginWithRefreshToken exchanges a configured refresh token for the first
// token pair. Failure leaves the session unauthenticated.
func loginWithRefreshToken(ctx context.Context, sess auth.Session, refresher auth.TokenRefresher, refreshToken string) {
	if refreshToken == "" {
		logging.Info().Msg("No refresh token configured; waiting for POST /api/session")
		return
	}
	tok, err := refresher.Refresh(ctx, refreshToken)
	if err != nil {
		logging.Warn().Err(err).Msg("Initial token exchange failed; starting unauthenticated")
		return
	}
	if err := sess.Login(tok); err != nil {
		logging.Warn().Err(err).Msg("Initial login failed; starting unauthenticated")
		return
	}
	logging.Info().Time("expiry", tok.Expiry).Msg("Logged in with configured refresh token")
}

func middlewareConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mc := api.DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = append([]string(nil), cfg.Security.CORSOrigins...)
	mc.RateLimitRequests = cfg.Security.RateLimitReqs
	mc.RateLimitWindow = cfg.Security.RateLimitWindow
	mc.RateLimitDisabled = cfg.Security.RateLimitDisabled
	return mc
}
