// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// OIDCSessionConfig configures an OIDCSession.
type OIDCSessionConfig struct {
	// ProactiveLead makes Serve refresh this long before the access token
	// expires. Zero disables proactive refresh.
	ProactiveLead time.Duration

	// RefreshTimeout bounds one refresh call. Default: 10s
	RefreshTimeout time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// OIDCSession holds an OIDC token pair and refreshes it on demand.
type OIDCSession struct {
	sessionCore

	refresher TokenRefresher
	cfg       OIDCSessionConfig
	flight    singleflight.Group

	// changed wakes the proactive refresh loop after a login or refresh.
	changed chan struct{}
}

// NewOIDCSession creates an unauthenticated session that refreshes through
// refresher. Call Login to install the initial tokens.
func NewOIDCSession(refresher TokenRefresher, cfg OIDCSessionConfig) *OIDCSession {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	s := &OIDCSession{
		refresher: refresher,
		cfg:       cfg,
		changed:   make(chan struct{}, 1),
	}
	s.init("oidc-session", cfg.Now)
	return s
}

// Login installs a token pair obtained from the identity provider.
func (s *OIDCSession) Login(tok Token) error {
	if tok.AccessToken == "" {
		return ErrEmptyToken
	}
	s.install(tok, true)
	s.notify()
	return nil
}

// Logout discards the tokens.
func (s *OIDCSession) Logout() {
	s.install(Token{}, false)
	s.notify()
}

func (s *OIDCSession) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// EnsureFresh refreshes the access token when it is valid for less than
// minValidity. Concurrent callers share a single refresh.
func (s *OIDCSession) EnsureFresh(ctx context.Context, minValidity time.Duration) bool {
	tok, authenticated := s.snapshot()
	if !authenticated || tok.AccessToken == "" {
		metrics.RecordCredentialRefresh("unauthenticated")
		return false
	}
	if validFor(tok.Expiry, s.now(), minValidity) {
		metrics.RecordCredentialRefresh("fresh")
		return true
	}
	if tok.RefreshToken == "" {
		metrics.RecordCredentialRefresh("failed")
		logging.Warn().Msg("Access token expires soon and no refresh token is held")
		return false
	}

	// The shared refresh must not be cancelled by the first caller's context.
	result := s.flight.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
		defer cancel()
		return nil, s.refresh(rctx, tok.RefreshToken)
	})

	select {
	case <-ctx.Done():
		return false
	case r := <-result:
		if r.Err != nil {
			return false
		}
	}

	tok, authenticated = s.snapshot()
	return authenticated && validFor(tok.Expiry, s.now(), minValidity)
}

func (s *OIDCSession) refresh(ctx context.Context, refreshToken string) error {
	next, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			metrics.RecordCredentialRefresh("rejected")
			logging.Warn().Err(err).Msg("Refresh token rejected, ending session")
			s.Logout()
			return err
		}
		metrics.RecordCredentialRefresh("failed")
		logging.Error().Err(err).Msg("Failed to refresh token")
		return err
	}

	// A logout while the refresh was in flight wins.
	if !s.IsSessionAuthenticated() {
		return errors.New("session ended during refresh")
	}
	s.install(next, true)
	s.notify()
	metrics.RecordCredentialRefresh("refreshed")
	logging.Debug().Time("expiry", s.Expiry()).Msg("Token refreshed")
	return nil
}

// Serve refreshes the token ProactiveLead before it expires, mirroring an
// on-expiry hook, so idle channels reconnect with a valid token. It runs
// until ctx is cancelled.
func (s *OIDCSession) Serve(ctx context.Context) error {
	if s.cfg.ProactiveLead <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		wait := time.Duration(-1)
		if exp := s.Expiry(); s.IsSessionAuthenticated() && !exp.IsZero() {
			wait = exp.Sub(s.now()) - s.cfg.ProactiveLead
			if wait < 0 {
				wait = 0
			}
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if wait >= 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		err := s.waitAndRefresh(ctx, fire)
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return err
		}
	}
}

func (s *OIDCSession) waitAndRefresh(ctx context.Context, fire <-chan time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.changed:
		return nil
	case <-fire:
	}

	if s.EnsureFresh(ctx, s.cfg.ProactiveLead) {
		return nil
	}
	// Back off instead of spinning on a failing provider.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.changed:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// String implements fmt.Stringer for suture.
func (s *OIDCSession) String() string {
	return "oidc-session"
}
