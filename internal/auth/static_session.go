// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package auth

import (
	"context"
	"time"

	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// StaticSession serves a fixed bearer token. It cannot refresh: once the
// token is within minValidity of its exp claim EnsureFresh reports false.
type StaticSession struct {
	sessionCore
}

// NewStaticSession creates a session holding token. An empty token yields an
// unauthenticated session that can be logged in later.
func NewStaticSession(token string) *StaticSession {
	return newStaticSession(token, nil)
}

func newStaticSession(token string, now func() time.Time) *StaticSession {
	s := &StaticSession{}
	s.init("static-session", now)
	if token != "" {
		s.install(Token{AccessToken: token}, true)
	}
	return s
}

// EnsureFresh reports whether the token is valid for at least minValidity.
func (s *StaticSession) EnsureFresh(_ context.Context, minValidity time.Duration) bool {
	tok, authenticated := s.snapshot()
	if !authenticated || tok.AccessToken == "" {
		metrics.RecordCredentialRefresh("unauthenticated")
		return false
	}
	if validFor(tok.Expiry, s.now(), minValidity) {
		metrics.RecordCredentialRefresh("fresh")
		return true
	}
	metrics.RecordCredentialRefresh("failed")
	logging.Warn().
		Time("expiry", tok.Expiry).
		Dur("min_validity", minValidity).
		Msg("Static token expires too soon and cannot be refreshed")
	return false
}

// Login replaces the static token.
func (s *StaticSession) Login(tok Token) error {
	if tok.AccessToken == "" {
		return ErrEmptyToken
	}
	s.install(Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, true)
	return nil
}

// Logout discards the token.
func (s *StaticSession) Logout() {
	s.install(Token{}, false)
}
