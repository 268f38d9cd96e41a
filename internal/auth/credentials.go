// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package auth provides the credential sources the streaming channels
// authenticate with.
//
// A CredentialSource hands out the current bearer token and can be asked to
// make sure the token stays valid for a minimum window. Failures never cross
// the package boundary: EnsureFresh logs and reports false.
//
// Two implementations exist:
//
//   - OIDCSession keeps an access/refresh token pair obtained from an OIDC
//     provider and refreshes it through a zitadel relying party, guarded by
//     a circuit breaker.
//   - StaticSession serves a fixed token, for development and the hubtail CLI.
//
// Both publish SessionState changes so the session controller can start and
// stop streaming as the user logs in and out.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialSource supplies bearer tokens for channel connection attempts.
type CredentialSource interface {
	// CurrentToken returns the current bearer token, or "" when none is held.
	CurrentToken() string

	// EnsureFresh refreshes the token if needed and reports whether it is
	// valid for at least minValidity afterwards. It never returns an error.
	EnsureFresh(ctx context.Context, minValidity time.Duration) bool

	// IsSessionAuthenticated reports whether a user session exists.
	IsSessionAuthenticated() bool
}

// SessionState is the observable authentication state.
type SessionState struct {
	Authenticated bool `json:"authenticated"`
	TokenPresent  bool `json:"token_present"`
}

// Active reports whether streaming should run for this state.
func (s SessionState) Active() bool {
	return s.Authenticated && s.TokenPresent
}

// Token is an access token with its optional refresh token.
type Token struct {
	AccessToken  string
	RefreshToken string
	// Expiry is the access token expiry. Zero means unknown; it is then read
	// from the token's exp claim when the token is a JWT.
	Expiry time.Time
}

// Session is a CredentialSource whose state can be observed and changed.
type Session interface {
	CredentialSource

	// State returns the current session state.
	State() SessionState

	// Subscribe registers fn for session state changes.
	Subscribe(fn func(SessionState)) (unsubscribe func())

	// Login installs a token and marks the session authenticated.
	Login(tok Token) error

	// Logout discards the token and marks the session unauthenticated.
	Logout()
}

// ErrEmptyToken is returned by Login when no access token is supplied.
var ErrEmptyToken = errors.New("access token is empty")

// tokenExpiry reads the exp claim of a JWT without verifying it. The channel
// only needs to know when to refresh; the hub server verifies the signature.
func tokenExpiry(accessToken string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// resolveExpiry prefers an explicit expiry and falls back to the exp claim.
func resolveExpiry(tok Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := tokenExpiry(tok.AccessToken); ok {
		return exp
	}
	return time.Time{}
}

// validFor reports whether a token expiring at expiry is still valid for
// minValidity at now. A zero expiry never expires.
func validFor(expiry, now time.Time, minValidity time.Duration) bool {
	if expiry.IsZero() {
		return true
	}
	return expiry.Sub(now) >= minValidity
}
