// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package auth

import (
	"sync"
	"time"

	"github.com/tomtom215/fleetwatch/internal/events"
	"github.com/tomtom215/fleetwatch/internal/logging"
)

// sessionCore holds the token and authentication flag shared by both
// session implementations and publishes state changes.
type sessionCore struct {
	name   string
	now    func() time.Time
	router *events.Router[SessionState]

	mu            sync.RWMutex
	token         Token
	authenticated bool
}

func (c *sessionCore) init(name string, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.name = name
	c.now = now
	c.router = events.NewRouter[SessionState](name)
}

// CurrentToken returns the access token, or "" when none is held.
func (c *sessionCore) CurrentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.AccessToken
}

// IsSessionAuthenticated reports whether a user session exists.
func (c *sessionCore) IsSessionAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// State returns the current session state.
func (c *sessionCore) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *sessionCore) stateLocked() SessionState {
	return SessionState{
		Authenticated: c.authenticated,
		TokenPresent:  c.token.AccessToken != "",
	}
}

// Subscribe registers fn for session state changes.
func (c *sessionCore) Subscribe(fn func(SessionState)) func() {
	return c.router.Subscribe(fn)
}

// Expiry returns the access token expiry; zero when unknown.
func (c *sessionCore) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.Expiry
}

// install replaces the token and publishes the new state when it changed.
func (c *sessionCore) install(tok Token, authenticated bool) {
	tok.Expiry = resolveExpiry(tok)

	c.mu.Lock()
	before := c.stateLocked()
	c.token = tok
	c.authenticated = authenticated
	after := c.stateLocked()
	c.mu.Unlock()

	if before != after {
		logging.Info().
			Str("session", c.name).
			Bool("authenticated", after.Authenticated).
			Bool("token_present", after.TokenPresent).
			Msg("Session state changed")
		c.router.Publish(after)
	}
}

// snapshot returns the token under the read lock.
func (c *sessionCore) snapshot() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.authenticated
}
