// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/validation"
)

// maxSessionBody caps the login request body.
const maxSessionBody = 64 << 10

// SessionRequest installs a token pair obtained from the identity provider.
type SessionRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token"`

	// ExpiresIn is the access token lifetime in seconds. Zero falls back
	// to the token's exp claim.
	ExpiresIn int64 `json:"expires_in" validate:"gte=0"`
}

// SessionResponse reports the session state after a change.
type SessionResponse struct {
	Authenticated bool `json:"authenticated"`
	TokenPresent  bool `json:"token_present"`
	Active        bool `json:"active"`
}

func (h *Handler) sessionResponse() SessionResponse {
	st := h.session.State()
	return SessionResponse{
		Authenticated: st.Authenticated,
		TokenPresent:  st.TokenPresent,
		Active:        st.Active(),
	}
}

// SessionState returns the current session state.
func (h *Handler) SessionState(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.sessionResponse())
}

// Login installs the posted tokens. Streaming starts once the controller
// observes the authenticated session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		rw.BadRequest("Invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.Validation(verr)
		return
	}

	tok := auth.Token{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken}
	if req.ExpiresIn > 0 {
		tok.Expiry = h.now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	if err := h.session.Login(tok); err != nil {
		if errors.Is(err, auth.ErrEmptyToken) {
			rw.BadRequest(err.Error())
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Login failed")
		rw.InternalError("Login failed")
		return
	}

	logging.Ctx(r.Context()).Info().Bool("refreshable", req.RefreshToken != "").Msg("Session login")
	rw.Success(h.sessionResponse())
}

// Logout discards the tokens, which ends the streaming scope.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	logging.Ctx(r.Context()).Info().Msg("Session logout")
	NewResponseWriter(w, r).Success(h.sessionResponse())
}
