// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// ErrRefreshRejected means the identity provider definitively refused the
// refresh token. The session cannot recover without a new login.
var ErrRefreshRejected = errors.New("refresh token rejected")

// TokenRefresher exchanges a refresh token for a new token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// OIDCConfig configures the relying party used for token refresh.
type OIDCConfig struct {
	// IssuerURL is the OIDC provider's issuer URL, used for discovery.
	IssuerURL string

	// ClientID is the OAuth 2.0 client identifier.
	ClientID string

	// ClientSecret is optional for public clients.
	ClientSecret string

	// Scopes default to openid, profile, email.
	Scopes []string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// ZitadelRefresher refreshes tokens through a zitadel relying party.
type ZitadelRefresher struct {
	rp rp.RelyingParty
}

// NewZitadelRefresher performs OIDC discovery against the issuer and returns
// a refresher bound to the discovered token endpoint.
func NewZitadelRefresher(ctx context.Context, cfg OIDCConfig) (*ZitadelRefresher, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer_url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.IssuerURL,
		cfg.ClientID,
		cfg.ClientSecret,
		"",
		cfg.Scopes,
		rp.WithHTTPClient(cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}
	return &ZitadelRefresher{rp: relyingParty}, nil
}

// Refresh calls the token endpoint with the refresh_token grant.
func (z *ZitadelRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	tokens, err := rp.RefreshTokens[*oidc.IDTokenClaims](ctx, z.rp, refreshToken, "", "")
	if err != nil {
		var oidcErr *oidc.Error
		if errors.As(err, &oidcErr) && oidcErr.ErrorType == oidc.InvalidGrant {
			return Token{}, fmt.Errorf("%w: %s", ErrRefreshRejected, oidcErr.Description)
		}
		return Token{}, fmt.Errorf("refresh failed: %w", err)
	}

	tok := Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
	}
	if tok.RefreshToken == "" {
		// Providers without refresh token rotation keep the old one valid.
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// BreakerConfig configures the circuit breaker in front of a refresher.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerRefresher guards a TokenRefresher with a circuit breaker so that
// both channels retrying against an unreachable identity provider fail fast
// instead of queueing refresh calls.
type BreakerRefresher struct {
	next    TokenRefresher
	breaker *gobreaker.CircuitBreaker[Token]
	name    string
}

// NewBreakerRefresher wraps next with a circuit breaker.
func NewBreakerRefresher(next TokenRefresher, cfg BreakerConfig) *BreakerRefresher {
	if cfg.Name == "" {
		cfg.Name = "oidc-refresh"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}

	b := &BreakerRefresher{next: next, name: cfg.Name}
	b.breaker = gobreaker.NewCircuitBreaker[Token](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A rejected refresh token is a valid answer from a healthy provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRefreshRejected)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return b
}

// Refresh forwards to the wrapped refresher unless the breaker is open.
func (b *BreakerRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	tok, err := b.breaker.Execute(func() (Token, error) {
		return b.next.Refresh(ctx, refreshToken)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	case err != nil && !errors.Is(err, ErrRefreshRejected):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	}
	return tok, err
}

// State returns the breaker state.
func (b *BreakerRefresher) State() gobreaker.State {
	return b.breaker.State()
}
