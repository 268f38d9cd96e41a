// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import "errors"

var (
	// ErrConnectFailed wraps every initial connection failure.
	ErrConnectFailed = errors.New("connect failed")

	// ErrCredentialUnavailable means the credential source could not provide
	// a token valid for the required window.
	ErrCredentialUnavailable = errors.New("credential unavailable")

	// ErrHandshakeFailed means the hub protocol handshake did not complete.
	ErrHandshakeFailed = errors.New("hub handshake failed")

	// ErrStopped is returned by Start when Stop won the race.
	ErrStopped = errors.New("channel stopped")

	// ErrDisposed is returned by StartAll after Dispose.
	ErrDisposed = errors.New("streaming client disposed")
)
