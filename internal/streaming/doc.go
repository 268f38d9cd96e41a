// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package streaming maintains the two authenticated hub connections that feed
Fleetwatch: the region-of-interest (ROI) channel and the vehicle position
channel.

# Channels

A Channel is a long-lived connection slot over a WebSocket hub using the JSON
hub protocol (see internal/hubproto). Start dials, performs the handshake,
opens registered server streams and begins reading. Each connection attempt
first asks the credential source for a token valid for at least
MinTokenValidity and presents it as a bearer token.

After an unexpected loss the channel enters StateReconnecting, emits a
disconnected event at once and retries on the RetryPolicy schedule
(0s, 2s, 5s, 10s, 20s by default, repeating the last delay). Stop cancels any
pending retry and closes the socket with a normal close frame.

Inbound invocations are dispatched by target to handlers registered with On;
stream items go to the handler registered with Stream. Delivery happens on the
channel's read goroutine, in receive order, one handler call per message.

# Client

Client composes both channels behind typed routers:

	client, err := streaming.NewClient(cfg, session)
	client.Positions().Subscribe(func(p models.VehiclePosition) { ... })
	client.Status().Subscribe(func(ev streaming.ConnectionEvent) { ... })
	err = client.StartAll(ctx)
	defer client.Dispose(context.Background())

Status subscribers run while the client holds its status lock and must not
call back into Client.Connected.
*/
package streaming
