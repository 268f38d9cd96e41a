// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/events"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

// Handler receives the payload of a hub message: the first argument of an
// invocation, or a stream item. A returned error is logged and counted as a
// decode failure.
type Handler func(payload json.RawMessage) error

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// Name labels logs, metrics and connection events.
	Name string

	// URL is the hub endpoint (http, https, ws or wss).
	URL string

	// MinTokenValidity is requested from the credential source before every
	// connection attempt. Default: 60s
	MinTokenValidity time.Duration

	// HandshakeTimeout bounds the dial plus the hub handshake. Default: 10s
	HandshakeTimeout time.Duration

	// KeepAliveInterval is how often a hub ping is sent. Default: 15s
	KeepAliveInterval time.Duration

	// ServerTimeout is how long the connection may stay silent before it is
	// considered lost. Default: 30s
	ServerTimeout time.Duration

	// StopTimeout bounds how long Stop waits for the receive loop. Default: 5s
	StopTimeout time.Duration

	// RetryPolicy drives reconnection. Default: DefaultRetryPolicy()
	RetryPolicy RetryPolicy

	// Dialer opens the transport. Default: WebSocketDialer
	Dialer Dialer
}

func (c *ChannelConfig) applyDefaults() {
	if c.MinTokenValidity <= 0 {
		c.MinTokenValidity = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 15 * time.Second
	}
	if c.ServerTimeout <= 0 {
		c.ServerTimeout = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.RetryPolicy == nil {
		c.RetryPolicy = DefaultRetryPolicy()
	}
	if c.Dialer == nil {
		c.Dialer = &WebSocketDialer{HandshakeTimeout: c.HandshakeTimeout}
	}
}

type streamRegistration struct {
	target  string
	handler Handler
}

// Channel is one long-lived hub connection slot. Start and Stop may be called
// any number of times; each Start after a Stop (or a terminal close) opens a
// fresh connection handle.
type Channel struct {
	cfg   ChannelConfig
	creds auth.CredentialSource

	handlersMu sync.RWMutex
	handlers   map[string]streamRegistration
	streams    []streamRegistration

	status *events.Router[ConnectionEvent]

	mu     sync.Mutex
	handle *connection
	state  State
}

// NewChannel creates an idle channel.
func NewChannel(cfg ChannelConfig, creds auth.CredentialSource) *Channel {
	cfg.applyDefaults()
	c := &Channel{
		cfg:      cfg,
		creds:    creds,
		handlers: make(map[string]streamRegistration),
		status:   events.NewRouter[ConnectionEvent](cfg.Name + "_status"),
	}
	metrics.SetChannelState(cfg.Name, int(StateIdle))
	return c
}

// On registers the handler for invocations of target. Target names match
// case-insensitively; a later registration replaces an earlier one.
func (c *Channel) On(target string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[strings.ToLower(target)] = streamRegistration{target: target, handler: h}
}

// Stream registers a server stream that is invoked after every successful
// connect; its items go to h. Streams registered while connected are opened
// on the next connect.
func (c *Channel) Stream(target string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.streams = append(c.streams, streamRegistration{target: target, handler: h})
}

func (c *Channel) handlerFor(target string) (streamRegistration, bool) {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	reg, ok := c.handlers[strings.ToLower(target)]
	return reg, ok
}

func (c *Channel) streamRegistrations() []streamRegistration {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	out := make([]streamRegistration, len(c.streams))
	copy(out, c.streams)
	return out
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.cfg.Name }

// URL returns the configured hub endpoint.
func (c *Channel) URL() string { return c.cfg.URL }

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the router that receives this channel's connection events.
func (c *Channel) Status() *events.Router[ConnectionEvent] {
	return c.status
}

// OnStatus subscribes fn to connection events.
func (c *Channel) OnStatus(fn func(ConnectionEvent)) (unsubscribe func()) {
	return c.status.Subscribe(fn)
}

// Start connects the channel. It returns nil without doing anything when the
// channel already holds a connected handle. When another Start is still
// connecting, Start waits for that attempt and shares its result; if the
// other caller gave up first, Start connects on its own. An initial failure
// is not retried: the handle is discarded, a disconnected event is emitted
// and the error is returned wrapped in ErrConnectFailed. If Stop runs while
// Start is still connecting, Start returns ErrStopped.
func (c *Channel) Start(ctx context.Context) error {
	for {
		c.mu.Lock()
		if h := c.handle; h != nil {
			c.mu.Unlock()
			retry, err := h.awaitStart(ctx)
			if !retry {
				return err
			}
			continue
		}
		h := c.newConnection()
		c.handle = h
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		return c.start(ctx, h)
	}
}

func (c *Channel) start(ctx context.Context, h *connection) error {
	logging.Info().Str("channel", c.cfg.Name).Str("url", c.cfg.URL).Msg("Connecting to hub")

	// The attempt ends when either the caller gives up or Stop runs.
	attemptCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(h.ctx, cancel)
	err := h.connect(attemptCtx)
	stopAfter()
	cancel()

	// A caller that gave up owns nothing, even a connection that just opened.
	abandoned := ctx.Err() != nil
	if err == nil && abandoned {
		h.closeConn()
		err = ctx.Err()
	}
	metrics.RecordConnectAttempt(c.cfg.Name, false, err)

	c.mu.Lock()
	if c.handle != h {
		c.mu.Unlock()
		h.closeConn()
		h.started(ErrStopped, false)
		close(h.done)
		return ErrStopped
	}
	if err != nil {
		c.handle = nil
		c.setStateLocked(StateClosed)
		c.mu.Unlock()
		h.cancel()

		err = fmt.Errorf("%w: %s: %w", ErrConnectFailed, c.cfg.Name, err)
		logging.Warn().Err(err).Str("channel", c.cfg.Name).Msg("Failed to connect to hub")
		c.emit(false, StateClosed)
		h.started(err, abandoned)
		close(h.done)
		return err
	}
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	logging.Info().Str("channel", c.cfg.Name).Msg("Connected to hub")
	c.emit(true, StateConnected)
	h.started(nil, false)
	go h.run()
	return nil
}

// Stop closes the channel gracefully. It cancels a pending reconnect or an
// in-flight connect, waits for the receive loop and emits a disconnected
// event. Without a handle it does nothing.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	h := c.handle
	if h == nil {
		c.mu.Unlock()
		return nil
	}
	c.handle = nil
	c.mu.Unlock()

	h.shutdown()

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
	defer cancel()

	var err error
	select {
	case <-h.done:
	case <-waitCtx.Done():
		err = fmt.Errorf("stop %s: %w", c.cfg.Name, waitCtx.Err())
		logging.Warn().Err(err).Str("channel", c.cfg.Name).Msg("Timed out waiting for hub connection to close")
	}

	c.mu.Lock()
	if c.handle == nil {
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()

	logging.Info().Str("channel", c.cfg.Name).Msg("Disconnected from hub")
	c.emit(false, StateClosed)
	return err
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	metrics.SetChannelState(c.cfg.Name, int(s))
}

func (c *Channel) emit(connected bool, state State) {
	metrics.RecordConnectionEvent(c.cfg.Name, connected)
	c.status.Publish(ConnectionEvent{Channel: c.cfg.Name, Connected: connected, State: state})
}

// transition moves the channel to state and emits an event, unless h no
// longer owns the channel.
func (c *Channel) transition(h *connection, state State, connected bool) bool {
	c.mu.Lock()
	if c.handle != h {
		c.mu.Unlock()
		return false
	}
	c.setStateLocked(state)
	c.mu.Unlock()
	c.emit(connected, state)
	return true
}

// finish closes the channel for good after a terminal loss of h.
func (c *Channel) finish(h *connection) {
	c.mu.Lock()
	if c.handle != h {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	h.cancel()
	c.emit(false, StateClosed)
}

// deliver dispatches an invocation to the handler registered for its target.
func (c *Channel) deliver(target string, payload json.RawMessage, hasPayload bool) {
	reg, ok := c.handlerFor(target)
	if !ok {
		metrics.RecordHubMessage(c.cfg.Name, "unhandled")
		logging.Debug().Str("channel", c.cfg.Name).Str("target", target).Msg("No handler for hub target")
		return
	}
	c.invoke(reg, payload, hasPayload)
}

func (c *Channel) invoke(reg streamRegistration, payload json.RawMessage, hasPayload bool) {
	metrics.RecordHubMessage(c.cfg.Name, reg.target)
	if !hasPayload {
		metrics.RecordDecodeError(c.cfg.Name, reg.target)
		logging.Warn().Str("channel", c.cfg.Name).Str("target", reg.target).Msg("Hub message carries no payload")
		return
	}
	if err := reg.handler(payload); err != nil {
		metrics.RecordDecodeError(c.cfg.Name, reg.target)
		logging.Warn().Err(err).Str("channel", c.cfg.Name).Str("target", reg.target).Msg("Failed to handle hub message")
	}
}

// serverCloseError reports a hub Close message.
type serverCloseError struct {
	reason         string
	allowReconnect bool
}

func (e *serverCloseError) Error() string {
	if e.reason == "" {
		return "hub closed the connection"
	}
	return "hub closed the connection: " + e.reason
}

func isTerminalClose(err error) bool {
	var closeErr *serverCloseError
	return errors.As(err, &closeErr) && !closeErr.allowReconnect
}
