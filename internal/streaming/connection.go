// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleetwatch/internal/hubproto"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

const (
	// writeWait bounds every frame write.
	writeWait = 10 * time.Second

	// closeWait bounds the close frame written by Stop.
	closeWait = time.Second
)

// connection is one Start/Stop cycle of a Channel. It survives reconnects;
// Stop or a terminal close ends it.
type connection struct {
	ch     *Channel
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// ready closes once the initial connect settled; startErr and abandoned
	// are written before.
	ready     chan struct{}
	startErr  error
	abandoned bool

	connMu sync.Mutex
	conn   Conn

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	// Owned by whichever goroutine is connecting or reading; never shared.
	streams      map[string]streamRegistration
	invocationID int
	pending      []byte
}

func (c *Channel) newConnection() *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		ch:     c,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

func (h *connection) started(err error, abandoned bool) {
	h.startErr = err
	h.abandoned = abandoned
	close(h.ready)
}

// awaitStart waits for the initial connect of h, which another Start call
// owns. It asks for a retry when that caller gave up on the attempt.
func (h *connection) awaitStart(ctx context.Context) (retry bool, err error) {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if h.startErr != nil && h.abandoned {
		return true, nil
	}
	return false, h.startErr
}

// connect refreshes the credential, dials, performs the hub handshake and
// opens the registered streams.
func (h *connection) connect(ctx context.Context) error {
	cfg := &h.ch.cfg
	if !h.ch.creds.EnsureFresh(ctx, cfg.MinTokenValidity) {
		return ErrCredentialUnavailable
	}
	token := h.ch.creds.CurrentToken()

	wsURL, err := WebSocketURL(cfg.URL, token)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	conn, err := cfg.Dialer.DialContext(dialCtx, wsURL, authHeader(token))
	if err != nil {
		return err
	}

	// Reads ignore contexts; closing the socket unblocks them.
	stopClose := context.AfterFunc(dialCtx, func() { conn.Close() })
	rest, err := h.handshake(conn)
	if !stopClose() {
		conn.Close()
		if err == nil {
			err = dialCtx.Err()
		}
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err != nil {
		conn.Close()
		return err
	}

	h.streams = make(map[string]streamRegistration)
	for _, reg := range h.ch.streamRegistrations() {
		h.invocationID++
		id := strconv.Itoa(h.invocationID)
		msg, err := hubproto.NewStreamInvocation(id, reg.target)
		if err != nil {
			conn.Close()
			return err
		}
		if err := h.write(conn, msg); err != nil {
			conn.Close()
			return fmt.Errorf("open stream %s: %w", reg.target, err)
		}
		h.streams[id] = reg
		logging.Debug().Str("channel", cfg.Name).Str("target", reg.target).Str("invocation_id", id).Msg("Opened hub stream")
	}

	h.pending = rest
	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()
	return nil
}

func (h *connection) handshake(conn Conn) ([]byte, error) {
	timeout := h.ch.cfg.HandshakeTimeout
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, hubproto.HandshakeRequest()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	rest, err := hubproto.ParseHandshakeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return rest, nil
}

func (h *connection) write(conn Conn, msg *hubproto.Message) error {
	data, err := hubproto.Encode(msg)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *connection) currentConn() Conn {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.conn
}

func (h *connection) closeConn() {
	h.connMu.Lock()
	conn := h.conn
	h.conn = nil
	h.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// shutdown sends a normal close frame and cancels the handle.
func (h *connection) shutdown() {
	if conn := h.currentConn(); conn != nil {
		h.writeMu.Lock()
		err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWait))
		h.writeMu.Unlock()
		if err != nil {
			logging.Debug().Err(err).Str("channel", h.ch.cfg.Name).Msg("Failed to send close frame")
		}
	}
	h.cancel()
}

// run owns the connection after a successful Start: it reads until the
// connection is lost, then reconnects per the retry policy.
func (h *connection) run() {
	defer close(h.done)
	defer h.closeConn()

	name := h.ch.cfg.Name
	for {
		err := h.readLoop()
		h.closeConn()
		if h.ctx.Err() != nil {
			return
		}

		if isTerminalClose(err) {
			logging.Warn().Err(err).Str("channel", name).Msg("Hub closed the connection, not reconnecting")
			h.ch.finish(h)
			return
		}

		logging.Warn().Err(err).Str("channel", name).Msg("Hub connection lost, reconnecting")
		if !h.ch.transition(h, StateReconnecting, false) {
			return
		}
		if !h.reconnect() {
			if h.ctx.Err() == nil {
				h.ch.finish(h)
			}
			return
		}
		if !h.ch.transition(h, StateConnected, true) {
			return
		}
	}
}

// reconnect retries until a connect succeeds, the policy gives up or the
// handle is cancelled.
func (h *connection) reconnect() bool {
	name := h.ch.cfg.Name
	for attempt := 0; ; attempt++ {
		delay, ok := h.ch.cfg.RetryPolicy.NextDelay(attempt)
		if !ok {
			logging.Warn().Str("channel", name).Int("attempts", attempt).Msg("Reconnect schedule exhausted, closing channel")
			return false
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-h.ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
		}
		if h.ctx.Err() != nil {
			return false
		}

		err := h.connect(h.ctx)
		metrics.RecordConnectAttempt(name, true, err)
		if err == nil {
			logging.Info().Str("channel", name).Int("attempt", attempt+1).Msg("Reconnected to hub")
			return true
		}
		if h.ctx.Err() != nil {
			return false
		}
		logging.Warn().Err(err).Str("channel", name).Int("attempt", attempt+1).Msg("Reconnect attempt failed")
	}
}

func (h *connection) readLoop() error {
	conn := h.currentConn()
	if conn == nil {
		return errors.New("no open connection")
	}

	stopClose := context.AfterFunc(h.ctx, func() { conn.Close() })
	defer stopClose()

	var wg sync.WaitGroup
	keepAliveCtx, cancel := context.WithCancel(h.ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepAlive(keepAliveCtx, conn)
	}()
	defer wg.Wait()
	defer cancel()

	if pending := h.pending; len(pending) > 0 {
		h.pending = nil
		if err := h.dispatch(pending); err != nil {
			return err
		}
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.ch.cfg.ServerTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("transport closed: %w", err)
			}
			return err
		}
		if err := h.dispatch(data); err != nil {
			return err
		}
	}
}

func (h *connection) keepAlive(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(h.ch.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.write(conn, hubproto.PingMessage()); err != nil {
				logging.Debug().Err(err).Str("channel", h.ch.cfg.Name).Msg("Keep-alive ping failed")
				conn.Close()
				return
			}
		}
	}
}

// dispatch decodes a frame and delivers its messages in order. It returns
// a *serverCloseError when the hub asks to close.
func (h *connection) dispatch(data []byte) error {
	name := h.ch.cfg.Name
	msgs, err := hubproto.Decode(data)
	if err != nil {
		metrics.RecordDecodeError(name, "frame")
		logging.Warn().Err(err).Str("channel", name).Msg("Dropping malformed hub record")
	}

	for i := range msgs {
		msg := &msgs[i]
		switch msg.Type {
		case hubproto.TypeInvocation:
			payload, ok := msg.Payload()
			h.ch.deliver(msg.Target, payload, ok)
		case hubproto.TypeStreamItem:
			reg, ok := h.streams[msg.InvocationID]
			if !ok {
				logging.Debug().Str("channel", name).Str("invocation_id", msg.InvocationID).Msg("Stream item for unknown invocation")
				continue
			}
			payload, ok := msg.Payload()
			h.ch.invoke(reg, payload, ok)
		case hubproto.TypeCompletion:
			reg, ok := h.streams[msg.InvocationID]
			if !ok {
				continue
			}
			delete(h.streams, msg.InvocationID)
			if msg.Error != "" {
				logging.Warn().Str("channel", name).Str("target", reg.target).Str("error", msg.Error).Msg("Hub stream failed")
			} else {
				logging.Info().Str("channel", name).Str("target", reg.target).Msg("Hub stream completed")
			}
		case hubproto.TypePing:
		case hubproto.TypeClose:
			return &serverCloseError{reason: msg.Error, allowReconnect: msg.AllowReconnect}
		default:
			logging.Debug().Str("channel", name).Stringer("type", msg.Type).Msg("Ignoring hub message")
		}
	}
	return nil
}
