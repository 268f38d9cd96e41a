// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package session

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/hubproto"
	"github.com/tomtom215/fleetwatch/internal/streaming"
)

// testHub accepts hub connections, completes the handshake and discards
// whatever the client sends.
type testHub struct {
	server    *httptest.Server
	upgrader  websocket.Upgrader
	connected chan *hubConn

	mu    sync.Mutex
	conns []*websocket.Conn
}

type hubConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	h := &testHub{connected: make(chan *hubConn, 8)}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(func() {
		h.mu.Lock()
		for _, c := range h.conns {
			c.Close()
		}
		h.mu.Unlock()
		h.server.Close()
	})
	return h
}

func (h *testHub) URL() string { return h.server.URL + "/hub" }

func (h *testHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	if _, _, err := conn.ReadMessage(); err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte{'{', '}', hubproto.RecordSeparator}); err != nil {
		return
	}
	h.connected <- &hubConn{conn: conn}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *testHub) waitConn(t *testing.T) *hubConn {
	t.Helper()
	select {
	case hc := <-h.connected:
		return hc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for hub connection")
		return nil
	}
}

func (hc *hubConn) invoke(t *testing.T, target, payload string) {
	t.Helper()
	data, err := hubproto.Encode(&hubproto.Message{
		Type:      hubproto.TypeInvocation,
		Target:    target,
		Arguments: []json.RawMessage{json.RawMessage(payload)},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()
	if err := hc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestController_LogoutClosesRealChannels(t *testing.T) {
	roiHub := newTestHub(t)
	posHub := newTestHub(t)
	sess := auth.NewStaticSession("tok")

	client, err := streaming.NewClient(streaming.ClientConfig{
		RoiURL:      roiHub.URL(),
		PositionURL: posHub.URL(),
		Channel: streaming.ChannelConfig{
			HandshakeTimeout:  2 * time.Second,
			KeepAliveInterval: time.Hour,
			ServerTimeout:     5 * time.Second,
			StopTimeout:       2 * time.Second,
		},
	}, sess)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c, _ := runController(t, sess, client)

	roiConn := roiHub.waitConn(t)
	posConn := posHub.waitConn(t)
	waitFor(t, "connected", c.Connected)

	roiConn.invoke(t, streaming.TargetStateChanged, `{"id":"roi-1","state":"active"}`)
	posConn.invoke(t, streaming.TargetPositionUpdated,
		`{"vehicleGid":"v1","journeyGid":"j1","speed":"12.5","pos":{"lng":18.06,"lat":59.33},"heading":"90"}`)
	waitFor(t, "stores filled", func() bool { return c.Roi().Len() == 1 && c.Positions().Len() == 1 })

	for name, state := range client.States() {
		if state != streaming.StateConnected {
			t.Fatalf("%s state = %s before logout, want connected", name, state)
		}
	}

	sess.Logout()

	waitFor(t, "channels closed", func() bool {
		for _, state := range client.States() {
			if state != streaming.StateClosed {
				return false
			}
		}
		return true
	})
	waitFor(t, "disconnected", func() bool { return !c.Connected() })
	if got := c.Roi().Len(); got != 0 {
		t.Errorf("roi entries = %d, want 0", got)
	}
	if got := c.Positions().Len(); got != 0 {
		t.Errorf("position entries = %d, want 0", got)
	}
	if client.Connected() {
		t.Error("client Connected() = true after logout")
	}
}
