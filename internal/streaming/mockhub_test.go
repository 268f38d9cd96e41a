// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleetwatch/internal/hubproto"
)

// mockHub is an httptest server speaking the JSON hub protocol.
type mockHub struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	status      int
	reject      string
	authHeaders []string
	queryTokens []string
	conns       []*hubConn

	connected chan *hubConn
}

type hubConn struct {
	conn     *websocket.Conn
	received chan hubproto.Message
	writeMu  sync.Mutex
}

func newMockHub(t *testing.T) *mockHub {
	t.Helper()
	m := &mockHub{
		t:         t,
		connected: make(chan *hubConn, 16),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(func() {
		m.dropAll()
		m.server.Close()
	})
	return m
}

func (m *mockHub) URL() string {
	return m.server.URL + "/hub"
}

// setStatus makes the server answer upgrades with an HTTP error; 0 restores
// normal operation.
func (m *mockHub) setStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = code
}

func (m *mockHub) setReject(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject = reason
}

func (m *mockHub) seenAuth() (headers, tokens []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.authHeaders...), append([]string(nil), m.queryTokens...)
}

// dropAll closes every server-side connection without a close frame.
func (m *mockHub) dropAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()
	for _, c := range conns {
		c.conn.Close()
	}
}

func (m *mockHub) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	status, reject := m.status, m.reject
	m.authHeaders = append(m.authHeaders, r.Header.Get("Authorization"))
	m.queryTokens = append(m.queryTokens, r.URL.Query().Get("access_token"))
	m.mu.Unlock()

	if status != 0 {
		http.Error(w, "unavailable", status)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return
	}
	if reject != "" {
		resp, _ := json.Marshal(map[string]string{"error": reject})
		_ = conn.WriteMessage(websocket.TextMessage, append(resp, hubproto.RecordSeparator))
		conn.Close()
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte{'{', '}', hubproto.RecordSeparator}); err != nil {
		conn.Close()
		return
	}

	hc := &hubConn{conn: conn, received: make(chan hubproto.Message, 64)}
	m.mu.Lock()
	m.conns = append(m.conns, hc)
	m.mu.Unlock()
	m.connected <- hc

	defer close(hc.received)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msgs, _ := hubproto.Decode(data)
		for _, msg := range msgs {
			select {
			case hc.received <- msg:
			default:
			}
		}
	}
}

// waitConn returns the next accepted hub connection.
func (m *mockHub) waitConn(t *testing.T) *hubConn {
	t.Helper()
	select {
	case hc := <-m.connected:
		return hc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for hub connection")
		return nil
	}
}

func (hc *hubConn) send(t *testing.T, msg *hubproto.Message) {
	t.Helper()
	data, err := hubproto.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()
	if err := hc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (hc *hubConn) invoke(t *testing.T, target, payload string) {
	t.Helper()
	hc.send(t, &hubproto.Message{
		Type:      hubproto.TypeInvocation,
		Target:    target,
		Arguments: []json.RawMessage{json.RawMessage(payload)},
	})
}

// waitMessage returns the next client message of type typ, skipping others.
func (hc *hubConn) waitMessage(t *testing.T, typ hubproto.MessageType) hubproto.Message {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-hc.received:
			if !ok {
				t.Fatalf("connection closed while waiting for %s", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s message", typ)
		}
	}
}

// fakeCreds is a CredentialSource with a fixed token. When gate is set,
// EnsureFresh signals entered and holds until gate is closed, ignoring ctx.
type fakeCreds struct {
	token  string
	stale  atomic.Bool
	checks atomic.Int32

	gate    chan struct{}
	entered chan struct{}

	mu         sync.Mutex
	validities []time.Duration
}

func (f *fakeCreds) CurrentToken() string { return f.token }

func (f *fakeCreds) EnsureFresh(_ context.Context, minValidity time.Duration) bool {
	f.checks.Add(1)
	f.mu.Lock()
	f.validities = append(f.validities, minValidity)
	f.mu.Unlock()

	if f.gate != nil {
		if f.entered != nil {
			select {
			case f.entered <- struct{}{}:
			default:
			}
		}
		<-f.gate
	}
	return !f.stale.Load()
}

func (f *fakeCreds) IsSessionAuthenticated() bool { return f.token != "" }

func (f *fakeCreds) requested() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.validities...)
}

// countingDialer counts dials and can hold them until released.
type countingDialer struct {
	next    Dialer
	dials   atomic.Int32
	block   chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	times []time.Time
}

func (d *countingDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	d.times = append(d.times, time.Now())
	d.mu.Unlock()

	if d.block != nil {
		if d.entered != nil {
			d.entered <- struct{}{}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.block:
		}
	}
	return d.next.DialContext(ctx, urlStr, header)
}

func (d *countingDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...)
}

// eventRecorder collects connection events.
type eventRecorder struct {
	mu     sync.Mutex
	events []ConnectionEvent
}

func (r *eventRecorder) record(ev ConnectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) connected() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Connected
	}
	return out
}

func (r *eventRecorder) waitLen(t *testing.T, n int) []bool {
	t.Helper()
	waitFor(t, "connection events", func() bool { return len(r.connected()) >= n })
	return r.connected()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func checkEvents(t *testing.T, got, want []bool) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}
