// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/fleetwatch/internal/hubproto"
	"github.com/tomtom215/fleetwatch/internal/metrics"
)

func newTestChannel(t *testing.T, hub *mockHub, creds *fakeCreds, mutate func(*ChannelConfig)) (*Channel, *eventRecorder, *countingDialer) {
	t.Helper()
	dialer := &countingDialer{next: &WebSocketDialer{HandshakeTimeout: 2 * time.Second}}
	cfg := ChannelConfig{
		Name:              t.Name(),
		URL:               hub.URL(),
		HandshakeTimeout:  2 * time.Second,
		KeepAliveInterval: time.Hour,
		ServerTimeout:     5 * time.Second,
		StopTimeout:       2 * time.Second,
		RetryPolicy:       &ScheduleRetryPolicy{Delays: []time.Duration{0, 10 * time.Millisecond}, RepeatLast: true},
		Dialer:            dialer,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ch := NewChannel(cfg, creds)
	rec := &eventRecorder{}
	ch.OnStatus(rec.record)
	t.Cleanup(func() { _ = ch.Stop(context.Background()) })
	return ch, rec, dialer
}

func collect(t *testing.T, got <-chan string, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for len(out) < n {
		select {
		case s := <-got:
			out = append(out, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("received %v, want %d payloads", out, n)
		}
	}
	return out
}

func TestChannel_StartConnectsWithBearerToken(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, _ := newTestChannel(t, hub, &fakeCreds{token: "tok-1"}, nil)

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hub.waitConn(t)

	if got := ch.State(); got != StateConnected {
		t.Errorf("State() = %s, want connected", got)
	}
	checkEvents(t, rec.connected(), []bool{true})

	headers, tokens := hub.seenAuth()
	if len(headers) != 1 || headers[0] != "Bearer tok-1" {
		t.Errorf("Authorization headers = %v, want [Bearer tok-1]", headers)
	}
	if len(tokens) != 1 || tokens[0] != "tok-1" {
		t.Errorf("access_token params = %v, want [tok-1]", tokens)
	}
}

func TestChannel_StartIsNoOpWhileRunning(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, dialer := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)

	for i := 0; i < 3; i++ {
		if err := ch.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	checkEvents(t, rec.connected(), []bool{true})
}

func TestChannel_InitialFailureIsNotRetried(t *testing.T) {
	hub := newMockHub(t)
	hub.setStatus(http.StatusServiceUnavailable)
	ch, rec, dialer := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)

	err := ch.Start(context.Background())
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("Start error = %v, want ErrConnectFailed", err)
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
	checkEvents(t, rec.connected(), []bool{false})

	time.Sleep(50 * time.Millisecond)
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}

	// A fresh Start after the failure builds a new handle.
	hub.setStatus(0)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	checkEvents(t, rec.connected(), []bool{false, true})
}

func TestChannel_CredentialUnavailableSkipsDial(t *testing.T) {
	hub := newMockHub(t)
	creds := &fakeCreds{token: "tok"}
	creds.stale.Store(true)
	ch, rec, dialer := newTestChannel(t, hub, creds, nil)

	err := ch.Start(context.Background())
	if !errors.Is(err, ErrConnectFailed) || !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("Start error = %v, want ErrConnectFailed wrapping ErrCredentialUnavailable", err)
	}
	if got := dialer.dials.Load(); got != 0 {
		t.Errorf("dials = %d, want 0", got)
	}
	if got := creds.checks.Load(); got != 1 {
		t.Errorf("EnsureFresh calls = %d, want 1", got)
	}
	checkEvents(t, rec.connected(), []bool{false})
}

func TestChannel_HandshakeRejected(t *testing.T) {
	hub := newMockHub(t)
	hub.setReject("protocol not supported")
	ch, _, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)

	err := ch.Start(context.Background())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("Start error = %v, want ErrHandshakeFailed", err)
	}
	if !errors.Is(err, hubproto.ErrHandshakeRejected) {
		t.Errorf("Start error = %v, want it to wrap ErrHandshakeRejected", err)
	}
}

func TestChannel_InvocationsDispatchedInOrder(t *testing.T) {
	hub := newMockHub(t)
	ch, _, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)

	got := make(chan string, 8)
	ch.On("statechanged", func(p json.RawMessage) error {
		got <- string(p)
		return nil
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hc := hub.waitConn(t)
	hc.invoke(t, "Unrelated", `0`)
	for _, p := range []string{`1`, `2`, `3`} {
		hc.invoke(t, "StateChanged", p)
	}

	out := collect(t, got, 3)
	for i, want := range []string{"1", "2", "3"} {
		if out[i] != want {
			t.Fatalf("payloads = %v, want [1 2 3]", out)
		}
	}
}

func TestChannel_HandlerErrorsAndMalformedFramesAreCounted(t *testing.T) {
	hub := newMockHub(t)
	ch, _, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)

	got := make(chan string, 8)
	ch.On("StateChanged", func(p json.RawMessage) error {
		if string(p) == `"bad"` {
			return errors.New("bad payload")
		}
		got <- string(p)
		return nil
	})

	frameErrs := metrics.HubDecodeErrors.WithLabelValues(t.Name(), "frame")
	handlerErrs := metrics.HubDecodeErrors.WithLabelValues(t.Name(), "StateChanged")

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hc := hub.waitConn(t)
	hc.writeMu.Lock()
	_ = hc.conn.WriteMessage(websocket.TextMessage, []byte("not json\x1e"))
	hc.writeMu.Unlock()
	hc.invoke(t, "StateChanged", `"bad"`)
	hc.invoke(t, "StateChanged", `"good"`)

	collect(t, got, 1)
	if v := testutil.ToFloat64(frameErrs); v != 1 {
		t.Errorf("frame decode errors = %v, want 1", v)
	}
	if v := testutil.ToFloat64(handlerErrs); v != 1 {
		t.Errorf("handler decode errors = %v, want 1", v)
	}
}

func TestChannel_StreamReopenedAfterReconnect(t *testing.T) {
	hub := newMockHub(t)
	creds := &fakeCreds{token: "tok"}
	ch, rec, dialer := newTestChannel(t, hub, creds, nil)

	got := make(chan string, 8)
	ch.Stream("PositionRealtimeData", func(p json.RawMessage) error {
		got <- string(p)
		return nil
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for round := 1; round <= 2; round++ {
		hc := hub.waitConn(t)
		inv := hc.waitMessage(t, hubproto.TypeStreamInvocation)
		if inv.Target != "PositionRealtimeData" {
			t.Fatalf("stream target = %q", inv.Target)
		}
		hc.send(t, &hubproto.Message{
			Type:         hubproto.TypeStreamItem,
			InvocationID: inv.InvocationID,
			Item:         json.RawMessage(`{"round":1}`),
		})
		collect(t, got, 1)
		if round == 1 {
			hub.dropAll()
		}
	}

	checkEvents(t, rec.waitLen(t, 3), []bool{true, false, true})
	if got := ch.State(); got != StateConnected {
		t.Errorf("State() = %s, want connected", got)
	}

	// One credential check before the initial connect and one before the
	// reconnect, each asking for the default minimum validity.
	if checks, dials := creds.checks.Load(), dialer.dials.Load(); checks != 2 || dials != 2 {
		t.Errorf("EnsureFresh calls, dials = %d, %d; want 2, 2", checks, dials)
	}
	for i, v := range creds.requested() {
		if v != 60*time.Second {
			t.Errorf("EnsureFresh #%d minValidity = %v, want 60s", i+1, v)
		}
	}
}

func TestChannel_ReconnectFollowsSchedule(t *testing.T) {
	hub := newMockHub(t)
	creds := &fakeCreds{token: "tok"}
	delays := []time.Duration{0, 50 * time.Millisecond, 120 * time.Millisecond}
	ch, rec, dialer := newTestChannel(t, hub, creds, func(cfg *ChannelConfig) {
		cfg.RetryPolicy = &ScheduleRetryPolicy{Delays: delays}
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hub.waitConn(t)
	hub.setStatus(http.StatusServiceUnavailable)
	lost := time.Now()
	hub.dropAll()

	waitFor(t, "reconnecting state", func() bool { return ch.State() == StateReconnecting })
	waitFor(t, "closed state", func() bool { return ch.State() == StateClosed })

	times := dialer.dialTimes()
	if len(times) != 1+len(delays) {
		t.Fatalf("dials = %d, want %d", len(times), 1+len(delays))
	}
	prev := lost
	for i, d := range delays {
		at := times[i+1]
		if gap := at.Sub(prev); gap < d {
			t.Errorf("reconnect attempt %d came %v after the previous, want at least %v", i+1, gap, d)
		}
		prev = at
	}

	checkEvents(t, rec.connected(), []bool{true, false, false})
	if checks, dials := creds.checks.Load(), dialer.dials.Load(); checks != dials {
		t.Errorf("EnsureFresh calls = %d, want one per dial (%d)", checks, dials)
	}
	for i, v := range creds.requested() {
		if v != 60*time.Second {
			t.Errorf("EnsureFresh #%d minValidity = %v, want 60s", i+1, v)
		}
	}
}

func TestChannel_StartAfterAbandonedStartConnects(t *testing.T) {
	hub := newMockHub(t)
	creds := &fakeCreds{token: "tok", gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	ch, _, _ := newTestChannel(t, hub, creds, nil)

	staleCtx, cancel := context.WithCancel(context.Background())
	staleErr := make(chan error, 1)
	go func() { staleErr <- ch.Start(staleCtx) }()
	<-creds.entered
	cancel()

	freshErr := make(chan error, 1)
	go func() { freshErr <- ch.Start(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(creds.gate)

	select {
	case err := <-staleErr:
		if !errors.Is(err, ErrConnectFailed) || !errors.Is(err, context.Canceled) {
			t.Errorf("abandoned Start error = %v, want ErrConnectFailed wrapping context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned Start did not return")
	}
	select {
	case err := <-freshErr:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}

	hub.waitConn(t)
	if got := ch.State(); got != StateConnected {
		t.Errorf("State() = %s, want connected", got)
	}
}

func TestChannel_StartSharesInFlightFailure(t *testing.T) {
	hub := newMockHub(t)
	hub.setStatus(http.StatusServiceUnavailable)
	creds := &fakeCreds{token: "tok", gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	ch, _, dialer := newTestChannel(t, hub, creds, nil)

	first := make(chan error, 1)
	go func() { first <- ch.Start(context.Background()) }()
	<-creds.entered

	second := make(chan error, 1)
	go func() { second <- ch.Start(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(creds.gate)

	for i, errc := range []chan error{first, second} {
		select {
		case err := <-errc:
			if !errors.Is(err, ErrConnectFailed) {
				t.Errorf("Start #%d error = %v, want ErrConnectFailed", i+1, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Start #%d did not return", i+1)
		}
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestChannel_GivesUpWhenScheduleExhausted(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, func(cfg *ChannelConfig) {
		cfg.RetryPolicy = &ScheduleRetryPolicy{Delays: []time.Duration{0, 10 * time.Millisecond}}
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hub.waitConn(t)
	hub.setStatus(http.StatusServiceUnavailable)
	hub.dropAll()

	checkEvents(t, rec.waitLen(t, 3), []bool{true, false, false})
	waitFor(t, "closed state", func() bool { return ch.State() == StateClosed })

	// Closed is terminal for the handle; Start opens a new one.
	hub.setStatus(0)
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start after close: %v", err)
	}
	checkEvents(t, rec.connected(), []bool{true, false, false, true})
}

func TestChannel_ServerCloseMessage(t *testing.T) {
	tests := []struct {
		name           string
		allowReconnect bool
		wantEvents     []bool
		wantState      State
	}{
		{"terminal", false, []bool{true, false}, StateClosed},
		{"reconnectable", true, []bool{true, false, true}, StateConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newMockHub(t)
			ch, rec, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)

			if err := ch.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			hc := hub.waitConn(t)
			hc.send(t, &hubproto.Message{
				Type:           hubproto.TypeClose,
				Error:          "server shutting down",
				AllowReconnect: tt.allowReconnect,
			})

			checkEvents(t, rec.waitLen(t, len(tt.wantEvents)), tt.wantEvents)
			waitFor(t, tt.wantState.String()+" state", func() bool { return ch.State() == tt.wantState })
		})
	}
}

func TestChannel_StopIsIdempotent(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)
	ctx := context.Background()

	if err := ch.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	checkEvents(t, rec.connected(), nil)

	if err := ch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hc := hub.waitConn(t)
	if err := ch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := ch.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	checkEvents(t, rec.connected(), []bool{true, false})
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}

	// The server side sees the connection end.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-hc.received:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("server connection still open after Stop")
		}
	}
}

func TestChannel_StopDuringStart(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, dialer := newTestChannel(t, hub, &fakeCreds{token: "tok"}, nil)
	dialer.block = make(chan struct{})
	dialer.entered = make(chan struct{}, 1)

	errc := make(chan error, 1)
	go func() { errc <- ch.Start(context.Background()) }()
	<-dialer.entered

	if err := ch.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Start error = %v, want ErrStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
	checkEvents(t, rec.connected(), []bool{false})
}

func TestChannel_StopCancelsPendingReconnect(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, func(cfg *ChannelConfig) {
		cfg.RetryPolicy = &ScheduleRetryPolicy{Delays: []time.Duration{time.Hour}, RepeatLast: true}
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hub.waitConn(t)
	hub.dropAll()
	waitFor(t, "reconnecting state", func() bool { return ch.State() == StateReconnecting })

	start := time.Now()
	if err := ch.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
	checkEvents(t, rec.connected(), []bool{true, false, false})
}

func TestChannel_SendsKeepAlivePings(t *testing.T) {
	hub := newMockHub(t)
	ch, _, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, func(cfg *ChannelConfig) {
		cfg.KeepAliveInterval = 20 * time.Millisecond
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hc := hub.waitConn(t)
	hc.waitMessage(t, hubproto.TypePing)
}

func TestChannel_SilentServerTriggersReconnect(t *testing.T) {
	hub := newMockHub(t)
	ch, rec, _ := newTestChannel(t, hub, &fakeCreds{token: "tok"}, func(cfg *ChannelConfig) {
		cfg.ServerTimeout = 100 * time.Millisecond
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	hub.waitConn(t)
	hub.waitConn(t)

	got := rec.waitLen(t, 3)
	checkEvents(t, got[:3], []bool{true, false, true})
}
