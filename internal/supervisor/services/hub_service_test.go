// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockHub struct {
	runs atomic.Int32
}

func (m *mockHub) RunWithContext(ctx context.Context) error {
	m.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService_Serve(t *testing.T) {
	hub := &mockHub{}
	svc := NewWebSocketHubService(hub)
	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q, want websocket-hub", svc.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
	}
	if hub.runs.Load() != 1 {
		t.Errorf("RunWithContext calls = %d, want 1", hub.runs.Load())
	}
}

func TestSubscriptionService_HoldsSubscription(t *testing.T) {
	var subscribed, unsubscribed atomic.Int32
	svc := NewSubscriptionService("hub-bridge", func() func() {
		subscribed.Add(1)
		return func() { unsubscribed.Add(1) }
	})
	if svc.String() != "hub-bridge" {
		t.Errorf("String() = %q, want hub-bridge", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for subscribed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if unsubscribed.Load() != 0 {
		t.Fatal("unsubscribed while still serving")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if subscribed.Load() != 1 || unsubscribed.Load() != 1 {
		t.Errorf("subscribe/unsubscribe = %d/%d, want 1/1", subscribed.Load(), unsubscribed.Load())
	}
}
