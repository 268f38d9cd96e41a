// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package services

import (
	"context"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService runs the browser fan-out hub under supervision.
type WebSocketHubService struct {
	hub ContextHub
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture.
func (w *WebSocketHubService) String() string {
	return "websocket-hub"
}

// SubscribeFunc installs a subscription and returns its cancel function.
type SubscribeFunc func() (unsubscribe func())

// SubscriptionService holds a subscription for as long as it is served.
// A restart re-subscribes, so the hub keeps following the session
// controller's events across hub restarts.
//
//	tree.AddStreamingService(services.NewSubscriptionService("hub-bridge", func() func() {
//		return hub.Follow(controller.Events())
//	}))
type SubscriptionService struct {
	name      string
	subscribe SubscribeFunc
}

// NewSubscriptionService creates a service named name around subscribe.
func NewSubscriptionService(name string, subscribe SubscribeFunc) *SubscriptionService {
	return &SubscriptionService{name: name, subscribe: subscribe}
}

// Serve implements suture.Service.
func (s *SubscriptionService) Serve(ctx context.Context) error {
	unsubscribe := s.subscribe()
	defer unsubscribe()
	<-ctx.Done()
	return ctx.Err()
}

// String implements fmt.Stringer for suture.
func (s *SubscriptionService) String() string {
	return s.name
}
