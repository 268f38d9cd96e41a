// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// mockService fails the first failures calls to Serve, then runs until
// cancelled.
type mockService struct {
	name       string
	failures   int32
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func newMockService(name string, failures int) *mockService {
	return &mockService{name: name, failures: int32(failures)}
}

func (m *mockService) Serve(ctx context.Context) error {
	n := m.startCount.Add(1)
	defer m.stopCount.Add(1)
	if n <= m.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string {
	return m.name
}

// stuckService ignores cancellation until release is closed.
type stuckService struct {
	release chan struct{}
}

func (s *stuckService) Serve(context.Context) error {
	<-s.release
	return nil
}

func (s *stuckService) String() string {
	return "stuck"
}
