// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package session binds the streaming client to the user session: while the
// session is authenticated both channels run and their data is kept in
// keyed stores; when it ends the channels stop and the stores are cleared.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/events"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/models"
	"github.com/tomtom215/fleetwatch/internal/store"
	"github.com/tomtom215/fleetwatch/internal/streaming"
)

// StateSource reports session state changes.
type StateSource interface {
	State() auth.SessionState
	Subscribe(fn func(auth.SessionState)) (unsubscribe func())
}

// Streamer is the part of *streaming.Client the controller drives.
type Streamer interface {
	Roi() *events.Router[models.RoiState]
	Positions() *events.Router[models.VehiclePosition]
	Status() *events.Router[streaming.ConnectionEvent]
	StartAll(ctx context.Context) error
	StopAll(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// EventKind identifies a controller event.
type EventKind string

// Controller event kinds.
const (
	EventRoiState   EventKind = "roi_state"
	EventPosition   EventKind = "position"
	EventConnection EventKind = "connection"
	EventReset      EventKind = "reset"
)

// Event is published after the stores changed. Only the field matching Kind
// is set.
type Event struct {
	Kind       EventKind
	Generation uint64
	Roi        models.RoiState
	Position   models.VehiclePosition
	Connected  bool
}

// Config configures a Controller.
type Config struct {
	// StopTimeout bounds StopAll when a scope ends. Default: 5s
	StopTimeout time.Duration
}

// Controller is the session-bound streaming actor. Session observations are
// queued by Observe and handled in order by Serve.
type Controller struct {
	source StateSource
	client Streamer
	cfg    Config

	roi       *store.Keyed[string, models.RoiState]
	positions *store.Keyed[string, models.VehiclePosition]
	events    *events.Router[Event]
	connected atomic.Bool

	queueMu sync.Mutex
	queue   []auth.SessionState
	wake    chan struct{}

	// mu guards the scope; callbacks check their generation under it.
	mu          sync.Mutex
	generation  uint64
	unsubscribe []func()
	cancelStart context.CancelFunc

	// active is only touched by the actor goroutine.
	active bool
}

// NewController creates a controller. Call Serve to run it.
func NewController(source StateSource, client Streamer, cfg Config) *Controller {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Controller{
		source:    source,
		client:    client,
		cfg:       cfg,
		roi:       store.NewKeyed("roi", models.RoiState.Key),
		positions: store.NewKeyed("position", models.VehiclePosition.Key),
		events:    events.NewRouter[Event]("session"),
		wake:      make(chan struct{}, 1),
	}
}

// Roi returns the ROI state store.
func (c *Controller) Roi() *store.Keyed[string, models.RoiState] { return c.roi }

// Positions returns the vehicle position store.
func (c *Controller) Positions() *store.Keyed[string, models.VehiclePosition] { return c.positions }

// Events returns the router of store changes.
func (c *Controller) Events() *events.Router[Event] { return c.events }

// Connected reports the streaming connection flag of the current scope.
func (c *Controller) Connected() bool { return c.connected.Load() }

// Generation returns the current scope generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Observe queues a session state observation. It never blocks.
func (c *Controller) Observe(st auth.SessionState) {
	c.queueMu.Lock()
	c.queue = append(c.queue, st)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) drain() []auth.SessionState {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

// Serve runs the actor until ctx is cancelled, then disposes the client.
func (c *Controller) Serve(ctx context.Context) error {
	unsubscribe := c.source.Subscribe(c.Observe)
	defer unsubscribe()
	c.Observe(c.source.State())

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.wake:
			for _, st := range c.drain() {
				c.handle(ctx, st)
			}
		}
	}
}

// String implements fmt.Stringer for suture.
func (c *Controller) String() string {
	return "session-controller"
}

func (c *Controller) handle(ctx context.Context, st auth.SessionState) {
	active := st.Active()
	switch {
	case active && !c.active:
		c.beginScope(ctx)
	case !active && c.active:
		c.endScope("session ended")
	case !active:
		// Nothing runs; re-assert the idle state.
		c.stopAll()
		c.connected.Store(false)
	}
	c.active = active
}

func (c *Controller) beginScope(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	startCtx, cancel := context.WithCancel(ctx)
	c.cancelStart = cancel
	c.unsubscribe = []func(){
		c.client.Roi().Subscribe(func(s models.RoiState) { c.applyRoi(gen, s) }),
		c.client.Positions().Subscribe(func(p models.VehiclePosition) { c.applyPosition(gen, p) }),
		c.client.Status().Subscribe(func(ev streaming.ConnectionEvent) { c.applyConnected(gen, ev.Connected) }),
	}
	c.mu.Unlock()

	logging.Info().Uint64("generation", gen).Msg("Session active, starting streaming")

	go func() {
		// A scope that ended before this goroutine ran must not start anything.
		if startCtx.Err() != nil || !c.current(gen) {
			return
		}
		err := c.client.StartAll(startCtx)
		if !c.current(gen) {
			return
		}
		if err != nil {
			logging.Warn().Err(err).Uint64("generation", gen).Msg("Streaming did not fully start")
			return
		}
		logging.Info().Uint64("generation", gen).Msg("Streaming started")
	}()
}

func (c *Controller) endScope(reason string) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	unsubscribe := c.unsubscribe
	cancel := c.cancelStart
	c.unsubscribe = nil
	c.cancelStart = nil
	c.roi.Clear()
	c.positions.Clear()
	c.connected.Store(false)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, u := range unsubscribe {
		u()
	}
	c.stopAll()

	logging.Info().Uint64("generation", gen).Str("reason", reason).Msg("Streaming scope ended, state cleared")
	c.events.Publish(Event{Kind: EventReset, Generation: gen})
	c.events.Publish(Event{Kind: EventConnection, Generation: gen, Connected: false})
}

func (c *Controller) stopAll() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
	defer cancel()
	if err := c.client.StopAll(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to stop streaming channels cleanly")
	}
}

func (c *Controller) shutdown() {
	if c.active {
		c.endScope("shutdown")
		c.active = false
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
	defer cancel()
	if err := c.client.Dispose(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to dispose streaming client")
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// applyRoi and friends write under mu so a scope end cannot interleave
// between the generation check and the store write.
func (c *Controller) applyRoi(gen uint64, s models.RoiState) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.roi.ApplyUpsert(s)
	c.mu.Unlock()
	c.events.Publish(Event{Kind: EventRoiState, Generation: gen, Roi: s})
}

func (c *Controller) applyPosition(gen uint64, p models.VehiclePosition) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.positions.ApplyUpsert(p)
	c.mu.Unlock()
	c.events.Publish(Event{Kind: EventPosition, Generation: gen, Position: p})
}

func (c *Controller) applyConnected(gen uint64, connected bool) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	changed := c.connected.Swap(connected) != connected
	c.mu.Unlock()
	if changed {
		c.events.Publish(Event{Kind: EventConnection, Generation: gen, Connected: connected})
	}
}
