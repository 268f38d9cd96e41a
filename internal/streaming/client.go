// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/events"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/models"
)

// Channel names.
const (
	RoiChannelName      = "roi"
	PositionChannelName = "position"

	// AggregateChannel names events published on Client.Status.
	AggregateChannel = "all"
)

// Hub targets.
const (
	TargetStateChanged             = "StateChanged"
	TargetReceiveMessage           = "receivemessage"
	TargetVehicleJourneyAssignment = "vehiclejourneyassignment"
	TargetDeviationCase            = "deviationcase"
	TargetPositionRealtimeData     = "PositionRealtimeData"
	TargetPositionUpdated          = "PositionUpdated"
)

// AggregateMode selects how the two channel states combine into Connected.
type AggregateMode string

const (
	// AggregateAll reports connected only while both channels are.
	AggregateAll AggregateMode = "all"

	// AggregateLast reports the most recent event from either channel.
	AggregateLast AggregateMode = "last"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	RoiURL      string
	PositionURL string

	// Channel carries the settings shared by both channels. Name and URL
	// are ignored.
	Channel ChannelConfig

	// AggregateMode defaults to AggregateAll.
	AggregateMode AggregateMode
}

// Client composes the ROI and position channels behind typed routers.
type Client struct {
	roi      *Channel
	position *Channel
	mode     AggregateMode

	roiStates *events.Router[models.RoiState]
	positions *events.Router[models.VehiclePosition]
	status    *events.Router[ConnectionEvent]

	// publishMu serializes aggregate updates with their publication so
	// events leave in order; statusMu only guards the fields and is never
	// held while subscribers run.
	publishMu sync.Mutex
	statusMu  sync.Mutex
	channelUp map[string]bool
	connected bool

	mu       sync.Mutex
	disposed bool
}

// NewClient builds both channels and registers their hub handlers.
func NewClient(cfg ClientConfig, creds auth.CredentialSource) (*Client, error) {
	if cfg.RoiURL == "" || cfg.PositionURL == "" {
		return nil, errors.New("both roi and position hub URLs are required")
	}
	switch cfg.AggregateMode {
	case "":
		cfg.AggregateMode = AggregateAll
	case AggregateAll, AggregateLast:
	default:
		return nil, fmt.Errorf("unknown aggregate mode %q", cfg.AggregateMode)
	}

	roiCfg := cfg.Channel
	roiCfg.Name = RoiChannelName
	roiCfg.URL = cfg.RoiURL

	posCfg := cfg.Channel
	posCfg.Name = PositionChannelName
	posCfg.URL = cfg.PositionURL

	c := &Client{
		roi:       NewChannel(roiCfg, creds),
		position:  NewChannel(posCfg, creds),
		mode:      cfg.AggregateMode,
		roiStates: events.NewRouter[models.RoiState]("roi"),
		positions: events.NewRouter[models.VehiclePosition]("position"),
		status:    events.NewRouter[ConnectionEvent]("status"),
		channelUp: make(map[string]bool, 2),
	}

	c.roi.On(TargetStateChanged, decodeInto(c.roiStates))
	for _, target := range []string{TargetReceiveMessage, TargetVehicleJourneyAssignment, TargetDeviationCase} {
		c.roi.On(target, ignore(RoiChannelName, target))
	}

	c.position.Stream(TargetPositionRealtimeData, decodeInto(c.positions))
	c.position.On(TargetPositionUpdated, decodeInto(c.positions))
	c.position.On(TargetReceiveMessage, ignore(PositionChannelName, TargetReceiveMessage))

	c.roi.OnStatus(c.onChannelStatus)
	c.position.OnStatus(c.onChannelStatus)
	return c, nil
}

func decodeInto[T any](r *events.Router[T]) Handler {
	return func(payload json.RawMessage) error {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("decode %s: %w", r.Name(), err)
		}
		r.Publish(v)
		return nil
	}
}

func ignore(channel, target string) Handler {
	return func(payload json.RawMessage) error {
		logging.Debug().Str("channel", channel).Str("target", target).RawJSON("payload", payload).Msg("Ignoring hub message")
		return nil
	}
}

// RoiChannel returns the ROI channel.
func (c *Client) RoiChannel() *Channel { return c.roi }

// PositionChannel returns the position channel.
func (c *Client) PositionChannel() *Channel { return c.position }

// Roi returns the router for decoded ROI state changes.
func (c *Client) Roi() *events.Router[models.RoiState] { return c.roiStates }

// Positions returns the router for decoded vehicle positions.
func (c *Client) Positions() *events.Router[models.VehiclePosition] { return c.positions }

// Status returns the router for aggregate connection events. Subscribers
// may call Connected and States; they must not call StartAll, StopAll or
// Dispose, which publish on this router.
func (c *Client) Status() *events.Router[ConnectionEvent] { return c.status }

// Mode returns the aggregate mode in use.
func (c *Client) Mode() AggregateMode { return c.mode }

// Connected returns the aggregate connection flag.
func (c *Client) Connected() bool {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.connected
}

// States returns each channel's current state keyed by channel name.
func (c *Client) States() map[string]State {
	return map[string]State{
		RoiChannelName:      c.roi.State(),
		PositionChannelName: c.position.State(),
	}
}

func (c *Client) onChannelStatus(ev ConnectionEvent) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.statusMu.Lock()
	c.channelUp[ev.Channel] = ev.Connected
	next := ev.Connected
	if c.mode == AggregateAll {
		next = c.channelUp[RoiChannelName] && c.channelUp[PositionChannelName]
	}
	changed := next != c.connected
	c.connected = next
	c.statusMu.Unlock()

	if changed {
		c.publish(next)
	}
}

// publish must be called with publishMu held.
func (c *Client) publish(connected bool) {
	state := StateClosed
	if connected {
		state = StateConnected
	}
	c.status.Publish(ConnectionEvent{Channel: AggregateChannel, Connected: connected, State: state})
}

// StartAll starts both channels concurrently. A failure of one channel does
// not prevent the other from connecting; the result is nil only when both
// started.
func (c *Client) StartAll(ctx context.Context) error {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return ErrDisposed
	}

	start := time.Now()
	var roiErr, posErr error
	var wg conc.WaitGroup
	wg.Go(func() { roiErr = c.roi.Start(ctx) })
	wg.Go(func() { posErr = c.position.Start(ctx) })
	wg.Wait()

	err := errors.Join(roiErr, posErr)
	logging.Info().
		Err(err).
		Str("roi_state", c.roi.State().String()).
		Str("position_state", c.position.State().String()).
		Dur("duration", time.Since(start)).
		Msg("Streaming channels started")
	return err
}

// StopAll stops both channels and then publishes a disconnected aggregate
// event, even when nothing was running.
func (c *Client) StopAll(ctx context.Context) error {
	var roiErr, posErr error
	var wg conc.WaitGroup
	wg.Go(func() { roiErr = c.roi.Stop(ctx) })
	wg.Go(func() { posErr = c.position.Stop(ctx) })
	wg.Wait()

	c.publishMu.Lock()
	c.statusMu.Lock()
	c.channelUp[RoiChannelName] = false
	c.channelUp[PositionChannelName] = false
	c.connected = false
	c.statusMu.Unlock()
	c.publish(false)
	c.publishMu.Unlock()

	return errors.Join(roiErr, posErr)
}

// Dispose stops both channels; later StartAll calls return ErrDisposed.
func (c *Client) Dispose(ctx context.Context) error {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
	return c.StopAll(ctx)
}
