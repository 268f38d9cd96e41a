// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetwatch/internal/auth"
	"github.com/tomtom215/fleetwatch/internal/config"
	"github.com/tomtom215/fleetwatch/internal/events"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/models"
	"github.com/tomtom215/fleetwatch/internal/streaming"
)

type tailOptions struct {
	Token       string
	RoiURL      string
	PositionURL string
	Channel     string
	Aggregate   string
	Status      bool
}

// line is one line of output.
type line struct {
	Kind string      `json:"kind"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// printer writes JSON lines. Router callbacks run on the channel read
// goroutines, so writes are serialized.
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func newPrinter(w io.Writer) *printer {
	return &printer{enc: json.NewEncoder(w), now: time.Now}
}

func (p *printer) print(kind string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(line{Kind: kind, At: p.now().UTC(), Data: data}); err != nil {
		logging.Error().Err(err).Str("kind", kind).Msg("Failed to write line")
	}
}

// follow subscribes p to the client routers. status may be nil.
func (p *printer) follow(
	roi *events.Router[models.RoiState],
	positions *events.Router[models.VehiclePosition],
	status *events.Router[streaming.ConnectionEvent],
) (unsubscribe func()) {
	unsubs := []func(){
		roi.Subscribe(func(s models.RoiState) { p.print("roi_state", s) }),
		positions.Subscribe(func(v models.VehiclePosition) { p.print("position", v) }),
	}
	if status != nil {
		unsubs = append(unsubs, status.Subscribe(func(ev streaming.ConnectionEvent) { p.print("connection", ev) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// clientConfig overlays the options on the loaded configuration.
func clientConfig(base *config.Config, opts tailOptions) (streaming.ClientConfig, error) {
	sc := base.Streaming
	if opts.RoiURL != "" {
		sc.RoiURL = opts.RoiURL
	}
	if opts.PositionURL != "" {
		sc.PositionURL = opts.PositionURL
	}
	switch opts.Aggregate {
	case "":
	case string(streaming.AggregateAll), string(streaming.AggregateLast):
		sc.AggregateMode = opts.Aggregate
	default:
		return streaming.ClientConfig{}, fmt.Errorf("invalid aggregate mode %q", opts.Aggregate)
	}
	return sc.ClientConfig(), nil
}

// selectChannels returns the channels named by which.
func selectChannels(client *streaming.Client, which string) ([]*streaming.Channel, error) {
	switch which {
	case "", "both":
		return []*streaming.Channel{client.RoiChannel(), client.PositionChannel()}, nil
	case streaming.RoiChannelName:
		return []*streaming.Channel{client.RoiChannel()}, nil
	case streaming.PositionChannelName:
		return []*streaming.Channel{client.PositionChannel()}, nil
	default:
		return nil, fmt.Errorf("invalid channel %q: want both, roi or position", which)
	}
}

func run(ctx context.Context, opts tailOptions, out io.Writer) error {
	if opts.Token == "" {
		return fmt.Errorf("a token is required (--token or HUB_TOKEN)")
	}
	base, err := config.LoadWithKoanf()
	if err != nil {
		return err
	}
	cc, err := clientConfig(base, opts)
	if err != nil {
		return err
	}

	client, err := streaming.NewClient(cc, auth.NewStaticSession(opts.Token))
	if err != nil {
		return err
	}
	channels, err := selectChannels(client, opts.Channel)
	if err != nil {
		return err
	}

	p := newPrinter(out)
	var status *events.Router[streaming.ConnectionEvent]
	if opts.Status {
		status = client.Status()
	}
	unsubscribe := p.follow(client.Roi(), client.Positions(), status)
	defer unsubscribe()

	var startErrs []error
	for _, ch := range channels {
		if err := ch.Start(ctx); err != nil {
			logging.Warn().Err(err).Str("channel", ch.Name()).Msg("Initial connect failed")
			startErrs = append(startErrs, err)
		}
	}
	if len(startErrs) == len(channels) {
		return errors.Join(startErrs...)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cc.Channel.StopTimeout+time.Second)
	defer cancel()
	return client.Dispose(stopCtx)
}
