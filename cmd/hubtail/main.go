// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Command hubtail connects to the streaming hubs with a static token and
// prints every ROI state, vehicle position and connection change as one JSON
// object per line.
//
//	hubtail --token "$HUB_TOKEN" --roi-url https://hub/streaming/roi \
//	    --position-url https://hub/streaming/position --channel both
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/tomtom215/fleetwatch/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "hubtail",
		Usage: "stream ROI states and vehicle positions as JSON lines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token presented to both hubs",
				EnvVars: []string{"HUB_TOKEN", "AUTH_STATIC_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "roi-url",
				Usage:   "ROI hub endpoint (defaults to configuration)",
				EnvVars: []string{"ROI_HUB_URL"},
			},
			&cli.StringFlag{
				Name:    "position-url",
				Usage:   "position hub endpoint (defaults to configuration)",
				EnvVars: []string{"POSITION_HUB_URL"},
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "channels to open: both, roi or position",
				Value: "both",
			},
			&cli.StringFlag{
				Name:  "aggregate",
				Usage: "aggregate connectivity mode: all or last",
			},
			&cli.BoolFlag{
				Name:  "status",
				Usage: "also print connection events",
				Value: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level for diagnostics on stderr",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Action: func(c *cli.Context) error {
			logging.Init(logging.Config{
				Level:     c.String("log-level"),
				Format:    "console",
				Timestamp: true,
				Output:    os.Stderr,
			})

			opts := tailOptions{
				Token:       c.String("token"),
				RoiURL:      c.String("roi-url"),
				PositionURL: c.String("position-url"),
				Channel:     c.String("channel"),
				Aggregate:   c.String("aggregate"),
				Status:      c.Bool("status"),
			}

			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, opts, os.Stdout)
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		logging.Fatal().Err(err).Send()
	}
}
