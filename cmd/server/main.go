// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fleetwatch/internal/api"
	"github.com/tomtom215/fleetwatch/internal/config"
	"github.com/tomtom215/fleetwatch/internal/logging"
	"github.com/tomtom215/fleetwatch/internal/session"
	"github.com/tomtom215/fleetwatch/internal/streaming"
	"github.com/tomtom215/fleetwatch/internal/supervisor"
	"github.com/tomtom215/fleetwatch/internal/supervisor/services"
	ws "github.com/tomtom215/fleetwatch/internal/websocket"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggingSettings())

	logging.Info().
		Str("roi_url", cfg.Streaming.RoiURL).
		Str("position_url", cfg.Streaming.PositionURL).
		Str("auth_mode", cfg.Auth.Mode).
		Str("aggregate_mode", cfg.Streaming.AggregateMode).
		Msg("Configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Fleetwatch stopped with error")
		cancel()
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	sess, refreshSvc, err := buildSession(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := streaming.NewClient(cfg.Streaming.ClientConfig(), sess)
	if err != nil {
		return err
	}
	controller := session.NewController(sess, client, session.Config{
		StopTimeout: cfg.Streaming.StopTimeout,
	})

	hub := ws.NewHub(ws.ControllerSnapshot(controller))

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS is configured with wildcard origin (CORS_ORIGINS=*); any site can read live positions")
	}

	mw := api.NewChiMiddleware(middlewareConfig(cfg))
	handler := api.NewHandler(controller, client, sess, hub, mw.AllowedOrigins())
	router := api.NewRouter(handler, mw)

	server := &http.Server{
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	if refreshSvc != nil {
		tree.AddAuthService(refreshSvc)
	}
	tree.AddStreamingService(services.NewWebSocketHubService(hub))
	tree.AddStreamingService(services.NewSubscriptionService("hub-bridge", func() func() {
		return hub.Follow(controller.Events())
	}))
	tree.AddStreamingService(controller)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr(), cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
