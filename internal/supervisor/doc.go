// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

/*
Package supervisor provides process supervision for fleetwatch using suture v4.

# Overview

Long-running services are organized into three layers:

	RootSupervisor ("fleetwatch")
	├── AuthSupervisor ("auth-layer")
	│   └── OIDCSession (proactive refresh, oidc mode only)
	├── StreamingSupervisor ("streaming-layer")
	│   ├── session.Controller
	│   ├── WebSocketHubService
	│   └── SubscriptionService ("hub-bridge")
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The streaming channels themselves are not supervised services: their
reconnect schedule lives in the streaming package, and the session
controller starts and stops them as the session changes. If the controller
crashes, its restart re-reads the session state and starts a fresh scope.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddStreamingService(controller)
	tree.AddStreamingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}

# Failure Handling

Each layer counts failures independently. The counter decays over
FailureDecay seconds; once it exceeds FailureThreshold the layer waits
FailureBackoff before restarting again.

# Debugging Shutdown Issues

Services that ignore cancellation past ShutdownTimeout are listed by
UnstoppedServiceReport once Serve has returned.

Supervisor events are logged through sutureslog into the slog bridge of the
logging package.
*/
package supervisor
