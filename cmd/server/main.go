// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package main is the entry point for the ThreatLens server.
//
// ThreatLens is a self-hosted security analytics service that runs incoming
// security events through a rule engine and an ML threat model in parallel,
// merges both verdicts into a single risk assessment, and pushes live
// updates to dashboards over WebSocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and config files (Koanf v2)
//  2. Rule engine: built-in detection rules configured from RULES_* settings
//  3. Scoring service: baseline model, or a fresh training run at boot
//  4. Assessment archive: BadgerDB persistence behind a circuit breaker (optional)
//  5. Internal bus and WebSocket hub: real-time fan-out to clients
//  6. NATS forwarder (optional, -tags nats): mirrors updates to external consumers
//  7. HTTP server: REST API, Prometheus metrics and the WebSocket endpoint
//
// All long-running components run under a suture supervision tree with
// automatic restart and backoff.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Build Tags
//
//	go build ./cmd/server              # default build
//	go build -tags nats ./cmd/server   # enable NATS forwarding
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete
//   - Drains the archive consumer and closes the Badger store
//
// # Example Usage
//
// Development with defaults:
//
//	HTTP_PORT=8085 LOG_LEVEL=debug ./threatlens
//
// Production with archive and NATS forwarding:
//
//	export ENVIRONMENT=production
//	export ARCHIVE_PATH=/data/threatlens/archive
//	export NATS_ENABLED=true
//	export NATS_URL=nats://nats:4222
//	./threatlens
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/threatlens/internal/api"
	"github.com/tomtom215/threatlens/internal/archive"
	"github.com/tomtom215/threatlens/internal/bus"
	"github.com/tomtom215/threatlens/internal/config"
	"github.com/tomtom215/threatlens/internal/dashboard"
	"github.com/tomtom215/threatlens/internal/forward"
	"github.com/tomtom215/threatlens/internal/logging"
	"github.com/tomtom215/threatlens/internal/pipeline"
	"github.com/tomtom215/threatlens/internal/scoring"
	"github.com/tomtom215/threatlens/internal/supervisor"
	"github.com/tomtom215/threatlens/internal/supervisor/services"
	ws "github.com/tomtom215/threatlens/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Bool("archive_enabled", cfg.Archive.Enabled).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting ThreatLens with supervisor tree")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rule engine with built-in rules configured from settings
	engine, err := buildRuleEngine(cfg.Rules)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure detection rules")
	}

	// Scoring service. The baseline model serves predictions immediately;
	// a startup training run replaces it when configured.
	scorer := scoring.NewService(nil, logging.WithComponent("scoring"))
	if cfg.Scoring.TrainOnStartup {
		result, err := scorer.Retrain(ctx, scoring.RetrainingConfig{
			SampleCount:  cfg.Scoring.SampleCount,
			LearningRate: cfg.Scoring.LearningRate,
			Seed:         cfg.Scoring.Seed,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Startup model training failed")
		}
		logging.Info().
			Int("version", result.ModelVersion).
			Float64("accuracy", result.Accuracy).
			Msg("Startup model training complete")
	} else {
		scorer.SetModel(scoring.BaselineModel())
		logging.Info().Msg("Baseline threat model installed")
	}

	// Create structured logger for supervisor using our slog adapter.
	// This bridges zerolog to slog for sutureslog compatibility.
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Internal bus carrying THREAT_UPDATE, ANOMALY_DETECTED and
	// MODEL_METRICS between the pipeline and its consumers.
	broadcast := bus.New(cfg.Bus.MailboxCapacity)
	defer broadcast.Close()

	// WebSocket hub plus the bridge draining the bus into it
	wsHub := ws.NewHub()
	tree.AddMessagingService(wsHub)
	tree.AddMessagingService(ws.NewBridge(wsHub, broadcast))

	// Assessment archive (optional)
	var (
		store      *archive.Store
		archivePub wmmessage.Publisher
	)
	if cfg.Archive.Enabled {
		store, err = archive.Open(cfg.Archive, logging.WithComponent("archive"))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open assessment archive")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing assessment archive")
			}
		}()

		// Writes flow through an in-process pub/sub so a slow Badger
		// compaction never blocks the analysis path.
		pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		archivePub = pubsub
		tree.AddStorageService(archive.NewConsumer(store, pubsub, logging.WithComponent("archive")))
		tree.AddStorageService(services.NewArchiveGCService(store, cfg.Archive.GCInterval))
		logging.Info().
			Str("path", cfg.Archive.Path).
			Bool("in_memory", cfg.Archive.InMemory).
			Msg("Assessment archive enabled")
	} else {
		logging.Info().Msg("Assessment archive disabled - assessments are not persisted")
	}

	// NATS forwarding (optional, requires -tags nats)
	initForwarder(cfg, broadcast, tree)

	dash := dashboard.NewAggregator(cfg.Dashboard.WindowCapacity)

	processor := pipeline.NewProcessor(
		cfg.Pipeline,
		engine,
		scorer,
		dash,
		broadcast,
		archivePub,
		logging.WithComponent("pipeline"),
	)

	// HTTP layer
	handler := api.NewHandler(cfg, processor, engine, scorer, dash, store, wsHub, logging.WithComponent("api"))
	router := api.NewRouter(handler, api.NewChiMiddleware(api.NewChiMiddlewareConfigFromSecurity(cfg.Security)))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// initForwarder adds the NATS forwarder to the tree when NATS is enabled.
// Without the nats build tag the constructor reports unavailability and the
// server runs on without forwarding.
func initForwarder(cfg *config.Config, broadcast *bus.Bus, tree *supervisor.SupervisorTree) {
	if !cfg.NATS.Enabled {
		return
	}

	fwd, err := forward.NewForwarder(cfg.NATS, broadcast, logging.WithComponent("forward"))
	if err != nil {
		logging.Warn().Err(err).Msg("NATS forwarding unavailable")
		return
	}

	tree.AddMessagingService(fwd)
	logging.Info().
		Str("url", cfg.NATS.URL).
		Str("subject_prefix", cfg.NATS.SubjectPrefix).
		Msg("NATS forwarder added to supervisor tree")
}
