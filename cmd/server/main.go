// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package main is the entry point for the NanoNVR server.
//
// NanoNVR sits in front of a ZLMediaKit instance and turns its raw hook
// callbacks into durable recording state: a channel registry tracks each
// camera's lifecycle, a policy engine decides when recording should run,
// and a segment catalog indexes the recordings ZLMediaKit produces so
// playback queries can resolve any time window into segments and gaps.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config file, and
//     environment variables (Koanf v2)
//  2. Database: DuckDB catalog for channel configs and segment rows
//  3. Channel Registry: rehydrates persisted channels, all idle on boot
//  4. NATS JetStream: embedded broker (default) plus the lifecycle
//     stream that buffers engine hook events
//  5. Ingest pipeline: Watermill router consuming lifecycle events with
//     durable BadgerDB dedupe
//  6. Policy Engine: converges recording state per channel policy
//  7. HTTP Server: operator REST API, engine webhook endpoint, and
//     WebSocket channel-state feed
//
// Everything long-running sits under a suture supervision tree with
// data, messaging, and api layers so a crash in one layer restarts only
// that layer's services.
//
// # Configuration
//
// Highest priority wins: environment variables, then config.yaml, then
// built-in defaults. The two values with no useful default are the
// engine connection:
//
//	export ENGINE_URL=http://127.0.0.1:8080
//	export ENGINE_SECRET=<api_secret from ZLMediaKit config.ini>
//	./nanonvr
//
// Point ZLMediaKit's hook URLs at /api/v1/engine/hooks. Optionally set
// ENGINE_WEBHOOK_TOKEN and configure the engine to send it in the
// X-Engine-Token header.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the ingest router finishes the messages it holds,
// and the database and dedupe index close cleanly. Events published to
// JetStream while the consumer is down replay on the next start.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/nanonvr/internal/api"
	"github.com/tomtom215/nanonvr/internal/catalog"
	"github.com/tomtom215/nanonvr/internal/config"
	"github.com/tomtom215/nanonvr/internal/database"
	"github.com/tomtom215/nanonvr/internal/engine"
	"github.com/tomtom215/nanonvr/internal/ingest"
	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/playback"
	"github.com/tomtom215/nanonvr/internal/policy"
	"github.com/tomtom215/nanonvr/internal/registry"
	"github.com/tomtom215/nanonvr/internal/supervisor"
	ws "github.com/tomtom215/nanonvr/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("engine_url", cfg.Engine.URL).
		Str("db_path", cfg.Database.Path).
		Msg("Starting NanoNVR")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(db)
	if err := reg.Load(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load channel registry")
	}
	logging.Info().Int("channels", len(reg.List())).Msg("Channel registry loaded")

	cat := catalog.New(db)
	resolver := playback.New(cat)
	facade := engine.NewClient(&cfg.Engine)
	hub := ws.NewHub(reg)

	// Embedded NATS is the default deployment shape; an external broker
	// is a config switch away.
	if cfg.NATS.EmbeddedServer {
		ns, err := ingest.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer ns.Shutdown()
		cfg.NATS.URL = ns.ClientURL()
		logging.Info().Str("url", cfg.NATS.URL).Msg("Embedded NATS server started")
	}

	if err := ingest.EnsureStream(ctx, &cfg.NATS); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision lifecycle stream")
	}

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := ingest.NewPublisher(&cfg.NATS, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event publisher")
	}
	subscriber, err := ingest.NewSubscriber(&cfg.NATS, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event subscriber")
	}

	dedupe, err := ingest.NewDedupeIndex(cfg.Dedupe.Path, cfg.Dedupe.TTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open dedupe index")
	}
	defer func() {
		if err := dedupe.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dedupe index")
		}
	}()

	ingestor := ingest.NewIngestor(reg, cat, dedupe)
	router, err := ingest.NewRouter(&cfg.NATS, subscriber, publisher, ingestor, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build ingest router")
	}

	polEngine := policy.New(reg, facade, &cfg.Recording)
	gateway := ingest.NewGateway(publisher)

	handler := api.NewHandler(cfg, reg, cat, resolver, facade, polEngine, gateway, hub)
	httpHandler := api.NewRouter(handler, &cfg.Server)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(catalog.NewSweeper(cat, &cfg.Retention))
	tree.AddMessagingService(hub)
	tree.AddMessagingService(&ingest.RunRouter{Router: router})
	tree.AddMessagingService(polEngine)
	tree.AddAPIService(supervisor.NewHTTPServerService(&cfg.Server, httpHandler))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("NanoNVR stopped")
}
