// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Command cartographus runs the long-lived ingestion daemon: the live
// movement subscriber on the supervisor tree's ingest layer, and the
// flattening engine and schedule refresher on its processing layer.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/cartographus/internal/cif"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/flatten"
	"github.com/tomtom215/cartographus/internal/live"
	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/refresh"
	"github.com/tomtom215/cartographus/internal/supervisor"
	"github.com/tomtom215/cartographus/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	logging.Info().Msg("Starting cartographus ingestion daemon")

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

	registry := locations.NewRegistry()
	if err := registry.LoadCache(ctx, db.Conn()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load location cache")
	}

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	parser := cif.NewParser(registry)

	liveSubscriber := live.NewSubscriber(cfg.Live, db, registry)
	tree.AddIngestService(services.NewLiveIngesterService(liveSubscriber))
	logging.Info().Msg("Live movement subscriber added to supervisor tree")

	flattenEngine := flatten.New(db, cfg.Flatten)
	tree.AddProcessingService(services.NewWorkerService("flatten", flattenEngine))
	logging.Info().Msg("Flattening engine added to supervisor tree")

	refresher := refresh.New(db, parser, cfg.Refresh, cfg.CIF)
	tree.AddProcessingService(services.NewWorkerService("refresh", refresher))
	logging.Info().Msg("Schedule refresher added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
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

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("cartographus daemon stopped gracefully")
}
