// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Command schema manages the rail schedule database's table layout. It
// exposes two mutually exclusive actions, exactly one of which must be
// given: create-all-tables (idempotent - the same DDL New() already runs
// on startup) and drop-all-tables (for resetting a database between full
// reloads).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/logging"
)

func main() {
	createAll := flag.Bool("create-all-tables", false, "create every table if it does not already exist")
	dropAll := flag.Bool("drop-all-tables", false, "drop every table")
	flag.Parse()

	if *createAll == *dropAll {
		fmt.Fprintln(os.Stderr, "exactly one of -create-all-tables or -drop-all-tables is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("schema: load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("schema: open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("schema: close database")
		}
	}()

	ctx := context.Background()
	if *dropAll {
		if err := db.DropAllTables(ctx); err != nil {
			logging.Fatal().Err(err).Msg("schema: drop all tables")
		}
		logging.Info().Msg("schema: dropped all tables")
		return
	}

	// database.New already creates every table as part of its startup
	// schema migration; this action exists so the CLI surface names it
	// explicitly and it can be re-run on an existing database as a no-op.
	logging.Info().Msg("schema: all tables present")
}
