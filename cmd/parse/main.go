// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Command parse applies one CIF extract file to the schedule store. It
// takes the extract path as its sole positional argument and an
// optional -no-corpus flag to skip the CORPUS-based location bootstrap
// that would otherwise run before a from-scratch load.
//
// Grounded on _examples/original_source/parser.py's __main__ entry
// point, which accepted the same path-plus-corpus-skip arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tomtom215/cartographus/internal/cif"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/logging"
)

func main() {
	noCorpus := flag.Bool("no-corpus", false, "skip the CORPUS-based location bootstrap")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: parse [-no-corpus] <extract-path>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("parse: load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("parse: open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("parse: close database")
		}
	}()

	ctx := context.Background()

	registry := locations.NewRegistry()
	if err := registry.LoadCache(ctx, db.Conn()); err != nil {
		logging.Fatal().Err(err).Msg("parse: load location cache")
	}

	skipCorpus := *noCorpus || cfg.CIF.SkipCorpus
	if !skipCorpus && cfg.CIF.CorpusPath != "" {
		inserted, err := locations.Bootstrap(ctx, db.Conn(), cfg.CIF.CorpusPath, false)
		if err != nil {
			logging.Fatal().Err(err).Msg("parse: bootstrap CORPUS locations")
		}
		logging.Info().Int("inserted", inserted).Msg("parse: CORPUS bootstrap complete")
		if err := registry.LoadCache(ctx, db.Conn()); err != nil {
			logging.Fatal().Err(err).Msg("parse: reload location cache after bootstrap")
		}
	}

	f, err := os.Open(path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", path).Msg("parse: open extract file")
	}
	defer func() { _ = f.Close() }()

	conn, err := db.NewSession(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("parse: open session")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("parse: begin transaction")
	}

	parser := cif.NewParser(registry)
	result, err := parser.Parse(ctx, tx, f)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Error().Err(rbErr).Msg("parse: rollback after parse failure")
		}
		logging.Fatal().Err(err).Msg("parse: parse extract")
	}

	if err := tx.Commit(); err != nil {
		logging.Fatal().Err(err).Msg("parse: commit extract")
	}

	if result.Header.IsFullExtract() && result.SawTerminator {
		if err := db.CreateScheduleLocationIndexes(ctx); err != nil {
			logging.Fatal().Err(err).Msg("parse: build schedule_locations indexes")
		}
		logging.Info().Msg("parse: built schedule_locations indexes after full extract")
	}

	logging.Info().
		Str("identity", result.Header.Identity).
		Int("records_parsed", result.RecordsParsed).
		Bool("terminated", result.SawTerminator).
		Msg("parse: extract applied")
}
