// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package config provides centralized configuration management for the rail
schedule and movement ingestion system.

Configuration loads in three layers, lowest priority first:

 1. Defaults: sensible built-in defaults for every optional setting.
 2. Config file: an optional YAML file found via CONFIG_PATH or one of
    DefaultConfigPaths.
 3. Environment variables: override any setting, highest priority.

# Sections

  - CIFConfig: bulk interchange feed credentials and fetch URL template
  - LiveConfig: durable broker subscription (NATS JetStream standing in for
    the upstream STOMP broker)
  - RefreshConfig: the schedule refresher's catch-up window and circuit
    breaker
  - FlattenConfig: the flattening engine's worker pool and horizon
  - DatabaseConfig: the DuckDB-backed store
  - LoggingConfig: the zerolog-based structured logger

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatalf("failed to load config: %v", err)
	}

The Config struct is immutable after Load() returns and safe for concurrent
read access.
*/
package config
