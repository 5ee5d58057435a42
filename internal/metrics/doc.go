// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package metrics provides Prometheus metrics collection for the rail schedule
and live-movement ingestion pipeline.

This package implements application instrumentation using the Prometheus
client library, exposing metrics for monitoring throughput, errors, and
pipeline health across the CIF importer, the flattening engine, the live
movement subscriber, and the schedule refresher.

# Overview

The package provides metrics for:
  - DuckDB query performance
  - CIF fixed-width extract parsing
  - Schedule flattening jobs and the reconstitution queue
  - Live movement message ingestion
  - Schedule refresh runs and Network Rail feed circuit breaker state

# Available Metrics

Database Metrics:
  - duckdb_query_duration_seconds: Query execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed queries (counter)
    Labels: operation, table, error_type
  - duckdb_connection_pool_size: Active database connections (gauge)

CIF Extract Metrics:
  - cif_records_parsed_total: Records successfully parsed (counter)
    Labels: record_type (HD, TI, TA, TD, BS, BX, LO, LI, LT, AA, ZZ)
  - cif_parse_errors_total: Records rejected during parsing (counter)
    Labels: record_type
  - cif_extract_duration_seconds: Full import duration (histogram)
    Labels: extract_type (full, update)
  - cif_batch_flush_duration_seconds: Appender batch flush duration (histogram)

Flattening Metrics:
  - flatten_job_duration_seconds: Worker job duration (histogram)
  - flatten_schedules_processed_total: Schedules flattened (counter)
  - flatten_reconstitution_queue_depth: Pending flat_reconstitution rows (gauge)
  - flatten_workers_active: Active worker pool size (gauge)

Live Ingestion Metrics:
  - live_messages_consumed_total: Messages received (counter)
    Labels: message_type (0001, 0002, 0003, 0005, 0006, 0007, 0008)
  - live_messages_processed_total: Messages successfully applied (counter)
    Labels: message_type
  - live_messages_parse_failed_total: Messages that failed to parse (counter)
    Labels: message_type
  - live_processing_duration_seconds: Per-message processing time (histogram)
  - live_batch_flush_duration_seconds: Batch transaction commit time (histogram)
  - live_batch_size: Messages per batch flush (histogram)
  - live_consumer_lag: Pending messages in the durable subscription (gauge)
  - live_reconnects_total: Durable subscription reconnect attempts (counter)

Refresh and Circuit Breaker Metrics:
  - refresh_duration_seconds: Schedule refresh run duration (histogram)
  - refresh_errors_total: Refresh errors (counter)
    Labels: error_type (network, auth, decompress, parse, database, other)
  - refresh_last_success_timestamp: Unix timestamp of last success (gauge)
  - refresh_horizon_gap_days: Days between now and the validated extract horizon (gauge)
  - circuit_breaker_state: Current state (gauge, 0=closed 1=half-open 2=open)
    Labels: name
  - circuit_breaker_requests_total: Requests by outcome (counter)
    Labels: name, result
  - circuit_breaker_state_transitions_total: State transitions (counter)
    Labels: name, from_state, to_state

System Metrics:
  - app_info: Build information (gauge)
    Labels: version, go_version
  - app_uptime_seconds: Process uptime (gauge)

# Usage

Metrics are package-level prometheus collectors registered via promauto,
so importing this package is sufficient to register them with the default
registry. Call the Record..., Update... and Set... helper functions from the relevant
component rather than touching the collectors directly:

	start := time.Now()
	err := db.ExecContext(ctx, query)
	metrics.RecordDBQuery("INSERT", "schedule_locations", time.Since(start), err)

# Error Classification

RecordRefresh classifies refresh errors into coarse buckets (network, auth,
decompress, parse, database, other) by substring-matching the error message,
avoiding the need to thread structured error types through the HTTP client.
*/
package metrics
