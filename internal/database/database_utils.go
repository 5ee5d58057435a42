// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
database_utils.go - Database Utility Functions

Profiling:
  - enableProfiling(): Enables DuckDB query profiling when ENABLE_QUERY_PROFILING=true

Context Management:
  - ensureContext(): Creates a context with 30-second timeout if none provided

Backup Support:
  - Checkpoint(): Forces a WAL checkpoint for consistent backup state
  - GetDatabasePath(): Returns the database file path for backup operations
  - GetTableCounts(): Returns row counts for the core tables, used by tests
    to sanity-check a load

Environment Variables:
  - ENABLE_QUERY_PROFILING=true: Enable DuckDB profiling
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/cartographus/internal/logging"
)

// enableProfiling enables DuckDB query profiling for performance debugging.
func (db *DB) enableProfiling() error {
	if os.Getenv("ENABLE_QUERY_PROFILING") != "true" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "PRAGMA enable_profiling"); err != nil {
		return fmt.Errorf("failed to enable profiling: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, "PRAGMA profiling_mode = 'detailed'"); err != nil {
		return fmt.Errorf("failed to set profiling mode: %w", err)
	}

	logging.Info().Msg("Query profiling enabled (detailed mode)")
	return nil
}

// ensureContext creates a context with a 30-second timeout if none provided.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}

	return ctx, func() {}
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, "CHECKPOINT")
	if err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// GetDatabasePath returns the path to the database file.
func (db *DB) GetDatabasePath() string {
	return db.cfg.Path
}

// TableCounts reports row counts for the tables that matter for sanity
// checking a schedule load or flattening run.
type TableCounts struct {
	Schedules      int64
	ScheduleLocs   int64
	FlatSchedules  int64
	TrustMovements int64
	Reconstitution int64
}

// GetTableCounts returns row counts for the core tables.
func (db *DB) GetTableCounts(ctx context.Context) (TableCounts, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var counts TableCounts
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM schedules", &counts.Schedules},
		{"SELECT COUNT(*) FROM schedule_locations", &counts.ScheduleLocs},
		{"SELECT COUNT(*) FROM flat_schedules", &counts.FlatSchedules},
		{"SELECT COUNT(*) FROM trust_movements", &counts.TrustMovements},
		{"SELECT COUNT(*) FROM flat_reconstitution", &counts.Reconstitution},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return TableCounts{}, fmt.Errorf("failed to run %q: %w", q.query, err)
		}
	}

	return counts, nil
}
