// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package store holds the row-level CRUD operations for the normalised
// schedule template tables, the flattened per-date projection, and the
// live movement log. Every function takes an Execer so callers can run
// them inside the CIF parser's single transaction, a flattening worker's
// per-connection session, or the live ingester's per-batch transaction.
//
// Grounded on _examples/original_source/{parser,flat_maintenance,trust,
// database_structure}.py for exact statement semantics, and on the
// teacher's internal/database package for the Go idiom (prepared
// statements over database/sql, explicit context timeouts).
package store

import (
	"context"
	"database/sql"
)

// Execer is the subset of *sql.DB/*sql.Tx/*sql.Conn the store package
// needs. All three stdlib types satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
