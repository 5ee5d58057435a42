// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package database owns the DuckDB connection, schema, and prepared-statement
plumbing shared by every component that touches the schedule store: the CIF
parser, the flattening engine, the live movement ingester, and the schedule
refresher.

# Schema

See database_schema.go for the full DDL: headers, locations,
schedule_validities, schedules, associations, schedule_locations,
flat_reconstitution, flat_schedules, trust_movements, and flat_timing.

DuckDB has no triggers and no enforced ON DELETE CASCADE, so the
reconstitution queue that the original Postgres schema populated with a
BEFORE DELETE trigger is instead populated explicitly by whichever caller
deletes schedule_validities or flat_schedules rows. See internal/store and
internal/flatten.

# Connections

New opens one *sql.DB pool capped at runtime.NumCPU() open connections.
internal/flatten's worker pool checks out one *sql.Conn per worker via
NewSession so each worker's transaction stays isolated from the others.

# Migrations

migrations.go tracks applied schema changes in a schema_migrations table.
The initial schema lives entirely in database_schema.go; future changes are
appended as versioned Migration entries.
*/
package database
