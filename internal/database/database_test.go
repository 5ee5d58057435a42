// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/config"
)

func testConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Path:                   filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory:              "512MB",
		Threads:                2,
		PreserveInsertionOrder: true,
	}
}

func TestNewCreatesSchema(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))

	counts, err := db.GetTableCounts(context.Background())
	require.NoError(t, err)
	require.Zero(t, counts.Schedules)
	require.Zero(t, counts.FlatSchedules)
}

func TestCreateScheduleLocationIndexesIdempotent(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateScheduleLocationIndexes(ctx))
	require.NoError(t, db.CreateScheduleLocationIndexes(ctx))
}

func TestCheckpointAndClose(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, db.Checkpoint(context.Background()))
	require.NoError(t, db.Close())
}

func TestNewSessionSharesCommittedWrites(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	connA, err := db.NewSession(ctx)
	require.NoError(t, err)
	defer connA.Close()

	connB, err := db.NewSession(ctx)
	require.NoError(t, err)
	defer connB.Close()

	_, err = connA.ExecContext(ctx, "INSERT INTO headers (identity) VALUES ('test-header')")
	require.NoError(t, err)

	var count int
	require.NoError(t, connB.QueryRowContext(ctx, "SELECT COUNT(*) FROM headers WHERE identity = 'test-header'").Scan(&count))
	require.Equal(t, 1, count)
}
