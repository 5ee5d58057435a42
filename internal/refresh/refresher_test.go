// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package refresh

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/cif"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/locations"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{
		Path:                   filepath.Join(t.TempDir(), "refresh_test.duckdb"),
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertHeader(t *testing.T, db *database.DB, extractDate time.Time) {
	t.Helper()
	_, err := db.Conn().ExecContext(context.Background(), `
		INSERT INTO headers (identity, extract_date, update_indicator)
		VALUES (?, ?, 'F')
	`, "test-extract", extractDate)
	require.NoError(t, err)
}

func newTestRefresher(t *testing.T, db *database.DB, cfg config.RefreshConfig) *Refresher {
	t.Helper()
	registry := locations.NewRegistry()
	parser := cif.NewParser(registry)
	return New(db, parser, cfg, config.CIFConfig{
		Username:          "user",
		Password:          "pass",
		UpdateURLTemplate: "https://example.invalid/CifFileAuthenticate?type=CIF_ALL_UPDATE_DAILY&day=toc-update-%s",
	})
}

func TestCatchUp_RefusesGapBeyondMaxGapDays(t *testing.T) {
	db := setupTestDB(t)
	insertHeader(t, db, time.Now().UTC().AddDate(0, 0, -10))

	r := newTestRefresher(t, db, config.RefreshConfig{MaxGapDays: 7, RequestTimeout: time.Second})
	err := r.catchUp(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "non-contiguous")
}

func TestCatchUp_NoopWhenAlreadyCurrent(t *testing.T) {
	db := setupTestDB(t)
	insertHeader(t, db, time.Now().UTC())

	r := newTestRefresher(t, db, config.RefreshConfig{MaxGapDays: 7, RequestTimeout: time.Second})
	err := r.catchUp(context.Background())
	require.NoError(t, err)
}

func TestCatchUp_NoHeaderIsAnError(t *testing.T) {
	db := setupTestDB(t)

	r := newTestRefresher(t, db, config.RefreshConfig{MaxGapDays: 7, RequestTimeout: time.Second})
	err := r.catchUp(context.Background())
	require.Error(t, err)
}

func TestWeekdayAbbrev(t *testing.T) {
	monday := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())
	require.Equal(t, "mon", weekdayAbbrev[monday.Weekday()])
}
