// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/model"
	"github.com/tomtom215/cartographus/internal/store"
)

// Tests live in an external store_test package (rather than store) because
// internal/store has no existing _test.go files to match a convention
// against, and an external test package better exercises the same public
// API internal/flatten and internal/cif consume.

func setupStoreTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{
		Path:                   filepath.Join(t.TempDir(), "store_test.duckdb"),
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func TestUpsertAssociation_ReviseUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	db := setupStoreTestDB(t)
	conn := db.Conn()

	a := model.Association{
		UID: "A11111", UIDAssoc: "B22222",
		ValidFrom: mustParseDate(t, "2026-01-01"), ValidTo: mustParseDate(t, "2026-06-30"),
		AssocDays: "1111100", Category: "JJ", DateIndicator: "S",
		Tiploc: "JUNCTN", Suffix: "1", SuffixAssoc: "2", Type: "T", STP: model.STPPermanent,
	}
	if err := store.UpsertAssociation(ctx, conn, a); err != nil {
		t.Fatalf("insert association: %v", err)
	}

	revised := a
	revised.ValidTo = mustParseDate(t, "2026-12-31")
	revised.Category = "VV"
	if err := store.UpsertAssociation(ctx, conn, revised); err != nil {
		t.Fatalf("revise association: %v", err)
	}

	var count int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM associations`).Scan(&count); err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the revise to update in place, got %d rows", count)
	}

	var category string
	if err := conn.QueryRowContext(ctx, `SELECT category FROM associations WHERE uid = ? AND uid_assoc = ?`,
		a.UID, a.UIDAssoc).Scan(&category); err != nil {
		t.Fatalf("query revised category: %v", err)
	}
	if category != "VV" {
		t.Fatalf("category = %q, want VV after revise", category)
	}
}

func TestDeleteAssociation_RemovesExactKey(t *testing.T) {
	ctx := context.Background()
	db := setupStoreTestDB(t)
	conn := db.Conn()

	validFrom := mustParseDate(t, "2026-02-01")
	a := model.Association{
		UID: "C33333", UIDAssoc: "D44444",
		ValidFrom: validFrom, ValidTo: mustParseDate(t, "2026-03-01"),
		AssocDays: "1111111", Type: "T", STP: model.STPOverlay,
	}
	if err := store.UpsertAssociation(ctx, conn, a); err != nil {
		t.Fatalf("insert association: %v", err)
	}

	if err := store.DeleteAssociation(ctx, conn, a.UID, a.UIDAssoc, validFrom, model.STPOverlay); err != nil {
		t.Fatalf("delete association: %v", err)
	}

	var count int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM associations`).Scan(&count); err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected the association to be deleted, got %d rows remaining", count)
	}
}

// TestUpsertValidity_LeavesFlattenedToUntouched confirms UpsertValidity's
// ON CONFLICT path never resets flattened_to, on either an "N" or an "R"
// transaction - matching parser.py's BS conflict clause, which never
// mentions the column. Only a following LO "R" revise clears it, and it
// does so through the separate ClearFlattenedTo call (exercised below),
// not through UpsertValidity itself.
func TestUpsertValidity_LeavesFlattenedToUntouched(t *testing.T) {
	ctx := context.Background()
	db := setupStoreTestDB(t)
	conn := db.Conn()

	from := mustParseDate(t, "2026-04-01")
	to := mustParseDate(t, "2026-04-30")
	v := model.ScheduleValidity{
		UID: "E55555", ValidFrom: from, ValidTo: to,
		Weekdays: "1111100", BankHolidayRunning: "N", STP: model.STPPermanent,
	}
	iid, err := store.UpsertValidity(ctx, conn, v)
	if err != nil {
		t.Fatalf("insert validity: %v", err)
	}

	horizonEnd := mustParseDate(t, "2026-04-14")
	if err := store.SetFlattenedTo(ctx, conn, iid, horizonEnd); err != nil {
		t.Fatalf("set flattened_to: %v", err)
	}

	revised := v
	revised.ValidTo = mustParseDate(t, "2026-05-31")
	reviseIID, err := store.UpsertValidity(ctx, conn, revised)
	if err != nil {
		t.Fatalf("revise validity: %v", err)
	}
	if reviseIID != iid {
		t.Fatalf("revise should target the same row, got iid %d want %d", reviseIID, iid)
	}

	var flattenedTo *time.Time
	if err := conn.QueryRowContext(ctx, `SELECT flattened_to FROM schedule_validities WHERE iid = ?`, iid).
		Scan(&flattenedTo); err != nil {
		t.Fatalf("query flattened_to: %v", err)
	}
	if flattenedTo == nil || !flattenedTo.Equal(horizonEnd) {
		t.Fatalf("expected UpsertValidity to leave flattened_to at %v, got %v", horizonEnd, flattenedTo)
	}

	if err := store.ClearFlattenedTo(ctx, conn, iid); err != nil {
		t.Fatalf("clear flattened_to: %v", err)
	}
	if err := conn.QueryRowContext(ctx, `SELECT flattened_to FROM schedule_validities WHERE iid = ?`, iid).
		Scan(&flattenedTo); err != nil {
		t.Fatalf("query flattened_to after clear: %v", err)
	}
	if flattenedTo != nil {
		t.Fatalf("expected flattened_to to be cleared by ClearFlattenedTo, got %v", *flattenedTo)
	}
}

func TestDeleteValidity_EnqueuesReconstitutionForExistingFlatSchedules(t *testing.T) {
	ctx := context.Background()
	db := setupStoreTestDB(t)
	conn := db.Conn()

	from := mustParseDate(t, "2026-05-01")
	to := mustParseDate(t, "2026-05-31")
	validityIID, err := store.UpsertValidity(ctx, conn, model.ScheduleValidity{
		UID: "F66666", ValidFrom: from, ValidTo: to,
		Weekdays: "1111111", BankHolidayRunning: "N", STP: model.STPPermanent,
	})
	if err != nil {
		t.Fatalf("insert validity: %v", err)
	}

	startDate := mustParseDate(t, "2026-05-10")
	if _, err := store.InsertFlatSchedule(ctx, conn, model.FlatSchedule{
		ScheduleValidityIID: &validityIID,
		UID:                 "F66666",
		StartDate:           startDate,
	}); err != nil {
		t.Fatalf("insert flat schedule: %v", err)
	}

	if err := store.DeleteValidity(ctx, conn, validityIID); err != nil {
		t.Fatalf("delete validity: %v", err)
	}

	exists, err := store.FlatScheduleExists(ctx, conn, "F66666", startDate)
	if err != nil {
		t.Fatalf("flat schedule exists: %v", err)
	}
	if exists {
		t.Fatal("expected the cascade delete to remove the flat schedule")
	}

	pending, err := store.ListReconstitution(ctx, conn)
	if err != nil {
		t.Fatalf("list reconstitution: %v", err)
	}
	found := false
	for _, p := range pending {
		if p.UID == "F66666" && p.StartDate.Equal(startDate) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the cascade delete to enqueue a reconstitution task for the deleted date")
	}
}
