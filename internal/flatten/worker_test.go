// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package flatten

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/model"
	"github.com/tomtom215/cartographus/internal/store"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{
		Path:                   filepath.Join(t.TempDir(), "flatten_test.duckdb"),
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func mustInsertLocation(ctx context.Context, t *testing.T, conn *sql.DB, nalco, tiploc string) int64 {
	t.Helper()
	reg := locations.NewRegistry()
	iid, inserted, err := reg.InsertNew(ctx, conn, model.Location{NALCO: nalco, Tiploc: tiploc})
	if err != nil {
		t.Fatalf("insert location: %v", err)
	}
	if !inserted {
		t.Fatalf("expected location %s to be newly inserted", tiploc)
	}
	return iid
}

func seedPermanentService(ctx context.Context, t *testing.T, db *database.DB, uid string, validFrom, validTo time.Time) (int64, int64) {
	t.Helper()
	conn := db.Conn()

	validityIID, err := store.UpsertValidity(ctx, conn, model.ScheduleValidity{
		UID:                uid,
		ValidFrom:          validFrom,
		ValidTo:            validTo,
		Weekdays:           "1111111",
		BankHolidayRunning: "Y",
		STP:                model.STPPermanent,
	})
	if err != nil {
		t.Fatalf("upsert validity: %v", err)
	}

	scheduleIID, err := store.UpsertSchedule(ctx, conn, model.Schedule{
		ValidityIID:     validityIID,
		SegmentInstance: 0,
		Status:          "P",
		Category:        "OO",
		SignallingID:    "1A23",
		ATOCCode:        "ZZ",
	})
	if err != nil {
		t.Fatalf("upsert schedule: %v", err)
	}

	return validityIID, scheduleIID
}

func TestFlattenOneDate_InsertsFlatScheduleAndTimings(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	conn := db.Conn()

	from := mustDate(t, "2026-08-01")
	to := mustDate(t, "2026-08-31")
	_, scheduleIID := seedPermanentService(ctx, t, db, "A00001", from, to)

	loc := mustInsertLocation(ctx, t, conn, "000001", "TESTJN")

	arrival := int16(960) // 08:00 as half-minute offset
	batch := store.NewStopBatch()
	batch.Append(model.ScheduleLocation{
		ScheduleIID:    scheduleIID,
		LocationIID:    loc,
		TiplocInstance: "",
		ArrivalTime:    &arrival,
	})
	if err := batch.Flush(ctx, conn); err != nil {
		t.Fatalf("flush stop batch: %v", err)
	}

	schedules, err := store.SchedulesForUIDInWindow(ctx, conn, "A00001", from, from)
	if err != nil {
		t.Fatalf("schedules for uid in window: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("expected 1 schedule in window, got %d", len(schedules))
	}

	if err := flattenOneDate(ctx, conn, "A00001", from, schedules, false); err != nil {
		t.Fatalf("flatten one date: %v", err)
	}

	exists, err := store.FlatScheduleExists(ctx, conn, "A00001", from)
	if err != nil {
		t.Fatalf("flat schedule exists: %v", err)
	}
	if !exists {
		t.Fatal("expected a flat schedule to have been materialised")
	}

	flatIID, err := store.FlatScheduleIIDByUIDDate(ctx, conn, "A00001", from)
	if err != nil {
		t.Fatalf("flat schedule iid: %v", err)
	}

	var count int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM flat_timing WHERE flat_schedule_iid = ?`, flatIID).Scan(&count); err != nil {
		t.Fatalf("count flat timing: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 flat timing row, got %d", count)
	}
}

func TestFlattenOneDate_SkipsDateOutsideValidity(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	conn := db.Conn()

	from := mustDate(t, "2026-08-01")
	to := mustDate(t, "2026-08-31")
	seedPermanentService(ctx, t, db, "A00002", from, to)

	outside := mustDate(t, "2026-09-15")
	schedules, err := store.SchedulesForUID(ctx, conn, "A00002")
	if err != nil {
		t.Fatalf("schedules for uid: %v", err)
	}

	if err := flattenOneDate(ctx, conn, "A00002", outside, schedules, false); err != nil {
		t.Fatalf("flatten one date: %v", err)
	}

	exists, err := store.FlatScheduleExists(ctx, conn, "A00002", outside)
	if err != nil {
		t.Fatalf("flat schedule exists: %v", err)
	}
	if exists {
		t.Fatal("expected no flat schedule for a date outside the validity window")
	}
}

func TestFlattenOneDate_CancellationOverridesPermanent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	conn := db.Conn()

	date := mustDate(t, "2026-08-10")
	weekOf := mustDate(t, "2026-08-01")
	monthEnd := mustDate(t, "2026-08-31")
	seedPermanentService(ctx, t, db, "A00003", weekOf, monthEnd)

	cancelIID, err := store.UpsertValidity(ctx, conn, model.ScheduleValidity{
		UID:                "A00003",
		ValidFrom:          date,
		ValidTo:            date,
		Weekdays:           "1111111",
		BankHolidayRunning: "N",
		STP:                model.STPCancellation,
	})
	if err != nil {
		t.Fatalf("upsert cancellation validity: %v", err)
	}
	if _, err := store.UpsertSchedule(ctx, conn, model.Schedule{
		ValidityIID:     cancelIID,
		SegmentInstance: 0,
		Status:          "C",
		Category:        "OO",
		SignallingID:    "1A23",
		ATOCCode:        "ZZ",
	}); err != nil {
		t.Fatalf("upsert cancellation schedule: %v", err)
	}

	schedules, err := store.SchedulesForUIDInWindow(ctx, conn, "A00003", weekOf, monthEnd)
	if err != nil {
		t.Fatalf("schedules for uid in window: %v", err)
	}

	if err := flattenOneDate(ctx, conn, "A00003", date, schedules, false); err != nil {
		t.Fatalf("flatten one date: %v", err)
	}

	exists, err := store.FlatScheduleExists(ctx, conn, "A00003", date)
	if err != nil {
		t.Fatalf("flat schedule exists: %v", err)
	}
	if exists {
		t.Fatal("a cancellation validity must not produce a flat schedule for the cancelled date")
	}
}

func TestProcessTask_ReconstitutionSkipsAlreadyFlattenedDate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	conn := db.Conn()

	from := mustDate(t, "2026-08-01")
	to := mustDate(t, "2026-08-31")
	date := mustDate(t, "2026-08-05")
	_, scheduleIID := seedPermanentService(ctx, t, db, "A00004", from, to)

	loc := mustInsertLocation(ctx, t, conn, "000002", "OTHERJN")
	batch := store.NewStopBatch()
	batch.Append(model.ScheduleLocation{ScheduleIID: scheduleIID, LocationIID: loc})
	if err := batch.Flush(ctx, conn); err != nil {
		t.Fatalf("flush stop batch: %v", err)
	}

	if err := store.EnqueueReconstitution(ctx, conn, "A00004", date); err != nil {
		t.Fatalf("enqueue reconstitution: %v", err)
	}

	if err := processTask(ctx, conn, Task{UID: "A00004", From: date, Reconstitution: true}); err != nil {
		t.Fatalf("process reconstitution task: %v", err)
	}

	exists, err := store.FlatScheduleExists(ctx, conn, "A00004", date)
	if err != nil {
		t.Fatalf("flat schedule exists: %v", err)
	}
	if !exists {
		t.Fatal("expected reconstitution to materialise a flat schedule")
	}

	pending, err := store.ListReconstitution(ctx, conn)
	if err != nil {
		t.Fatalf("list reconstitution: %v", err)
	}
	for _, p := range pending {
		if p.UID == "A00004" && p.StartDate.Equal(date) {
			t.Fatal("expected the completed reconstitution task to be dequeued")
		}
	}

	if err := store.EnqueueReconstitution(ctx, conn, "A00004", date); err != nil {
		t.Fatalf("re-enqueue reconstitution: %v", err)
	}
	if err := processTask(ctx, conn, Task{UID: "A00004", From: date, Reconstitution: true}); err != nil {
		t.Fatalf("process already-satisfied reconstitution task: %v", err)
	}
	pending, err = store.ListReconstitution(ctx, conn)
	if err != nil {
		t.Fatalf("list reconstitution after re-run: %v", err)
	}
	if len(pending) != 0 {
		t.Fatal("expected an already-satisfied reconstitution task to be discarded, not reprocessed")
	}
}

func TestTimingOffset(t *testing.T) {
	midnight := mustDate(t, "2026-08-01").Unix()
	raw := int16(960) // 08:00, 960 half-minutes after midnight
	got := timingOffset(midnight, &raw)
	if got == nil {
		t.Fatal("expected non-nil offset")
	}
	want := midnight + int64(960)*30
	if *got != want {
		t.Fatalf("timing offset = %d, want %d", *got, want)
	}

	if timingOffset(midnight, nil) != nil {
		t.Fatal("expected nil offset for a nil raw timing")
	}
}
