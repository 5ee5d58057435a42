// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package live

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/model"
	"github.com/tomtom215/cartographus/internal/store"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{
		Path:                   filepath.Join(t.TempDir(), "live_test.duckdb"),
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSchedule(t *testing.T, db *database.DB, uid string, startDate time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Conn().ExecContext(ctx, `
		INSERT INTO schedule_validities (uid, valid_from, valid_to, weekdays, stp)
		VALUES (?, ?, ?, '1111111', 'P')
	`, uid, startDate, startDate.AddDate(0, 1, 0))
	require.NoError(t, err)

	var validityIID int64
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT iid FROM schedule_validities WHERE uid = ?`, uid).Scan(&validityIID))

	_, err = db.Conn().ExecContext(ctx, `
		INSERT INTO flat_schedules (schedule_validity_iid, uid, start_date)
		VALUES (?, ?, ?)
	`, validityIID, uid, startDate)
	require.NoError(t, err)
}

func TestProcessBatch_Activation(t *testing.T) {
	db := setupTestDB(t)
	registry := locations.NewRegistry()
	log := logging.NewEventLogger()

	startDate := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	seedSchedule(t, db, "A00001", startDate)

	payload := []byte(`[{
		"header": {"msg_type": "0001"},
		"body": {
			"train_uid": "A00001",
			"tp_origin_timestamp": "2026-07-20",
			"train_id": "1Y12340720",
			"train_service_code": "12345678",
			"creation_timestamp": "1753000000000",
			"train_call_type": "AUTOMATIC"
		}
	}]`)

	err := ProcessBatch(context.Background(), db.Conn(), registry, payload, log)
	require.NoError(t, err)

	var trustID, signallingID string
	require.NoError(t, db.Conn().QueryRowContext(context.Background(),
		`SELECT trust_id, actual_signalling_id FROM flat_schedules WHERE uid = ?`, "A00001").
		Scan(&trustID, &signallingID))
	require.Equal(t, "1Y12340720", trustID)
	require.Equal(t, "1234", signallingID)
}

func TestProcessBatch_MovementAppliesEarlyNegation(t *testing.T) {
	db := setupTestDB(t)
	registry := locations.NewRegistry()
	log := logging.NewEventLogger()

	// Movement messages key flat_schedules by (start_date=today, trust_id)
	// regardless of the template's own start_date (see store.UpsertLiveMovementSchedule),
	// so the activation seeded here must also land on today to land on the
	// same row.
	startDate := today()
	seedSchedule(t, db, "A00002", startDate)
	require.NoError(t, store.ActivateFlatSchedule(context.Background(), db.Conn(),
		"A00002", startDate, "1Y12340720", "1234", "12345678", 1753000000, "A"))

	payload := []byte(`[{
		"header": {"msg_type": "0003"},
		"body": {
			"train_id": "1Y12340720",
			"loc_stanox": "12345",
			"planned_timestamp": "1753000600000",
			"actual_timestamp": "1753000660000",
			"planned_event_type": "DEPARTURE",
			"platform": "4",
			"route": "1",
			"line_ind": "M",
			"variation_status": "EARLY",
			"timetable_variation": "2",
			"direction_ind": "U",
			"event_source": "A"
		}
	}]`)

	err := ProcessBatch(context.Background(), db.Conn(), registry, payload, log)
	require.NoError(t, err)

	var variation int32
	var variationStatus string
	require.NoError(t, db.Conn().QueryRowContext(context.Background(),
		`SELECT actual_variation, actual_variation_status FROM trust_movements WHERE flat_schedule_iid = (
			SELECT iid FROM flat_schedules WHERE uid = ?
		)`, "A00002").Scan(&variation, &variationStatus))
	require.Equal(t, int32(-1), variation)
	require.Equal(t, model.VariationEarly, variationStatus)
}

func TestProcessBatch_UnknownMessageTypeIsSkippedNotFatal(t *testing.T) {
	db := setupTestDB(t)
	registry := locations.NewRegistry()
	log := logging.NewEventLogger()

	payload := []byte(`[{"header": {"msg_type": "9999"}, "body": {}}]`)
	err := ProcessBatch(context.Background(), db.Conn(), registry, payload, log)
	require.NoError(t, err)
}

func TestProcessBatch_OneBadElementDoesNotAbortTheBatch(t *testing.T) {
	db := setupTestDB(t)
	registry := locations.NewRegistry()
	log := logging.NewEventLogger()

	startDate := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	seedSchedule(t, db, "A00003", startDate)

	payload := []byte(`[
		{"header": {"msg_type": "0001"}, "body": {"train_uid": "A00003", "tp_origin_timestamp": "not-a-date", "train_id": "1Y12340720"}},
		{"header": {"msg_type": "0001"}, "body": {"train_uid": "A00003", "tp_origin_timestamp": "2026-07-20", "train_id": "1Y12340721"}}
	]`)

	err := ProcessBatch(context.Background(), db.Conn(), registry, payload, log)
	require.NoError(t, err)

	var trustID string
	require.NoError(t, db.Conn().QueryRowContext(context.Background(),
		`SELECT trust_id FROM flat_schedules WHERE uid = ?`, "A00003").Scan(&trustID))
	require.Equal(t, "1Y12340721", trustID)
}

func TestConvertTimestamp(t *testing.T) {
	require.Equal(t, int64(1753000000), convertTimestamp("1753000000000"))
	require.Equal(t, int64(0), convertTimestamp(""))
	require.Equal(t, int64(0), convertTimestamp("not-a-number"))
}
