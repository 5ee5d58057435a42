// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/cartographus/internal/model"
)

// ValidityWithSchedule pairs a ScheduleValidity with the schedule body
// iid the flattening engine should materialise for dates it matches.
// Multi-segment schedules (more than one BS body under one validity) are
// uncommon in practice; when present, the lowest segment_instance wins,
// matching the parser treating segment_instance purely as a CIF
// uniqueness key rather than a flattening dimension.
type ValidityWithSchedule struct {
	Validity    model.ScheduleValidity
	ScheduleIID int64
}

// SchedulesForUID returns every validity/schedule pair for a service,
// ordered by STP override precedence ascending (Permanent, Overlay, New,
// Cancellation) so a caller applying them in order and letting the last
// match for a date win reproduces the original's "ORDER BY stp DESC,
// apply in a loop" behavior: a later, higher-precedence validity
// overrides an earlier one for any date both cover. Grounded on
// flat_maintenance.py's per-service query.
func SchedulesForUID(ctx context.Context, db Execer, uid string) ([]ValidityWithSchedule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT v.iid, v.uid, v.valid_from, v.valid_to, v.weekdays,
			v.bank_holiday_running, v.stp, v.flattened_to, s.iid
		FROM schedule_validities v
		JOIN schedules s ON s.validity_iid = v.iid
		WHERE v.uid = ?
		ORDER BY CASE v.stp WHEN 'P' THEN 0 WHEN 'O' THEN 1 WHEN 'N' THEN 2 WHEN 'C' THEN 3 ELSE 4 END,
			v.valid_from, s.segment_instance
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("store: schedules for uid %s: %w", uid, err)
	}
	defer rows.Close()

	var out []ValidityWithSchedule
	for rows.Next() {
		var vs ValidityWithSchedule
		if err := rows.Scan(
			&vs.Validity.IID, &vs.Validity.UID, &vs.Validity.ValidFrom, &vs.Validity.ValidTo,
			&vs.Validity.Weekdays, &vs.Validity.BankHolidayRunning, &vs.Validity.STP,
			&vs.Validity.FlattenedTo, &vs.ScheduleIID,
		); err != nil {
			return nil, fmt.Errorf("store: scan schedule for uid %s: %w", uid, err)
		}
		out = append(out, vs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate schedules for uid %s: %w", uid, err)
	}
	return out, nil
}

// SchedulesForUIDInWindow is SchedulesForUID narrowed to validities that
// overlap [from, to], the window the flattening engine is about to
// materialise. Grounded on flat_maintenance.py's per-service query.
func SchedulesForUIDInWindow(ctx context.Context, db Execer, uid string, from, to any) ([]ValidityWithSchedule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT v.iid, v.uid, v.valid_from, v.valid_to, v.weekdays,
			v.bank_holiday_running, v.stp, v.flattened_to, s.iid
		FROM schedule_validities v
		JOIN schedules s ON s.validity_iid = v.iid
		WHERE v.uid = ? AND v.valid_to >= ? AND v.valid_from <= ?
		ORDER BY CASE v.stp WHEN 'P' THEN 0 WHEN 'O' THEN 1 WHEN 'N' THEN 2 WHEN 'C' THEN 3 ELSE 4 END,
			v.valid_from, s.segment_instance
	`, uid, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: schedules for uid %s in window: %w", uid, err)
	}
	defer rows.Close()

	var out []ValidityWithSchedule
	for rows.Next() {
		var vs ValidityWithSchedule
		if err := rows.Scan(
			&vs.Validity.IID, &vs.Validity.UID, &vs.Validity.ValidFrom, &vs.Validity.ValidTo,
			&vs.Validity.Weekdays, &vs.Validity.BankHolidayRunning, &vs.Validity.STP,
			&vs.Validity.FlattenedTo, &vs.ScheduleIID,
		); err != nil {
			return nil, fmt.Errorf("store: scan schedule for uid %s in window: %w", uid, err)
		}
		out = append(out, vs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate schedules for uid %s in window: %w", uid, err)
	}
	return out, nil
}

// SetFlattenedToForUID advances the flattened_to marker for every
// validity belonging to uid, matching flat_maintenance.py's
// "UPDATE schedule_validities SET flattened_to=%s WHERE uid=%s" - the
// marker is service-wide, not per-validity, since the flattening pass
// processes one service's whole date range in one go regardless of how
// many validities cover it.
func SetFlattenedToForUID(ctx context.Context, db Execer, uid string, endDate any) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE schedule_validities SET flattened_to = ? WHERE uid = ?
	`, endDate, uid); err != nil {
		return fmt.Errorf("store: set flattened_to for uid %s: %w", uid, err)
	}
	return nil
}

// ServicesDueForFlattening returns every uid with at least one validity
// whose flattened_to marker is behind the given horizon date, i.e. needs
// its normal (non-reconstitution) flattening pass advanced.
func ServicesDueForFlattening(ctx context.Context, db Execer, horizon any) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT uid FROM schedule_validities
		WHERE flattened_to IS NULL OR flattened_to < ?
	`, horizon)
	if err != nil {
		return nil, fmt.Errorf("store: services due for flattening: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("store: scan uid due for flattening: %w", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate uids due for flattening: %w", err)
	}
	return uids, nil
}

// FlatScheduleExists reports whether a flat_schedules row already exists
// for (uid, start_date), activated (trust_id set) or not. Used both by the normal flattening
// pass (skip dates already materialised) and, per the reconstitution
// uniqueness-check redesign (see DESIGN.md), by the reconstitution pass
// to discard tasks that are already satisfied.
func FlatScheduleExists(ctx context.Context, db Execer, uid string, startDate any) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flat_schedules WHERE uid = ? AND start_date = ?
	`, uid, startDate).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: flat schedule exists uid=%s start_date=%v: %w", uid, startDate, err)
	}
	return n > 0, nil
}

// InsertFlatSchedule creates the pre-activation flat_schedules row for a
// matched (validity, date) pair.
func InsertFlatSchedule(ctx context.Context, db Execer, fs model.FlatSchedule) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO flat_schedules (schedule_validity_iid, uid, start_date)
		VALUES (?, ?, ?)
	`, fs.ScheduleValidityIID, fs.UID, fs.StartDate)
	if err != nil {
		return 0, fmt.Errorf("store: insert flat schedule uid=%s start_date=%v: %w", fs.UID, fs.StartDate, err)
	}

	var iid int64
	if err := db.QueryRowContext(ctx, `
		SELECT iid FROM flat_schedules WHERE uid = ? AND start_date = ? AND trust_id IS NULL
	`, fs.UID, fs.StartDate).Scan(&iid); err != nil {
		return 0, fmt.Errorf("store: fetch flat schedule iid uid=%s start_date=%v: %w", fs.UID, fs.StartDate, err)
	}
	return iid, nil
}

// DeleteFlatSchedule removes a flat_schedules row and everything
// referencing it. Used by the flattening engine when a stale
// materialisation must be replaced with a fresh one derived from a
// changed validity; the caller is responsible for re-inserting, so this
// does not enqueue a reconstitution task (compare store.DeleteValidity,
// which is called by something other than the flattening engine and
// therefore must enqueue).
func DeleteFlatSchedule(ctx context.Context, db Execer, flatScheduleIID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM trust_movements WHERE flat_schedule_iid = ?`, flatScheduleIID); err != nil {
		return fmt.Errorf("store: delete trust movements for flat schedule %d: %w", flatScheduleIID, err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM flat_timing WHERE flat_schedule_iid = ?`, flatScheduleIID); err != nil {
		return fmt.Errorf("store: delete flat timing for flat schedule %d: %w", flatScheduleIID, err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM flat_schedules WHERE iid = ?`, flatScheduleIID); err != nil {
		return fmt.Errorf("store: delete flat schedule %d: %w", flatScheduleIID, err)
	}
	return nil
}

// InsertFlatTimingBatch writes every stop timing for a newly materialised
// flat_schedules row.
func InsertFlatTimingBatch(ctx context.Context, db Execer, timings []model.FlatTiming) error {
	for _, t := range timings {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO flat_timing (
				flat_schedule_iid, schedule_location_iid, location_iid,
				arrival_scheduled, departure_scheduled, pass_scheduled
			) VALUES (?, ?, ?, ?, ?, ?)
		`, t.FlatScheduleIID, t.ScheduleLocationIID, t.LocationIID,
			t.ArrivalScheduled, t.DepartureScheduled, t.PassScheduled,
		); err != nil {
			return fmt.Errorf("store: insert flat timing for flat schedule %d: %w", t.FlatScheduleIID, err)
		}
	}
	return nil
}

// ActivateFlatSchedule applies a TRUST 0001 activation message: it finds
// the flat_schedules row by (uid, start_date) and stamps the live feed's
// identifiers onto it. Grounded on trust.py's activation branch.
func ActivateFlatSchedule(ctx context.Context, db Execer, uid string, startDate any, trustID, signallingID, serviceCode string, activationDatetime int64, trainCallType string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE flat_schedules SET
			trust_id = ?, actual_signalling_id = ?, actual_service_code = ?,
			activation_datetime = ?, train_call_type = ?
		WHERE uid = ? AND start_date = ?
	`, trustID, signallingID, serviceCode, activationDatetime, trainCallType, uid, startDate)
	if err != nil {
		return fmt.Errorf("store: activate flat schedule uid=%s start_date=%v: %w", uid, startDate, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: activate flat schedule uid=%s start_date=%v: %w", uid, startDate, ErrNotFound)
	}
	return nil
}

// UpsertLiveMovementSchedule applies a TRUST 0003 movement message's
// sparse-insert path: flat_schedules is keyed by (start_date, trust_id)
// for this lookup (not (service, tp_origin_timestamp) - see DESIGN.md's
// Open Question #4), so an as-yet-unactivated or off-template service
// still gets a row to hang trust_movements off of. Grounded on
// trust.py's "INSERT ... ON CONFLICT (start_date, trust_id) DO UPDATE",
// which sets actual_service_code on both the insert and the conflict path.
func UpsertLiveMovementSchedule(ctx context.Context, db Execer, startDate any, trustID, serviceCode string, currentLocation *int64, currentVariation *int32) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO flat_schedules (uid, start_date, trust_id, actual_service_code, current_location, current_variation)
		VALUES ('', ?, ?, ?, ?, ?)
		ON CONFLICT (start_date, trust_id) DO UPDATE SET
			actual_service_code = excluded.actual_service_code,
			current_location    = excluded.current_location,
			current_variation   = excluded.current_variation
	`, startDate, trustID, serviceCode, currentLocation, currentVariation)
	if err != nil {
		return 0, fmt.Errorf("store: upsert live movement schedule trust_id=%s: %w", trustID, err)
	}

	var iid int64
	if err := db.QueryRowContext(ctx, `
		SELECT iid FROM flat_schedules WHERE start_date = ? AND trust_id = ?
	`, startDate, trustID).Scan(&iid); err != nil {
		return 0, fmt.Errorf("store: fetch flat schedule iid trust_id=%s: %w", trustID, err)
	}
	return iid, nil
}

// InsertTrustMovement appends one observed movement event.
func InsertTrustMovement(ctx context.Context, db Execer, tm model.TrustMovement) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO trust_movements (
			flat_schedule_iid, stanox, datetime_scheduled, datetime_actual,
			movement_type, actual_platform, actual_route, actual_line,
			actual_variation_status, actual_variation, actual_direction, actual_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tm.FlatScheduleIID, tm.Stanox, tm.DatetimeScheduled, tm.DatetimeActual,
		tm.MovementType, tm.ActualPlatform, tm.ActualRoute, tm.ActualLine,
		tm.ActualVariationStatus, tm.ActualVariation, tm.ActualDirection, tm.ActualSource,
	); err != nil {
		return fmt.Errorf("store: insert trust movement for flat schedule %d: %w", tm.FlatScheduleIID, err)
	}
	return nil
}

// RenameTrustLiveID applies a TRUST 0007 identity change: every
// flat_schedules row carrying the old trust id is repointed to the new
// one. Grounded on trust.py's identity-change branch.
func RenameTrustLiveID(ctx context.Context, db Execer, oldTrustID, newTrustID, newSignallingID string) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE flat_schedules SET trust_id = ?, actual_signalling_id = ?
		WHERE trust_id = ?
	`, newTrustID, newSignallingID, oldTrustID); err != nil {
		return fmt.Errorf("store: rename trust id %s -> %s: %w", oldTrustID, newTrustID, err)
	}
	return nil
}

// FlatScheduleIIDByUIDDate looks up the pre-activation flat_schedules row
// for (uid, start_date), used by the flattening engine to avoid
// reprocessing dates it has already materialised this pass.
func FlatScheduleIIDByUIDDate(ctx context.Context, db Execer, uid string, startDate any) (int64, error) {
	var iid int64
	err := db.QueryRowContext(ctx, `
		SELECT iid FROM flat_schedules WHERE uid = ? AND start_date = ? AND trust_id IS NULL
	`, uid, startDate).Scan(&iid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: flat schedule iid uid=%s start_date=%v: %w", uid, startDate, err)
	}
	return iid, nil
}
