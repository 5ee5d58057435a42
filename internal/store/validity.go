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

// UpsertValidity inserts or updates a schedule_validities row, keyed on
// (uid, valid_from, stp) per the schema's UNIQUE constraint. A BS "R"
// (revise) transaction for a validity already on file updates it in
// place; "N" (new) inserts. Grounded on parser.py's BS-record handling,
// which issues an UPDATE-or-INSERT depending on the transaction type
// byte; parser.py's BS conflict clause never touches flattened_to -
// only a following LO record's "R" branch clears it explicitly (see
// ClearFlattenedTo, called from internal/cif's LO handling), so this
// upsert leaves flattened_to untouched on both "N" and "R".
func UpsertValidity(ctx context.Context, db Execer, v model.ScheduleValidity) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO schedule_validities (
			uid, valid_from, valid_to, weekdays, bank_holiday_running, stp
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid, valid_from, stp) DO UPDATE SET
			valid_to             = excluded.valid_to,
			weekdays             = excluded.weekdays,
			bank_holiday_running = excluded.bank_holiday_running
	`, v.UID, v.ValidFrom, v.ValidTo, v.Weekdays, v.BankHolidayRunning, v.STP)
	if err != nil {
		return 0, fmt.Errorf("store: upsert validity uid=%s from=%s stp=%s: %w", v.UID, v.ValidFrom, v.STP, err)
	}

	var iid int64
	err = db.QueryRowContext(ctx, `
		SELECT iid FROM schedule_validities WHERE uid = ? AND valid_from = ? AND stp = ?
	`, v.UID, v.ValidFrom, v.STP).Scan(&iid)
	if err != nil {
		return 0, fmt.Errorf("store: fetch validity iid uid=%s from=%s stp=%s: %w", v.UID, v.ValidFrom, v.STP, err)
	}
	return iid, nil
}

// ValidityIID looks up a schedule_validities row's iid by its natural key.
func ValidityIID(ctx context.Context, db Execer, uid string, validFrom interface{}, stp string) (int64, error) {
	var iid int64
	err := db.QueryRowContext(ctx, `
		SELECT iid FROM schedule_validities WHERE uid = ? AND valid_from = ? AND stp = ?
	`, uid, validFrom, stp).Scan(&iid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: lookup validity iid uid=%s stp=%s: %w", uid, stp, err)
	}
	return iid, nil
}

// ClearFlattenedTo resets a validity's flattened_to marker to NULL. The
// CIF parser calls this from the LO record that follows a BS "R" revise,
// when that revise replaces the validity's stop list: the previously
// flattened dates no longer reflect the current template and must be
// re-derived.
func ClearFlattenedTo(ctx context.Context, db Execer, validityIID int64) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE schedule_validities SET flattened_to = NULL WHERE iid = ?
	`, validityIID); err != nil {
		return fmt.Errorf("store: clear flattened_to for validity %d: %w", validityIID, err)
	}
	return nil
}

// SetFlattenedTo records the last date internal/flatten has materialised
// for this validity. Not called during reconstitution passes, matching
// flat_maintenance.py's flat_worker, which only advances flattened_to on
// its regular horizon pass.
func SetFlattenedTo(ctx context.Context, db Execer, validityIID int64, date interface{}) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE schedule_validities SET flattened_to = ? WHERE iid = ?
	`, date, validityIID); err != nil {
		return fmt.Errorf("store: set flattened_to for validity %d: %w", validityIID, err)
	}
	return nil
}

// DeleteValidity removes a schedule_validities row and everything that
// cascades from it: its schedules, their schedule_locations, and any
// flat_schedules/flat_timing/trust_movements materialised from it.
//
// DuckDB has no triggers and no enforced ON DELETE CASCADE (see
// _examples/original_source/database_structure.py's trigger_flat_hole,
// which the Postgres original relies on to populate flat_reconstitution
// automatically). This function does that bookkeeping explicitly: for
// every flat_schedules row it is about to delete, it first inserts a
// flat_reconstitution task for (uid, start_date), so the flattening
// engine re-derives those dates from whatever validity now applies.
func DeleteValidity(ctx context.Context, db Execer, validityIID int64) error {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT uid, start_date FROM flat_schedules WHERE schedule_validity_iid = ?
	`, validityIID)
	if err != nil {
		return fmt.Errorf("store: find flat schedules for validity %d: %w", validityIID, err)
	}
	type pending struct {
		uid       string
		startDate any
	}
	var toReconstitute []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.uid, &p.startDate); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan flat schedule for reconstitution: %w", err)
		}
		toReconstitute = append(toReconstitute, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("store: iterate flat schedules for validity %d: %w", validityIID, err)
	}
	rows.Close()

	for _, p := range toReconstitute {
		if err := EnqueueReconstitution(ctx, db, p.uid, p.startDate); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM trust_movements WHERE flat_schedule_iid IN (
			SELECT iid FROM flat_schedules WHERE schedule_validity_iid = ?
		)
	`, validityIID); err != nil {
		return fmt.Errorf("store: delete trust movements for validity %d: %w", validityIID, err)
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM flat_timing WHERE flat_schedule_iid IN (
			SELECT iid FROM flat_schedules WHERE schedule_validity_iid = ?
		)
	`, validityIID); err != nil {
		return fmt.Errorf("store: delete flat timing for validity %d: %w", validityIID, err)
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM flat_schedules WHERE schedule_validity_iid = ?
	`, validityIID); err != nil {
		return fmt.Errorf("store: delete flat schedules for validity %d: %w", validityIID, err)
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM schedule_locations WHERE schedule_iid IN (
			SELECT iid FROM schedules WHERE validity_iid = ?
		)
	`, validityIID); err != nil {
		return fmt.Errorf("store: delete schedule locations for validity %d: %w", validityIID, err)
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM schedules WHERE validity_iid = ?
	`, validityIID); err != nil {
		return fmt.Errorf("store: delete schedules for validity %d: %w", validityIID, err)
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM schedule_validities WHERE iid = ?
	`, validityIID); err != nil {
		return fmt.Errorf("store: delete validity %d: %w", validityIID, err)
	}

	return nil
}
