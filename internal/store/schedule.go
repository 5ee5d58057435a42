// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package store

import (
	"context"
	"fmt"

	"github.com/tomtom215/cartographus/internal/model"
)

// UpsertSchedule inserts or updates a schedule body row for a BS record,
// keyed on (validity_iid, segment_instance) per the schema's UNIQUE
// constraint - a BS "R" revise targeting a validity already on file
// updates its schedule body in place. Grounded on parser.py's BS
// handling, which always issues the same INSERT ... ON CONFLICT ... DO
// UPDATE regardless of transaction type, relying on the conflict clause
// to distinguish new from revised.
func UpsertSchedule(ctx context.Context, db Execer, s model.Schedule) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO schedules (
			validity_iid, segment_instance, status, category, signalling_id,
			headcode, business_sector, power_type, timing_load, speed,
			operating_characteristics, seating_class, sleepers, reservations,
			catering, branding, traction_class, uic_code, atoc_code,
			applicable_timetable, origin_location_iid, destination_location_iid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (validity_iid, segment_instance) DO UPDATE SET
			status                    = excluded.status,
			category                  = excluded.category,
			signalling_id             = excluded.signalling_id,
			headcode                  = excluded.headcode,
			business_sector           = excluded.business_sector,
			power_type                = excluded.power_type,
			timing_load               = excluded.timing_load,
			speed                     = excluded.speed,
			operating_characteristics = excluded.operating_characteristics,
			seating_class             = excluded.seating_class,
			sleepers                  = excluded.sleepers,
			reservations              = excluded.reservations,
			catering                  = excluded.catering,
			branding                  = excluded.branding,
			traction_class            = excluded.traction_class,
			uic_code                  = excluded.uic_code,
			atoc_code                 = excluded.atoc_code,
			applicable_timetable      = excluded.applicable_timetable
	`,
		s.ValidityIID, s.SegmentInstance, s.Status, s.Category, s.SignallingID,
		s.Headcode, s.BusinessSector, s.PowerType, s.TimingLoad, s.Speed,
		s.OperatingCharacteristics, s.SeatingClass, s.Sleepers, s.Reservations,
		s.Catering, s.Branding, s.TractionClass, s.UICCode, s.ATOCCode,
		s.ApplicableTimetable, s.OriginLocationIID, s.DestinationLocationIID,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert schedule validity=%d segment=%d: %w", s.ValidityIID, s.SegmentInstance, err)
	}

	var iid int64
	if err := db.QueryRowContext(ctx, `
		SELECT iid FROM schedules WHERE validity_iid = ? AND segment_instance = ?
	`, s.ValidityIID, s.SegmentInstance).Scan(&iid); err != nil {
		return 0, fmt.Errorf("store: fetch schedule iid validity=%d segment=%d: %w", s.ValidityIID, s.SegmentInstance, err)
	}
	return iid, nil
}

// SetTractionExtension applies a BX record's additional traction fields to
// an already-inserted schedule, keyed by its iid. Grounded on parser.py's
// BX branch.
func SetTractionExtension(ctx context.Context, db Execer, scheduleIID int64, tractionClass, uicCode, atocCode, applicableTimetable string) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE schedules SET traction_class = ?, uic_code = ?, atoc_code = ?, applicable_timetable = ?
		WHERE iid = ?
	`, tractionClass, uicCode, atocCode, applicableTimetable, scheduleIID); err != nil {
		return fmt.Errorf("store: set traction extension for schedule %d: %w", scheduleIID, err)
	}
	return nil
}

// SetOriginLocation applies an LO record's origin_location_iid.
func SetOriginLocation(ctx context.Context, db Execer, scheduleIID, locationIID int64) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE schedules SET origin_location_iid = ? WHERE iid = ?
	`, locationIID, scheduleIID); err != nil {
		return fmt.Errorf("store: set origin location for schedule %d: %w", scheduleIID, err)
	}
	return nil
}

// SetDestinationLocation applies an LT record's destination_location_iid.
func SetDestinationLocation(ctx context.Context, db Execer, scheduleIID, locationIID int64) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE schedules SET destination_location_iid = ? WHERE iid = ?
	`, locationIID, scheduleIID); err != nil {
		return fmt.Errorf("store: set destination location for schedule %d: %w", scheduleIID, err)
	}
	return nil
}
