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

// StopBatch buffers schedule_locations rows and flushes them in one
// prepared-statement pass. The CIF parser appends one row per LO/LI/LT
// record and flushes every 100 records alongside the rest of its batch,
// matching parser.py's location_batch/execute_batch. Unlike the teacher's
// internal/eventprocessor.Appender, flushing here is synchronous: the
// parser already runs inside one long-lived transaction and needs the
// flush to happen precisely where it calls it, not on a timer.
type StopBatch struct {
	rows []model.ScheduleLocation
}

// NewStopBatch returns an empty StopBatch.
func NewStopBatch() *StopBatch {
	return &StopBatch{}
}

// Append buffers one stop row.
func (b *StopBatch) Append(loc model.ScheduleLocation) {
	b.rows = append(b.rows, loc)
}

// Len reports the number of buffered rows.
func (b *StopBatch) Len() int {
	return len(b.rows)
}

// Flush inserts every buffered row and clears the buffer.
func (b *StopBatch) Flush(ctx context.Context, db Execer) error {
	if len(b.rows) == 0 {
		return nil
	}
	for _, loc := range b.rows {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO schedule_locations (
				schedule_iid, location_iid, tiploc_instance,
				arrival_time, departure_time, pass_time,
				arrival_public, departure_public,
				platform, line, path, activity,
				engineering_allowance, pathing_allowance, performance_allowance
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			loc.ScheduleIID, loc.LocationIID, loc.TiplocInstance,
			loc.ArrivalTime, loc.DepartureTime, loc.PassTime,
			loc.ArrivalPublic, loc.DeparturePublic,
			loc.Platform, loc.Line, loc.Path, loc.Activity,
			loc.EngineeringAllowance, loc.PathingAllowance, loc.PerformanceAllowance,
		); err != nil {
			return fmt.Errorf("store: insert schedule_location schedule=%d tiploc_instance=%s: %w", loc.ScheduleIID, loc.TiplocInstance, err)
		}
	}
	b.rows = b.rows[:0]
	return nil
}

// DeleteStopsForSchedule removes every schedule_locations row for one
// schedule. Called when a BS "R" revise's LO record resets a schedule's
// stop list ahead of the parser appending a fresh one. Grounded on
// parser.py's location_delete_batch / location_delete_plan.
func DeleteStopsForSchedule(ctx context.Context, db Execer, scheduleIID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM schedule_locations WHERE schedule_iid = ?`, scheduleIID); err != nil {
		return fmt.Errorf("store: delete stops for schedule %d: %w", scheduleIID, err)
	}
	return nil
}

// StopsForSchedule returns every stop on a schedule, in LO/LI/LT record
// order (insertion order, since iid is a monotonically increasing
// sequence). Used by internal/flatten to build FlatTiming rows.
func StopsForSchedule(ctx context.Context, db Execer, scheduleIID int64) ([]model.ScheduleLocation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT iid, schedule_iid, location_iid, tiploc_instance,
			arrival_time, departure_time, pass_time,
			arrival_public, departure_public,
			platform, line, path, activity,
			engineering_allowance, pathing_allowance, performance_allowance
		FROM schedule_locations
		WHERE schedule_iid = ?
		ORDER BY iid
	`, scheduleIID)
	if err != nil {
		return nil, fmt.Errorf("store: stops for schedule %d: %w", scheduleIID, err)
	}
	defer rows.Close()

	var out []model.ScheduleLocation
	for rows.Next() {
		var l model.ScheduleLocation
		if err := rows.Scan(
			&l.IID, &l.ScheduleIID, &l.LocationIID, &l.TiplocInstance,
			&l.ArrivalTime, &l.DepartureTime, &l.PassTime,
			&l.ArrivalPublic, &l.DeparturePublic,
			&l.Platform, &l.Line, &l.Path, &l.Activity,
			&l.EngineeringAllowance, &l.PathingAllowance, &l.PerformanceAllowance,
		); err != nil {
			return nil, fmt.Errorf("store: scan stop for schedule %d: %w", scheduleIID, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate stops for schedule %d: %w", scheduleIID, err)
	}
	return out, nil
}
