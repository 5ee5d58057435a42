// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package flatten materialises the normalised schedule template store
// into per-date FlatSchedule/FlatTiming rows: for every service and every
// date in the rolling horizon, it resolves which validity (if any) wins
// under STP override precedence and writes (or removes) the
// corresponding flat row.
//
// Grounded on _examples/original_source/flat_maintenance.py.
package flatten

import (
	"context"
	"time"

	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/model"
	"github.com/tomtom215/cartographus/internal/store"
)

// Task is one unit of flattening work: materialise uid's flat schedule
// for [From, From+Days] (a normal horizon pass), or for the single date
// From (a reconstitution task, Days==0).
type Task struct {
	UID            string
	From           time.Time
	Days           int
	Reconstitution bool
}

// processTask runs one Task against db (a single *sql.Conn owned by the
// calling worker goroutine) inside its own transaction.
func processTask(ctx context.Context, db store.Execer, task Task) error {
	if task.Reconstitution {
		exists, err := store.FlatScheduleExists(ctx, db, task.UID, task.From)
		if err != nil {
			return err
		}
		if exists {
			// Re-derived per DESIGN.md's Open Question #2: the original's
			// uniqueness check referenced a stale loop variable rather than
			// this task's own date. A flat schedule already on file for
			// this (uid, start_date) makes the task moot.
			return store.DequeueReconstitution(ctx, db, task.UID, task.From)
		}
	}

	days := task.Days
	if task.Reconstitution {
		days = 0
	}

	dateRange := make([]time.Time, days+1)
	for i := range dateRange {
		dateRange[i] = task.From.AddDate(0, 0, i)
	}
	endDate := dateRange[len(dateRange)-1]

	schedules, err := store.SchedulesForUIDInWindow(ctx, db, task.UID, task.From, endDate)
	if err != nil {
		return err
	}

	for _, date := range dateRange {
		if err := flattenOneDate(ctx, db, task.UID, date, schedules, task.Reconstitution); err != nil {
			return err
		}
	}

	if !task.Reconstitution {
		if err := store.SetFlattenedToForUID(ctx, db, task.UID, endDate); err != nil {
			return err
		}
	} else {
		if err := store.DequeueReconstitution(ctx, db, task.UID, task.From); err != nil {
			return err
		}
	}

	return nil
}

// flattenOneDate applies flat_maintenance.py's per-date loop body: scan
// every validity covering uid, let the one with the highest STP
// precedence that matches this date win (schedules is pre-sorted by
// precedence ascending, so the last match found is authoritative),
// delete a stale materialisation if the authoritative answer changed
// since it was last flattened, then insert a fresh one if the date is
// actually covered by a non-cancelled validity.
func flattenOneDate(ctx context.Context, db store.Execer, uid string, date time.Time, schedules []store.ValidityWithSchedule, reconstitution bool) error {
	var (
		matches          int
		alreadyProcessed bool
		authoritative    *store.ValidityWithSchedule
		scheduleIID      *int64
	)

	for i := range schedules {
		vs := schedules[i]
		if !vs.Validity.RunsOn(date) {
			continue
		}
		authoritative = &schedules[i]
		if vs.Validity.FlattenedTo != nil && !vs.Validity.FlattenedTo.Before(date) {
			alreadyProcessed = true
		}
		matches++
		if vs.Validity.STP == model.STPCancellation {
			scheduleIID = nil
		} else {
			iid := vs.ScheduleIID
			scheduleIID = &iid
		}
	}

	if matches == 0 {
		return nil
	}

	if authoritative.Validity.FlattenedTo != nil && !authoritative.Validity.FlattenedTo.Before(date) && !reconstitution {
		return nil
	}

	needsReplace := (authoritative.Validity.STP == model.STPCancellation && scheduleIID == nil && alreadyProcessed) ||
		(alreadyProcessed && scheduleIID != nil)
	if needsReplace {
		existingIID, err := store.FlatScheduleIIDByUIDDate(ctx, db, uid, date)
		if err == nil {
			if err := store.DeleteFlatSchedule(ctx, db, existingIID); err != nil {
				return err
			}
		} else if err != store.ErrNotFound {
			return err
		}
		if err := store.DequeueReconstitution(ctx, db, uid, date); err != nil {
			return err
		}
	}

	if scheduleIID == nil {
		return nil
	}

	validityIID := authoritative.Validity.IID
	flatIID, err := store.InsertFlatSchedule(ctx, db, model.FlatSchedule{
		ScheduleValidityIID: &validityIID,
		UID:                 uid,
		StartDate:           date,
	})
	if err != nil {
		return err
	}

	stops, err := store.StopsForSchedule(ctx, db, *scheduleIID)
	if err != nil {
		return err
	}

	dtOffset := date.Unix()
	timings := make([]model.FlatTiming, 0, len(stops))
	for _, s := range stops {
		timings = append(timings, model.FlatTiming{
			FlatScheduleIID:     flatIID,
			ScheduleLocationIID: s.IID,
			LocationIID:         s.LocationIID,
			ArrivalScheduled:    timingOffset(dtOffset, s.ArrivalTime),
			DepartureScheduled:  timingOffset(dtOffset, s.DepartureTime),
			PassScheduled:       timingOffset(dtOffset, s.PassTime),
		})
	}
	if err := store.InsertFlatTimingBatch(ctx, db, timings); err != nil {
		return err
	}

	logging.Ctx(ctx).Debug().Str("uid", uid).Time("date", date).Msg("flattened schedule")
	return nil
}

// timingOffset converts a half-minute-offset-from-midnight raw timing
// into an absolute unix timestamp, matching
// "dt_offset+arrival_time*30 if arrival_time else None".
func timingOffset(midnight int64, raw *int16) *int64 {
	if raw == nil {
		return nil
	}
	v := midnight + int64(*raw)*30
	return &v
}
