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
	"time"

	"github.com/tomtom215/cartographus/internal/model"
)

// InsertHeader records one CIF extract's HD record. Re-parsing the same
// extract carries the same twenty-character identity, so the insert is a
// conflict-do-nothing upsert on that key: this is what keeps re-parsing a
// full extract idempotent rather than aborting the transaction on the
// second run.
func InsertHeader(ctx context.Context, db Execer, h model.Header) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO headers (
			identity, extract_date, extract_time, current_reference,
			last_reference, update_indicator, version,
			user_start_date, user_end_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity) DO NOTHING
	`,
		h.Identity, h.ExtractDate, h.ExtractTime, h.CurrentReference,
		h.LastReference, h.UpdateIndicator, h.Version,
		h.UserStartDate, h.UserEndDate,
	)
	if err != nil {
		return fmt.Errorf("store: insert header %q: %w", h.Identity, err)
	}
	return nil
}

// LatestExtractDate returns the extract_date of the most recently loaded
// header, used by internal/refresh to measure the gap against today.
// Grounded on renew_schedules.py's "select last updated" query.
func LatestExtractDate(ctx context.Context, db Execer) (time.Time, bool, error) {
	var extractDate time.Time
	err := db.QueryRowContext(ctx, `
		SELECT extract_date FROM headers ORDER BY extract_date DESC LIMIT 1
	`).Scan(&extractDate)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: latest extract date: %w", err)
	}
	return extractDate, true, nil
}
