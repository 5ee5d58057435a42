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

// EnqueueReconstitution queues a (uid, start_date) pair for re-flattening.
// Conflict-do-nothing: the same pair may be queued by more than one
// deleter in the same pass (e.g. a schedule revise and a validity
// cascade), and the flattening engine only needs to see it once.
// Grounded on database_structure.py's insert_flat_hole, adapted from a
// DB-trigger body into an explicit call since DuckDB has no triggers.
func EnqueueReconstitution(ctx context.Context, db Execer, uid string, startDate any) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO flat_reconstitution (uid, start_date) VALUES (?, ?)
		ON CONFLICT (uid, start_date) DO NOTHING
	`, uid, startDate); err != nil {
		return fmt.Errorf("store: enqueue reconstitution uid=%v start_date=%v: %w", uid, startDate, err)
	}
	return nil
}

// DequeueReconstitution removes a completed or obsolete reconstitution
// task.
func DequeueReconstitution(ctx context.Context, db Execer, uid string, startDate any) error {
	if _, err := db.ExecContext(ctx, `
		DELETE FROM flat_reconstitution WHERE uid = ? AND start_date = ?
	`, uid, startDate); err != nil {
		return fmt.Errorf("store: dequeue reconstitution uid=%v start_date=%v: %w", uid, startDate, err)
	}
	return nil
}

// ListReconstitution returns every pending reconstitution task, consumed
// by internal/flatten's reconstitution pass.
func ListReconstitution(ctx context.Context, db Execer) ([]model.FlatReconstitution, error) {
	rows, err := db.QueryContext(ctx, `SELECT uid, start_date FROM flat_reconstitution`)
	if err != nil {
		return nil, fmt.Errorf("store: list reconstitution: %w", err)
	}
	defer rows.Close()

	var out []model.FlatReconstitution
	for rows.Next() {
		var r model.FlatReconstitution
		if err := rows.Scan(&r.UID, &r.StartDate); err != nil {
			return nil, fmt.Errorf("store: scan reconstitution row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate reconstitution rows: %w", err)
	}
	return out, nil
}

// ReconstitutionQueueDepth reports the number of pending tasks, exported
// as a gauge by internal/metrics.
func ReconstitutionQueueDepth(ctx context.Context, db Execer) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flat_reconstitution`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: reconstitution queue depth: %w", err)
	}
	return n, nil
}
