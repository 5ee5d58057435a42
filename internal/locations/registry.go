// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package locations maintains the timing-point location registry: the
// tiploc/nalco/stanox/crs reference data every schedule stop and live
// movement resolves against. A full CIF extract rewrites this table via
// TI (insert), TA (amend/rename) and TD (delete) records; the CORPUS
// bootstrap in corpus.go seeds it ahead of the first extract.
//
// Grounded on _examples/original_source/parser.py's tl_map in-process
// cache and its TI/TA/TD handling.
package locations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/cartographus/internal/model"
)

// ErrUnknownTiploc is returned when a tiploc has no registry entry.
var ErrUnknownTiploc = errors.New("locations: unknown tiploc")

// Execer is the subset of *sql.DB/*sql.Tx/*sql.Conn the registry needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Registry is the in-process tiploc-to-iid cache backing CIF parsing and
// live movement lookups. A single Registry is shared across the parser,
// the refresher, and the live ingester; all of them see the same cache
// because they share the same *database.DB.
type Registry struct {
	mu       sync.RWMutex
	byTiploc map[string]int64
	byStanox map[int32]int64
}

// NewRegistry returns an empty Registry. Call LoadCache before use.
func NewRegistry() *Registry {
	return &Registry{
		byTiploc: make(map[string]int64),
		byStanox: make(map[int32]int64),
	}
}

// LoadCache populates the in-process cache from the locations table. Call
// this once at startup after the database is opened, and again after a
// full CIF extract rewrites the table wholesale.
func (r *Registry) LoadCache(ctx context.Context, db Execer) error {
	rows, err := db.QueryContext(ctx, `SELECT iid, tiploc, stanox FROM locations`)
	if err != nil {
		return fmt.Errorf("locations: load cache: %w", err)
	}
	defer rows.Close()

	byTiploc := make(map[string]int64)
	byStanox := make(map[int32]int64)
	for rows.Next() {
		var iid int64
		var tiploc sql.NullString
		var stanox sql.NullInt32
		if err := rows.Scan(&iid, &tiploc, &stanox); err != nil {
			return fmt.Errorf("locations: scan cache row: %w", err)
		}
		if tiploc.Valid && tiploc.String != "" {
			byTiploc[tiploc.String] = iid
		}
		if stanox.Valid {
			byStanox[stanox.Int32] = iid
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("locations: iterate cache rows: %w", err)
	}

	r.mu.Lock()
	r.byTiploc = byTiploc
	r.byStanox = byStanox
	r.mu.Unlock()
	return nil
}

// ResolveByTiploc returns the location iid for a tiploc, if known.
func (r *Registry) ResolveByTiploc(tiploc string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iid, ok := r.byTiploc[tiploc]
	return iid, ok
}

// ResolveByStanox returns the location iid for a stanox, if known. Used by
// internal/live to map the TRUST feed's stanox-keyed events onto the
// schedule store's tiploc-keyed locations.
func (r *Registry) ResolveByStanox(stanox int32) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iid, ok := r.byStanox[stanox]
	return iid, ok
}

// InsertNew handles a CIF TI record: a brand-new location. Conflict on
// nalco is silently ignored rather than overwriting - a re-seen nalco in
// a TI record (rather than a TA amend) is treated as already current.
// Grounded on parser.py's TI branch ("ON CONFLICT DO NOTHING RETURNING
// tiploc, iid"; the cache is only updated when a row actually inserts).
func (r *Registry) InsertNew(ctx context.Context, db Execer, loc model.Location) (int64, bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO locations (tiploc, nalco, name, stanox, crs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (nalco) DO NOTHING
	`, loc.Tiploc, loc.NALCO, loc.Name, loc.Stanox, loc.CRS)
	if err != nil {
		return 0, false, fmt.Errorf("locations: insert new tiploc %q: %w", loc.Tiploc, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("locations: insert new tiploc %q: %w", loc.Tiploc, err)
	}
	if n == 0 {
		return 0, false, nil
	}

	var iid int64
	if err := db.QueryRowContext(ctx, `SELECT iid FROM locations WHERE nalco = ?`, loc.NALCO).Scan(&iid); err != nil {
		return 0, false, fmt.Errorf("locations: fetch iid for nalco %q: %w", loc.NALCO, err)
	}

	r.mu.Lock()
	if loc.Tiploc != "" {
		r.byTiploc[loc.Tiploc] = iid
	}
	if loc.Stanox != nil {
		r.byStanox[*loc.Stanox] = iid
	}
	r.mu.Unlock()

	return iid, true, nil
}

// Amend handles a CIF TA record: the row currently addressed by
// oldTiploc is updated in place, optionally changing its tiploc too (a
// replacement tiploc is present in the record). Grounded on parser.py's
// TA branch, which issues one of two UPDATE statements depending on
// whether a replacement tiploc was supplied.
func (r *Registry) Amend(ctx context.Context, db Execer, oldTiploc string, loc model.Location) (int64, error) {
	if loc.Tiploc != "" && loc.Tiploc != oldTiploc {
		if _, err := db.ExecContext(ctx, `
			UPDATE locations SET tiploc = ?, nalco = ?, name = ?, stanox = ?, crs = ?
			WHERE tiploc = ?
		`, loc.Tiploc, loc.NALCO, loc.Name, loc.Stanox, loc.CRS, oldTiploc); err != nil {
			return 0, fmt.Errorf("locations: amend+rename tiploc %q -> %q: %w", oldTiploc, loc.Tiploc, err)
		}
	} else {
		if _, err := db.ExecContext(ctx, `
			UPDATE locations SET nalco = ?, name = ?, stanox = ?, crs = ?
			WHERE tiploc = ?
		`, loc.NALCO, loc.Name, loc.Stanox, loc.CRS, oldTiploc); err != nil {
			return 0, fmt.Errorf("locations: amend tiploc %q: %w", oldTiploc, err)
		}
	}

	newTiploc := oldTiploc
	if loc.Tiploc != "" {
		newTiploc = loc.Tiploc
	}

	var iid int64
	if err := db.QueryRowContext(ctx, `SELECT iid FROM locations WHERE tiploc = ?`, newTiploc).Scan(&iid); err != nil {
		return 0, fmt.Errorf("locations: fetch iid for tiploc %q: %w", newTiploc, err)
	}

	r.mu.Lock()
	if newTiploc != oldTiploc {
		delete(r.byTiploc, oldTiploc)
	}
	r.byTiploc[newTiploc] = iid
	if loc.Stanox != nil {
		r.byStanox[*loc.Stanox] = iid
	}
	r.mu.Unlock()

	return iid, nil
}

// DeleteByTiploc handles a CIF TD record.
func (r *Registry) DeleteByTiploc(ctx context.Context, db Execer, tiploc string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM locations WHERE tiploc = ?`, tiploc); err != nil {
		return fmt.Errorf("locations: delete tiploc %q: %w", tiploc, err)
	}
	r.mu.Lock()
	delete(r.byTiploc, tiploc)
	r.mu.Unlock()
	return nil
}
