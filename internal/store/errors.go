// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package store

import "errors"

var (
	// ErrNotFound is returned when a lookup by key finds no row.
	ErrNotFound = errors.New("store: not found")

	// ErrReferentialViolation names the case of a row that references a
	// uid, validity, or schedule that does not exist - e.g. a BX extension
	// record for a schedule the parser never saw a BS record for. No
	// function in this package returns it: SetTractionExtension on an
	// unknown schedule iid updates no row and returns nil.
	ErrReferentialViolation = errors.New("store: referential violation")
)
