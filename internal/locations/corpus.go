// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package locations

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/model"
)

// corpusFile mirrors Network Rail's CORPUS reference data export: a single
// top-level TIPLOCDATA array of location records, keyed loosely by tiploc,
// 3ALPHA (CRS) and STANOX.
type corpusFile struct {
	TIPLOCData []corpusEntry `json:"TIPLOCDATA"`
}

type corpusEntry struct {
	Tiploc  string `json:"TIPLOC"`
	NLC     string `json:"NLC"`
	NLCDesc string `json:"NLCDESC"`
	Stanox  string `json:"STANOX"`
	ThreeAlpha string `json:"3ALPHA"`
}

// Bootstrap loads a CORPUS JSON export and upserts every entry into the
// location registry with conflict-do-nothing semantics: CORPUS is a
// superset reference dump, and a location a CIF extract has already
// populated with more current data must not be clobbered by it.
//
// includeNalcoOnly mirrors parser.py's incorporate_corpus flag: when true,
// entries lacking a usable tiploc are still inserted keyed by nalco alone
// (useful for stanox/crs cross-referencing even without a timing point).
// Grounded on _examples/original_source/parser.py:incorporate_corpus.
func Bootstrap(ctx context.Context, db Execer, path string, includeNalcoOnly bool) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("locations: read corpus file %q: %w", path, err)
	}

	var doc corpusFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("locations: parse corpus file %q: %w", path, err)
	}

	inserted := 0
	for _, entry := range doc.TIPLOCData {
		tiploc := strings.TrimSpace(entry.Tiploc)
		nalco := strings.TrimSpace(entry.NLC)
		if nalco == "" {
			continue
		}
		if tiploc == "" && !includeNalcoOnly {
			continue
		}

		var stanox *int32
		if s := strings.TrimSpace(entry.Stanox); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				s32 := int32(v)
				stanox = &s32
			}
		}
		var crs *string
		if c := strings.TrimSpace(entry.ThreeAlpha); c != "" {
			crs = &c
		}

		if err := upsertIgnoringConflict(ctx, db, model.Location{
			NALCO:  nalco,
			Tiploc: tiploc,
			Name:   strings.TrimSpace(entry.NLCDesc),
			Stanox: stanox,
			CRS:    crs,
		}); err != nil {
			return inserted, fmt.Errorf("locations: bootstrap nalco %q: %w", nalco, err)
		}
		inserted++
	}

	logging.Info().Int("entries", inserted).Str("path", path).Msg("CORPUS bootstrap complete")
	return inserted, nil
}

// upsertIgnoringConflict inserts a CORPUS-derived location, leaving any
// existing row with the same nalco untouched: CORPUS is the floor, a CIF
// extract's TI/TA records are the authority once loaded.
func upsertIgnoringConflict(ctx context.Context, db Execer, loc model.Location) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO locations (nalco, tiploc, name, stanox, crs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (nalco) DO NOTHING
	`, loc.NALCO, loc.Tiploc, loc.Name, loc.Stanox, loc.CRS)
	return err
}
