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

// UpsertAssociation inserts or updates an AA record's association row,
// keyed on (uid, uid_assoc, valid_from, stp) per the schema's UNIQUE
// constraint. Grounded on parser.py's AA branch.
func UpsertAssociation(ctx context.Context, db Execer, a model.Association) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO associations (
			uid, uid_assoc, valid_from, valid_to, assoc_days, category,
			date_indicator, tiploc, suffix, suffix_assoc, type, stp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid, uid_assoc, valid_from, stp) DO UPDATE SET
			valid_to       = excluded.valid_to,
			assoc_days     = excluded.assoc_days,
			category       = excluded.category,
			date_indicator = excluded.date_indicator,
			tiploc         = excluded.tiploc,
			suffix         = excluded.suffix,
			suffix_assoc   = excluded.suffix_assoc,
			type           = excluded.type
	`,
		a.UID, a.UIDAssoc, a.ValidFrom, a.ValidTo, a.AssocDays, a.Category,
		a.DateIndicator, a.Tiploc, a.Suffix, a.SuffixAssoc, a.Type, a.STP,
	)
	if err != nil {
		return fmt.Errorf("store: upsert association %s/%s: %w", a.UID, a.UIDAssoc, err)
	}
	return nil
}

// DeleteAssociation removes an AA "D" (delete) transaction's row.
func DeleteAssociation(ctx context.Context, db Execer, uid, uidAssoc string, validFrom any, stp string) error {
	if _, err := db.ExecContext(ctx, `
		DELETE FROM associations WHERE uid = ? AND uid_assoc = ? AND valid_from = ? AND stp = ?
	`, uid, uidAssoc, validFrom, stp); err != nil {
		return fmt.Errorf("store: delete association %s/%s: %w", uid, uidAssoc, err)
	}
	return nil
}
