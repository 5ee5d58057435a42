// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
database_schema.go - Rail Schedule Schema

Defines the full normalised schedule store plus the flattened per-date
projection and live-movement tables. DuckDB supports sequences but not
triggers or enforced ON DELETE CASCADE, so deletes and reconstitution-queue
writes that the original Postgres schema handled with a trigger
(trigger_flat_hole) are instead issued explicitly by the callers that
delete rows - see internal/store for schedule_validities deletes and
internal/flatten for flat_schedules replacement.

Index creation on schedule_locations is deferred: a full (F) CIF extract
creates the table empty and fast, then cmd/parse creates the indexes once,
after the parser's transaction for a full extract that reached its ZZ
record has committed, matching the original
parser's behavior of only paying the index-build cost once per full load.
*/
package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS headers (
	identity            VARCHAR(20),
	extract_date        DATE,
	extract_time        VARCHAR(4),
	current_reference   VARCHAR(7),
	last_reference      VARCHAR(7),
	update_indicator    VARCHAR(1),
	version             VARCHAR(1),
	user_start_date     DATE,
	user_end_date       DATE,
	UNIQUE(identity)
);

CREATE SEQUENCE IF NOT EXISTS location_iid_seq;
CREATE TABLE IF NOT EXISTS locations (
	iid    INTEGER PRIMARY KEY DEFAULT nextval('location_iid_seq'),
	nalco  VARCHAR(6) NOT NULL,
	tiploc VARCHAR(7),
	name   VARCHAR(32),
	stanox INTEGER,
	crs    VARCHAR(3)
);

CREATE SEQUENCE IF NOT EXISTS schedule_validity_iid_seq;
CREATE TABLE IF NOT EXISTS schedule_validities (
	iid                  INTEGER PRIMARY KEY DEFAULT nextval('schedule_validity_iid_seq'),
	uid                  VARCHAR(6) NOT NULL,
	valid_from           DATE NOT NULL,
	valid_to             DATE NOT NULL,
	weekdays             VARCHAR(7) NOT NULL,
	bank_holiday_running VARCHAR(1),
	stp                  VARCHAR(1),
	flattened_to         DATE DEFAULT NULL,
	UNIQUE (uid, valid_from, stp)
);

CREATE SEQUENCE IF NOT EXISTS schedule_iid_seq;
CREATE TABLE IF NOT EXISTS schedules (
	iid                       INTEGER PRIMARY KEY DEFAULT nextval('schedule_iid_seq'),
	validity_iid              INTEGER NOT NULL REFERENCES schedule_validities(iid),
	segment_instance          SMALLINT NOT NULL,
	status                    VARCHAR(1),
	category                  VARCHAR(2),
	signalling_id             VARCHAR(4),
	headcode                  VARCHAR(4),
	business_sector           VARCHAR(1),
	power_type                VARCHAR(3),
	timing_load               VARCHAR(7),
	speed                     VARCHAR(3),
	operating_characteristics VARCHAR(6),
	seating_class             VARCHAR(1),
	sleepers                  VARCHAR(1),
	reservations              VARCHAR(1),
	catering                  VARCHAR(4),
	branding                  VARCHAR(4),
	traction_class            VARCHAR(4),
	uic_code                  VARCHAR(5),
	atoc_code                 VARCHAR(2),
	applicable_timetable      VARCHAR(1),
	origin_location_iid       INTEGER REFERENCES locations(iid),
	destination_location_iid  INTEGER REFERENCES locations(iid),
	UNIQUE (validity_iid, segment_instance)
);

CREATE TABLE IF NOT EXISTS associations (
	uid            VARCHAR(6),
	uid_assoc      VARCHAR(6),
	valid_from     DATE,
	valid_to       DATE,
	assoc_days     VARCHAR(7),
	category       VARCHAR(2),
	date_indicator VARCHAR(1),
	tiploc         VARCHAR(7),
	suffix         VARCHAR(1),
	suffix_assoc   VARCHAR(1),
	type           VARCHAR(1),
	stp            VARCHAR(1),
	UNIQUE(uid, uid_assoc, valid_from, stp)
);

CREATE SEQUENCE IF NOT EXISTS sched_location_iid_seq;
CREATE TABLE IF NOT EXISTS schedule_locations (
	iid                   BIGINT PRIMARY KEY DEFAULT nextval('sched_location_iid_seq'),
	schedule_iid          INTEGER REFERENCES schedules(iid),
	location_iid          INTEGER REFERENCES locations(iid),
	tiploc_instance       VARCHAR(1),
	arrival_time          SMALLINT,
	departure_time        SMALLINT,
	pass_time             SMALLINT,
	arrival_public        VARCHAR(4),
	departure_public      VARCHAR(4),
	platform              VARCHAR(3),
	line                  VARCHAR(3),
	path                  VARCHAR(3),
	activity              VARCHAR(12),
	engineering_allowance VARCHAR(2),
	pathing_allowance     VARCHAR(2),
	performance_allowance VARCHAR(2)
);

CREATE TABLE IF NOT EXISTS flat_reconstitution (
	uid        VARCHAR(7) NOT NULL,
	start_date DATE NOT NULL,
	PRIMARY KEY(uid, start_date)
);

CREATE SEQUENCE IF NOT EXISTS flat_schedule_iid_seq;
CREATE TABLE IF NOT EXISTS flat_schedules (
	iid                   BIGINT PRIMARY KEY DEFAULT nextval('flat_schedule_iid_seq'),
	schedule_validity_iid INTEGER DEFAULT NULL REFERENCES schedule_validities(iid),
	uid                   VARCHAR(7),
	start_date            DATE NOT NULL,
	trust_id              VARCHAR(10) DEFAULT NULL,
	actual_signalling_id  VARCHAR(4) DEFAULT NULL,
	actual_service_code   VARCHAR(8) DEFAULT NULL,

	activation_datetime   BIGINT DEFAULT NULL,
	train_call_type       VARCHAR(1) DEFAULT NULL,

	cancellation_datetime BIGINT DEFAULT NULL,
	cancellation_reason   VARCHAR(2) DEFAULT NULL,
	cancellation_location INTEGER DEFAULT NULL REFERENCES locations(iid),

	current_location      INTEGER DEFAULT NULL REFERENCES locations(iid),
	current_variation     INTEGER DEFAULT NULL,

	UNIQUE (uid, start_date, trust_id),
	UNIQUE (start_date, trust_id)
);

CREATE TABLE IF NOT EXISTS trust_movements (
	flat_schedule_iid       BIGINT NOT NULL REFERENCES flat_schedules(iid),
	stanox                  INTEGER NOT NULL,
	datetime_scheduled      BIGINT,
	datetime_actual         BIGINT NOT NULL,
	movement_type           VARCHAR(1) NOT NULL,
	actual_platform         VARCHAR(2) DEFAULT NULL,
	actual_route            VARCHAR(1) DEFAULT NULL,
	actual_line             VARCHAR(1) DEFAULT NULL,
	actual_variation_status VARCHAR(1) DEFAULT NULL,
	actual_variation        INTEGER DEFAULT NULL,
	actual_direction        VARCHAR(1) DEFAULT NULL,
	actual_source           VARCHAR(1) DEFAULT NULL
);

CREATE TABLE IF NOT EXISTS flat_timing (
	flat_schedule_iid     BIGINT NOT NULL REFERENCES flat_schedules(iid),
	schedule_location_iid BIGINT NOT NULL REFERENCES schedule_locations(iid),
	location_iid          INTEGER NOT NULL REFERENCES locations(iid),
	arrival_scheduled     BIGINT,
	departure_scheduled   BIGINT,
	pass_scheduled        BIGINT
);
`

// baseIndexDDL creates every index that is cheap to maintain incrementally
// and safe to have present during both full and daily-update loads.
const baseIndexDDL = `
CREATE INDEX IF NOT EXISTS idx_location_tiploc ON locations(tiploc);
CREATE INDEX IF NOT EXISTS idx_location_stanox ON locations(stanox);
CREATE INDEX IF NOT EXISTS idx_location_crs ON locations(crs);
CREATE UNIQUE INDEX IF NOT EXISTS idx_location_nalco ON locations(nalco);

CREATE INDEX IF NOT EXISTS idx_sched_validities_valid_from ON schedule_validities(valid_from);
CREATE INDEX IF NOT EXISTS idx_sched_validities_stp ON schedule_validities(stp);

CREATE INDEX IF NOT EXISTS idx_main_uid ON associations(uid);
CREATE INDEX IF NOT EXISTS idx_assoc_uid ON associations(uid_assoc);

CREATE INDEX IF NOT EXISTS idx_flat_schedule_sched_validity_iid ON flat_schedules(schedule_validity_iid);
CREATE INDEX IF NOT EXISTS idx_flat_schedule_uid ON flat_schedules(uid);
CREATE INDEX IF NOT EXISTS idx_flat_schedule_start_date ON flat_schedules(start_date);
CREATE INDEX IF NOT EXISTS idx_flat_schedule_trust_id ON flat_schedules(trust_id);

CREATE INDEX IF NOT EXISTS idx_trust_movements_datetime_scheduled ON trust_movements(datetime_scheduled);
CREATE INDEX IF NOT EXISTS idx_trust_movements_datetime_actual ON trust_movements(datetime_actual);
CREATE INDEX IF NOT EXISTS idx_trust_movements_flat_sched_iid ON trust_movements(flat_schedule_iid);
CREATE INDEX IF NOT EXISTS idx_trust_movements_stanox ON trust_movements(stanox);

CREATE INDEX IF NOT EXISTS idx_flat_loc_iid ON flat_timing(location_iid);
CREATE INDEX IF NOT EXISTS idx_flat_arrival ON flat_timing(arrival_scheduled);
CREATE INDEX IF NOT EXISTS idx_flat_departure ON flat_timing(departure_scheduled);
CREATE INDEX IF NOT EXISTS idx_flat_pass ON flat_timing(pass_scheduled);
`

// scheduleLocationIndexDDL is deferred: building it on an empty
// schedule_locations table before a full extract is instant, and building
// it once after the extract is far cheaper than maintaining it row by row
// through hundreds of thousands of inserts.
const scheduleLocationIndexDDL = `
CREATE INDEX IF NOT EXISTS idx_sched_location_schedule ON schedule_locations(schedule_iid);
`

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// splitStatements splits a block of semicolon-terminated DDL into individual
// statements. The DuckDB driver executes one statement per ExecContext call.
func splitStatements(block string) []string {
	var stmts []string
	for _, raw := range strings.Split(block, ";") {
		s := strings.TrimSpace(raw)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// createTables creates every table in schemaDDL.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range splitStatements(schemaDDL) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w\n%s", err, stmt)
		}
	}
	return nil
}

// createIndexes creates the incrementally-maintained indexes. It does not
// touch schedule_locations; see CreateScheduleLocationIndexes.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range splitStatements(baseIndexDDL) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w\n%s", err, stmt)
		}
	}
	return nil
}

// CreateScheduleLocationIndexes builds the schedule_locations index.
// cmd/parse calls this once, after committing the parse of a full (F)
// extract that reached its ZZ record, never after a daily update.
func (db *DB) CreateScheduleLocationIndexes(ctx context.Context) error {
	for _, stmt := range splitStatements(scheduleLocationIndexDDL) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schedule_locations index: %w", err)
		}
	}
	return nil
}

// dropTableOrder lists every table in reverse-dependency order so
// DropAllTables can issue plain DROP TABLE statements without DuckDB
// needing CASCADE support.
var dropTableOrder = []string{
	"flat_timing",
	"trust_movements",
	"flat_schedules",
	"flat_reconstitution",
	"schedule_locations",
	"associations",
	"schedules",
	"schedule_validities",
	"locations",
	"headers",
}

// DropAllTables drops every table created by createTables, for the schema
// manager CLI's drop-all-tables action.
func (db *DB) DropAllTables(ctx context.Context) error {
	for _, table := range dropTableOrder {
		if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
