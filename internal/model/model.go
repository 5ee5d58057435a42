// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package model holds the Go types mirroring the schema in
// internal/database's schemaDDL: the normalised schedule template store,
// the per-date flattened projection, and the live movement log.
package model

import "time"

// STP codes, in ascending override precedence. Their lexical descending
// order ("P", "O", "N", "C") is the same as the precedence order, so a
// loop over validities sorted by STP descending can let the last
// assignment win.
const (
	STPPermanent    = "P"
	STPOverlay      = "O"
	STPNew          = "N"
	STPCancellation = "C"
)

// STPPrecedence maps an STP code to its override rank, highest wins. Named
// explicitly rather than relying on implicit lexical string ordering
// throughout the codebase.
var STPPrecedence = map[string]int{
	STPPermanent:    0,
	STPOverlay:      1,
	STPNew:          2,
	STPCancellation: 3,
}

// Location is a timing-point location: a tiploc, its national location
// code, and the identifiers used to cross-reference it against the live
// movement feed (stanox) and public-facing systems (crs).
type Location struct {
	IID    int64
	NALCO  string
	Tiploc string
	Name   string
	Stanox *int32
	CRS    *string
}

// Header records one CIF extract's metadata. The most recent header by
// ExtractDate defines the current horizon the schedule refresher measures
// gaps against.
type Header struct {
	Identity         string
	ExtractDate      time.Time
	ExtractTime      string
	CurrentReference string
	LastReference    string
	UpdateIndicator  string // "F" full extract, "U" daily update
	Version          string
	UserStartDate    time.Time
	UserEndDate      time.Time
}

// IsFullExtract reports whether this header's update indicator denotes a
// full extract rather than a daily update.
func (h Header) IsFullExtract() bool {
	return h.UpdateIndicator == "F"
}

// ScheduleValidity is a template's calendar validity window: the range of
// dates it applies to, the weekday mask, and the STP code that determines
// override precedence against other validities for the same service.
type ScheduleValidity struct {
	IID                int64
	UID                string
	ValidFrom          time.Time
	ValidTo            time.Time
	Weekdays           string // 7 chars, Mon..Sun, '1' or '0'
	BankHolidayRunning string
	STP                string
	FlattenedTo        *time.Time
}

// RunsOn reports whether this validity is in effect and scheduled to run
// on the given date.
func (v ScheduleValidity) RunsOn(date time.Time) bool {
	d := truncateToDate(date)
	if d.Before(truncateToDate(v.ValidFrom)) || d.After(truncateToDate(v.ValidTo)) {
		return false
	}
	weekday := int(d.Weekday())
	// time.Weekday: Sunday=0 ... Saturday=6. Weekdays string is Mon..Sun.
	pos := (weekday + 6) % 7
	return pos < len(v.Weekdays) && v.Weekdays[pos] == '1'
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Schedule is a template body: the descriptive and traction attributes
// shared by every calendar date the owning ScheduleValidity covers.
type Schedule struct {
	IID                      int64
	ValidityIID              int64
	SegmentInstance          int16
	Status                   string
	Category                 string
	SignallingID             string
	Headcode                 string
	BusinessSector           string
	PowerType                string
	TimingLoad               string
	Speed                    string
	OperatingCharacteristics string
	SeatingClass             string
	Sleepers                 string
	Reservations             string
	Catering                 string
	Branding                 string
	TractionClass            string
	UICCode                  string
	ATOCCode                 string
	ApplicableTimetable      string
	OriginLocationIID        *int64
	DestinationLocationIID   *int64
}

// ScheduleLocation is one stop in a template's ordered stop list. Timings
// are half-minute offsets from local midnight on the schedule's first day,
// already corrected for midnight wraps by the parser.
type ScheduleLocation struct {
	IID                  int64
	ScheduleIID          int64
	LocationIID          int64
	TiplocInstance       string
	ArrivalTime          *int16
	DepartureTime        *int16
	PassTime             *int16
	ArrivalPublic        *string
	DeparturePublic      *string
	Platform             string
	Line                 string
	Path                 string
	Activity             string
	EngineeringAllowance string
	PathingAllowance     string
	PerformanceAllowance string
}

// Association is a template-to-template linkage (join/divide/next).
type Association struct {
	UID           string
	UIDAssoc      string
	ValidFrom     time.Time
	ValidTo       time.Time
	AssocDays     string
	Category      string
	DateIndicator string
	Tiploc        string
	Suffix        string
	SuffixAssoc   string
	Type          string
	STP           string
}

// FlatSchedule is the per-date materialisation of a template joined to a
// concrete running train and its observed live-feed state.
type FlatSchedule struct {
	IID                 int64
	ScheduleValidityIID *int64
	UID                 string
	StartDate           time.Time
	TrustID             *string
	ActualSignallingID  *string
	ActualServiceCode   *string

	ActivationDatetime *int64
	TrainCallType      *string

	CancellationDatetime *int64
	CancellationReason   *string
	CancellationLocation *int64

	CurrentLocation  *int64
	CurrentVariation *int32
}

// FlatTiming is one stop's absolute timestamps within a FlatSchedule.
type FlatTiming struct {
	FlatScheduleIID     int64
	ScheduleLocationIID int64
	LocationIID         int64
	ArrivalScheduled    *int64
	DepartureScheduled  *int64
	PassScheduled       *int64
}

// Movement type and variation status codes used by TrustMovement, as
// mapped from the live feed's textual event_type/variation_status fields.
const (
	MovementArrival   = "A"
	MovementDeparture = "D"

	VariationOnTime  = "O"
	VariationEarly   = "E"
	VariationLate    = "L"
	VariationOffRoute = "-"
)

// TrustMovement is an append-only record of one observed movement event.
type TrustMovement struct {
	FlatScheduleIID       int64
	Stanox                int32
	DatetimeScheduled     *int64
	DatetimeActual        int64
	MovementType          string
	ActualPlatform        *string
	ActualRoute           *string
	ActualLine            *string
	ActualVariationStatus *string
	ActualVariation       *int32
	ActualDirection       *string
	ActualSource          *string
}

// FlatReconstitution is a pending re-flatten task for (uid, start_date),
// queued whenever a FlatSchedule is deleted by something other than the
// flattening engine itself.
type FlatReconstitution struct {
	UID       string
	StartDate time.Time
}
