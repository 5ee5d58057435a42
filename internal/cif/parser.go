// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package cif

import (
	"context"
	"fmt"
	"io"

	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/model"
	"github.com/tomtom215/cartographus/internal/store"
)

// batchFlushEvery mirrors parser.py's "every 100 records" batch flush
// cadence for the schedule_locations delete/insert plans.
const batchFlushEvery = 100

// Parser turns a CIF extract stream into rows in the schedule store. One
// Parser instance is reused across extracts; all of its working state is
// local to a single call to Parse.
type Parser struct {
	registry *locations.Registry
}

// NewParser returns a Parser backed by the given location registry.
func NewParser(registry *locations.Registry) *Parser {
	return &Parser{registry: registry}
}

// Result summarises one parsed extract, returned so the caller can decide
// whether to build the deferred schedule_locations index (full extracts
// only) and to feed the header back into internal/refresh's gap check.
type Result struct {
	Header         model.Header
	RecordsParsed  int
	SawTerminator  bool
}

// Parse reads one CIF extract from r and applies every record to db.
// Callers are expected to run Parse inside a single transaction and
// commit only after it returns successfully - partial extracts must not
// be visible. Grounded line-for-line on parser.py:parse_cif.
func (p *Parser) Parse(ctx context.Context, db store.Execer, r io.Reader) (Result, error) {
	var (
		header   model.Header
		result   Result
		stops    = store.NewStopBatch()
		toDelete []int64

		transactionType byte
		svID            int64
		bsID            int64
		lastTime        int16
		timeOffset      int16
	)

	flush := func() error {
		for _, iid := range toDelete {
			if err := store.DeleteStopsForSchedule(ctx, db, iid); err != nil {
				return err
			}
		}
		toDelete = toDelete[:0]
		return stops.Flush(ctx, db)
	}

	buf := make([]byte, recordLength)
	nl := make([]byte, 1)

recordLoop:
	for {
		n, err := io.ReadFull(r, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("cif: read record %d: %w", result.RecordsParsed+1, err)
		}
		_, _ = io.ReadFull(r, nl) // trailing newline; tolerate EOF on the final record

		record := string(buf[:n])
		recordType := sub(record, 0, 2)
		line := sub(record, 2, len(record))
		result.RecordsParsed++

		if result.RecordsParsed%batchFlushEvery == 0 {
			if err := flush(); err != nil {
				return result, err
			}
		}

		var recErr error
		switch recordType {
		case "HD":
			header = model.Header{
				Identity:         sub(line, 0, 20),
				ExtractDate:      cDateDMY(sub(line, 20, 26)),
				ExtractTime:      sub(line, 26, 30),
				CurrentReference: sub(line, 30, 37),
				LastReference:    sub(line, 37, 44),
				UpdateIndicator:  ch(line, 44),
				Version:          ch(line, 45),
				UserStartDate:    cDateDMY(sub(line, 46, 52)),
				UserEndDate:      cDateDMY(sub(line, 52, 58)),
			}
			recErr = store.InsertHeader(ctx, db, header)
			logging.Info().Str("identity", header.Identity).Str("indicator", header.UpdateIndicator).Msg("CIF header parsed")

		case "AA":
			transactionType = buf[2]
			uid := sub(line, 1, 7)
			uidAssoc := sub(line, 7, 13)
			validFrom := cDate(sub(line, 13, 19))
			stp := ch(line, 77)
			if transactionType == 'N' || transactionType == 'R' {
				a := model.Association{
					UID: uid, UIDAssoc: uidAssoc,
					ValidFrom: validFrom, ValidTo: cDate(sub(line, 19, 25)),
					AssocDays: sub(line, 25, 32),
					Category:  derefStr(cStrN(sub(line, 32, 34))),
					DateIndicator: ch(line, 34),
					Tiploc:        cStr(sub(line, 35, 42)),
					Suffix:        derefNumStr(cNum(ch(line, 42))),
					SuffixAssoc:   derefNumStr(cNum(ch(line, 43))),
					Type:          ch(line, 45),
					STP:           stp,
				}
				recErr = store.UpsertAssociation(ctx, db, a)
			} else {
				recErr = store.DeleteAssociation(ctx, db, uid, uidAssoc, validFrom, stp)
			}

		case "TI", "TA":
			tiploc := cStr(sub(line, 0, 7))
			nlc := cStr(sub(line, 9, 15))
			descriptionTPS := cStr(sub(line, 16, 42))
			stanox := cNum32(sub(line, 42, 47))
			crs := cStrN(sub(line, 51, 54))
			loc := model.Location{NALCO: nlc, Tiploc: tiploc, Name: descriptionTPS, Stanox: stanox, CRS: crs}
			if recordType == "TI" {
				_, _, recErr = p.registry.InsertNew(ctx, db, loc)
			} else {
				replacement := cStr(sub(line, 70, 77))
				loc.Tiploc = replacement
				_, recErr = p.registry.Amend(ctx, db, tiploc, loc)
			}

		case "TD":
			tiploc := cStr(sub(line, 0, 7))
			recErr = p.registry.DeleteByTiploc(ctx, db, tiploc)

		case "BS":
			transactionType = buf[2]
			uid := sub(line, 1, 7)
			validFrom := cDate(sub(line, 7, 13))
			stp := ch(line, 77)
			if transactionType == 'N' || transactionType == 'R' {
				v := model.ScheduleValidity{
					UID: uid, ValidFrom: validFrom, ValidTo: cDate(sub(line, 13, 19)),
					Weekdays: sub(line, 19, 26), BankHolidayRunning: ch(line, 26), STP: stp,
				}
				svID, recErr = store.UpsertValidity(ctx, db, v)
				if recErr == nil {
					s := model.Schedule{
						ValidityIID: svID, SegmentInstance: 0,
						Status: ch(line, 27), Category: sub(line, 28, 30),
						SignallingID: derefStr(cStrN(sub(line, 30, 34))),
						Headcode:     derefStr(cStrN(sub(line, 34, 38))),
						BusinessSector: ch(line, 47),
						PowerType:      derefStr(cStrN(sub(line, 48, 51))),
						TimingLoad:     derefStr(cStrN(sub(line, 51, 55))),
						Speed:          derefStr(cStrN(sub(line, 55, 58))),
						OperatingCharacteristics: sub(line, 58, 64),
						SeatingClass:             derefStr(cStrN(ch(line, 64))),
						Sleepers:                 derefStr(cStrN(ch(line, 65))),
						Reservations:             derefStr(cStrN(ch(line, 66))),
						Catering:                 sub(line, 68, 72),
						Branding:                 sub(line, 72, 76),
						// Placeholders overwritten by a following BX record, if
						// present, exactly as parser.py inserts them.
						TractionClass:       "",
						UICCode:             "",
						ATOCCode:            "ZZ",
						ApplicableTimetable: "",
					}
					bsID, recErr = store.UpsertSchedule(ctx, db, s)
				}
			} else {
				var vIID int64
				vIID, recErr = store.ValidityIID(ctx, db, uid, validFrom, stp)
				if recErr == nil {
					recErr = store.DeleteValidity(ctx, db, vIID)
				} else if recErr == store.ErrNotFound {
					recErr = nil
				}
			}

		case "BX":
			recErr = store.SetTractionExtension(ctx, db, bsID,
				sub(line, 0, 4), cStr(sub(line, 4, 9)), sub(line, 9, 11), ch(line, 11))

		case "LO", "LI", "LT":
			if recordType == "LO" {
				lastTime, timeOffset = 0, 0
				if transactionType == 'R' {
					toDelete = append(toDelete, bsID)
					if recErr = store.ClearFlattenedTo(ctx, db, svID); recErr != nil {
						break
					}
				}
			}

			tiploc := cStr(sub(line, 0, 7))
			tiplocInstance := derefStr(cStrN(ch(line, 7)))

			var arrival, departure, pass *int16
			var publicArrival, publicDeparture, platform, schedLine, path *string
			var activity, engineeringAllowance, pathingAllowance, performanceAllowance *string

			switch recordType {
			case "LO":
				departure = cTime(sub(line, 8, 13))
				publicDeparture = cStrN(sub(line, 13, 17))
				platform = cStrN(sub(line, 17, 20))
				schedLine = cStrN(sub(line, 20, 23))
				engineeringAllowance = cStrN(sub(line, 23, 25))
				pathingAllowance = cStrN(sub(line, 25, 27))
				act := sub(line, 27, 39)
				activity = &act
				performanceAllowance = cStrN(sub(line, 39, 41))
			case "LI":
				arrival = cTime(sub(line, 8, 13))
				departure = cTime(sub(line, 13, 18))
				pass = cTime(sub(line, 18, 23))
				publicArrival = cStrN(sub(line, 23, 27))
				publicDeparture = cStrN(sub(line, 27, 31))
				platform = cStrN(sub(line, 31, 34))
				schedLine = cStrN(sub(line, 34, 37))
				path = cStrN(sub(line, 37, 40))
				act := sub(line, 40, 52)
				activity = &act
				engineeringAllowance = cStrN(sub(line, 52, 54))
				pathingAllowance = cStrN(sub(line, 54, 56))
				performanceAllowance = cStrN(sub(line, 56, 58))
			case "LT":
				arrival = cTime(sub(line, 8, 13))
				publicArrival = cStrN(sub(line, 13, 17))
				platform = cStrN(sub(line, 17, 20))
				path = cStrN(sub(line, 20, 23))
				act := sub(line, 23, 35)
				activity = &act
			}

			locIID, ok := p.registry.ResolveByTiploc(tiploc)
			if !ok {
				recErr = fmt.Errorf("cif: stop %q at record %d: %w", tiploc, result.RecordsParsed, locations.ErrUnknownTiploc)
				break
			}

			if recordType == "LO" {
				recErr = store.SetOriginLocation(ctx, db, bsID, locIID)
			} else if recordType == "LT" {
				recErr = store.SetDestinationLocation(ctx, db, bsID, locIID)
			}
			if recErr != nil {
				break
			}

			corrected := correctMidnightWrap(&lastTime, &timeOffset, arrival, departure, pass)
			arrival, departure, pass = corrected[0], corrected[1], corrected[2]

			if publicArrival != nil && *publicArrival == "0000" {
				publicArrival = nil
			}
			if publicDeparture != nil && *publicDeparture == "0000" {
				publicDeparture = nil
			}

			stops.Append(model.ScheduleLocation{
				ScheduleIID: bsID, LocationIID: locIID, TiplocInstance: tiplocInstance,
				ArrivalTime: arrival, DepartureTime: departure, PassTime: pass,
				ArrivalPublic: publicArrival, DeparturePublic: publicDeparture,
				Platform: derefStr(platform), Line: derefStr(schedLine), Path: derefStr(path),
				Activity:             derefStr(activity),
				EngineeringAllowance: derefStr(engineeringAllowance),
				PathingAllowance:     derefStr(pathingAllowance),
				PerformanceAllowance: derefStr(performanceAllowance),
			})

		case "ZZ":
			result.SawTerminator = true
			recErr = flush()
			if recErr == nil {
				break recordLoop
			}

		default:
			// Blank trailer padding or an unrecognised record type: ignored,
			// matching parser.py's implicit no-op for anything outside the
			// handled record types.
		}

		metrics.RecordCIFRecord(recordType, recErr)
		if recErr != nil {
			return result, fmt.Errorf("cif: record %d (%s): %w", result.RecordsParsed, recordType, recErr)
		}
	}

	result.Header = header
	return result, nil
}

// correctMidnightWrap applies parser.py's running midnight-wrap
// correction across the three time fields of one stop record, in
// arrival/departure/pass order, using and updating the schedule-scoped
// lastTime/timeOffset state.
func correctMidnightWrap(lastTime, timeOffset *int16, times ...*int16) []*int16 {
	out := make([]*int16, len(times))
	for i, t := range times {
		if t == nil {
			out[i] = nil
			continue
		}
		if *t < *lastTime {
			*timeOffset++
		}
		*lastTime = *t
		corrected := *t + *timeOffset*2880
		out[i] = &corrected
	}
	return out
}

func sub(s string, lo, hi int) string {
	if lo < 0 {
		lo = 0
	}
	if lo > len(s) {
		return ""
	}
	if hi > len(s) {
		hi = len(s)
	}
	if hi < lo {
		return ""
	}
	return s[lo:hi]
}

func ch(s string, idx int) string {
	return sub(s, idx, idx+1)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefNumStr(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}
