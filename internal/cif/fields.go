// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package cif parses Network Rail's Common Interchange Format schedule
// extracts: fixed-width 80-byte records (plus a trailing newline) of
// types HD/AA/TI/TA/TD/BS/BX/LO/LI/LT/ZZ, each a flat run of
// positionally-defined fields.
//
// Grounded line-for-line on _examples/original_source/parser.py.
package cif

import (
	"strconv"
	"strings"
	"time"
)

// recordLength is the fixed payload length of a CIF record, excluding its
// trailing newline.
const recordLength = 80

// cStr trims trailing whitespace, matching parser.py's c_str.
func cStr(s string) string {
	return strings.TrimRight(s, " ")
}

// cStrN trims trailing whitespace and returns nil for an empty result,
// matching parser.py's c_str_n.
func cStrN(s string) *string {
	t := cStr(s)
	if t == "" {
		return nil
	}
	return &t
}

// cNum parses a trimmed numeric field, returning nil when blank, matching
// parser.py's c_num.
func cNum(s string) *int {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return nil
	}
	return &n
}

// cNum32 is cNum narrowed to int32, used for stanox fields.
func cNum32(s string) *int32 {
	n := cNum(s)
	if n == nil {
		return nil
	}
	v := int32(*n)
	return &v
}

// cTime decodes a 5-character HHMMH time field into half-minute offsets
// from local midnight, where the trailing H marks a half-minute ("H" for
// half past the displayed minute). A field of all spaces means "not
// present". Matches parser.py's c_time.
func cTime(s string) *int16 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if len(s) < 5 {
		return nil
	}
	hh, err := strconv.Atoi(s[0:2])
	if err != nil {
		return nil
	}
	mm, err := strconv.Atoi(s[2:4])
	if err != nil {
		return nil
	}
	half := int16(0)
	if s[4] == 'H' {
		half = 1
	}
	v := int16(hh*120 + mm*2 + int(half))
	return &v
}

// cDate decodes a 6-character YYMMDD field (the order BS/AA validity
// windows use) into a time.Time at UTC midnight. Matches parser.py's
// c_date.
func cDate(s string) time.Time {
	yy, mm, dd := s[0:2], s[2:4], s[4:6]
	return parseYMD("20"+yy, mm, dd)
}

// cDateDMY decodes a 6-character DDMMYY field (the order HD header dates
// use) into a time.Time at UTC midnight. Matches parser.py's c_date_dmy.
func cDateDMY(s string) time.Time {
	dd, mm, yy := s[0:2], s[2:4], s[4:6]
	return parseYMD("20"+yy, mm, dd)
}

func parseYMD(yyyy, mm, dd string) time.Time {
	t, err := time.Parse("2006-01-02", yyyy+"-"+mm+"-"+dd)
	if err != nil {
		return time.Time{}
	}
	return t
}
