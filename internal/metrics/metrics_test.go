// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestRecordDBQuery tests database query metric recording
func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		duration  time.Duration
		err       error
	}{
		{
			name:      "successful SELECT query",
			operation: "SELECT",
			table:     "schedules",
			duration:  10 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "successful INSERT query",
			operation: "INSERT",
			table:     "schedule_locations",
			duration:  5 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "failed query with short error",
			operation: "UPDATE",
			table:     "trust_movements",
			duration:  100 * time.Millisecond,
			err:       errors.New("connection refused"),
		},
		{
			name:      "failed query with long error - should truncate to 50 chars",
			operation: "DELETE",
			table:     "flat_reconstitution",
			duration:  50 * time.Millisecond,
			err:       errors.New("this is a very long error message that exceeds fifty characters and should be truncated properly"),
		},
		{
			name:      "fast query under 1ms",
			operation: "SELECT",
			table:     "locations",
			duration:  500 * time.Microsecond,
			err:       nil,
		},
		{
			name:      "slow query over 5 seconds",
			operation: "SELECT",
			table:     "flat_schedules",
			duration:  5500 * time.Millisecond,
			err:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Record the query - should not panic
			RecordDBQuery(tt.operation, tt.table, tt.duration, tt.err)
		})
	}
}

// TestRecordDBQuery_ErrorTruncation verifies error messages are truncated at 50 chars
func TestRecordDBQuery_ErrorTruncation(t *testing.T) {
	err50 := errors.New(strings.Repeat("a", 50))
	RecordDBQuery("SELECT", "test", time.Millisecond, err50)

	err51 := errors.New(strings.Repeat("b", 51))
	RecordDBQuery("SELECT", "test", time.Millisecond, err51)

	err100 := errors.New(strings.Repeat("c", 100))
	RecordDBQuery("SELECT", "test", time.Millisecond, err100)

	errShort := errors.New("err")
	RecordDBQuery("SELECT", "test", time.Millisecond, errShort)
}

// TestRecordCIFRecord tests CIF record parse metric recording
func TestRecordCIFRecord(t *testing.T) {
	tests := []struct {
		name       string
		recordType string
		err        error
	}{
		{name: "header parsed", recordType: "HD", err: nil},
		{name: "basic schedule parsed", recordType: "BS", err: nil},
		{name: "location parsed", recordType: "LI", err: nil},
		{name: "terminal record parsed", recordType: "ZZ", err: nil},
		{name: "malformed basic schedule", recordType: "BS", err: errors.New("bad field width")},
		{name: "malformed origin location", recordType: "LO", err: errors.New("invalid time")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordCIFRecord(tt.recordType, tt.err)
		})
	}
}

func TestRecordCIFExtract(t *testing.T) {
	RecordCIFExtract("full", 90*time.Second)
	RecordCIFExtract("update", 2*time.Second)
}

func TestRecordCIFBatchFlush(t *testing.T) {
	RecordCIFBatchFlush(15 * time.Millisecond)
}

// TestRecordFlattenJob tests flattening engine metric recording
func TestRecordFlattenJob(t *testing.T) {
	tests := []struct {
		name               string
		duration           time.Duration
		schedulesProcessed int
	}{
		{name: "small job", duration: 10 * time.Millisecond, schedulesProcessed: 5},
		{name: "large job", duration: 2 * time.Second, schedulesProcessed: 5000},
		{name: "empty job", duration: time.Millisecond, schedulesProcessed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordFlattenJob(tt.duration, tt.schedulesProcessed)
		})
	}
}

func TestUpdateFlattenReconstitutionQueueDepth(t *testing.T) {
	UpdateFlattenReconstitutionQueueDepth(0)
	UpdateFlattenReconstitutionQueueDepth(42)
}

func TestSetFlattenWorkersActive(t *testing.T) {
	SetFlattenWorkersActive(4)
	SetFlattenWorkersActive(0)
}

// TestLiveMessageMetrics tests live movement ingestion metric recording
func TestLiveMessageMetrics(t *testing.T) {
	messageTypes := []string{"0001", "0002", "0003", "0005", "0006", "0007", "0008"}

	for _, mt := range messageTypes {
		t.Run(mt, func(t *testing.T) {
			RecordLiveMessageConsumed(mt)
			RecordLiveMessageProcessed(mt, 2*time.Millisecond)
			RecordLiveMessageParseFailed(mt)
		})
	}
}

func TestRecordLiveBatchFlush(t *testing.T) {
	RecordLiveBatchFlush(25*time.Millisecond, 100)
}

func TestUpdateLiveConsumerLag(t *testing.T) {
	UpdateLiveConsumerLag(0)
	UpdateLiveConsumerLag(1500)
}

func TestRecordLiveReconnect(t *testing.T) {
	RecordLiveReconnect()
}

// TestRecordRefresh tests schedule refresh metric recording and error classification
func TestRecordRefresh(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		err      error
	}{
		{name: "successful refresh", duration: 5 * time.Second, err: nil},
		{name: "network error", duration: 30 * time.Second, err: errors.New("connection timeout")},
		{name: "auth error", duration: time.Second, err: errors.New("401 unauthorized")},
		{name: "decompress error", duration: 2 * time.Second, err: errors.New("gzip: invalid header")},
		{name: "parse error", duration: 10 * time.Second, err: errors.New("failed to parse record")},
		{name: "database error", duration: 3 * time.Second, err: errors.New("database write failed")},
		{name: "unclassified error", duration: time.Second, err: errors.New("something unexpected")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordRefresh(tt.duration, tt.err)
		})
	}
}

func TestUpdateRefreshHorizonGap(t *testing.T) {
	UpdateRefreshHorizonGap(0)
	UpdateRefreshHorizonGap(7)
}

func TestClassifyRefreshError(t *testing.T) {
	tests := []struct {
		msg      string
		expected string
	}{
		{msg: "401 forbidden", expected: "auth"},
		{msg: "gzip decompress failed", expected: "decompress"},
		{msg: "could not parse record", expected: "parse"},
		{msg: "duckdb write failed", expected: "database"},
		{msg: "connection timeout", expected: "network"},
		{msg: "unknown failure", expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := classifyRefreshError(tt.msg); got != tt.expected {
				t.Errorf("classifyRefreshError(%q) = %q, want %q", tt.msg, got, tt.expected)
			}
		})
	}
}
