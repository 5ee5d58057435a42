// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - Database query performance (DuckDB)
// - CIF schedule extract parsing
// - Schedule flattening
// - Live movement ingestion
// - Schedule refresh and circuit breaker state

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	DBConnectionPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckdb_connection_pool_size",
			Help: "Current number of database connections in use",
		},
	)

	// CIF Extract Parsing Metrics
	CIFRecordsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cif_records_parsed_total",
			Help: "Total number of CIF fixed-width records parsed",
		},
		[]string{"record_type"}, // HD, TI, TA, TD, BS, BX, LO, LI, LT, AA, ZZ
	)

	CIFParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cif_parse_errors_total",
			Help: "Total number of CIF records that failed to parse",
		},
		[]string{"record_type"},
	)

	CIFExtractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cif_extract_duration_seconds",
			Help:    "Duration of a full CIF extract import in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"extract_type"}, // "full", "update"
	)

	CIFBatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cif_batch_flush_duration_seconds",
			Help:    "Duration of Appender batch flushes during CIF import",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Schedule Flattening Metrics
	FlattenDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flatten_job_duration_seconds",
			Help:    "Duration of a single schedule flattening job in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlattenSchedulesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flatten_schedules_processed_total",
			Help: "Total number of schedules flattened into flat_schedules",
		},
	)

	FlattenReconstitutionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flatten_reconstitution_queue_depth",
			Help: "Current number of pending rows in flat_reconstitution",
		},
	)

	FlattenWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flatten_workers_active",
			Help: "Current number of active flattening engine workers",
		},
	)

	// Live Movement Ingestion Metrics
	LiveMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_messages_consumed_total",
			Help: "Total number of live movement messages consumed from the durable subscription",
		},
		[]string{"message_type"}, // 0001, 0002, 0003, 0005, 0006, 0007, 0008
	)

	LiveMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_messages_processed_total",
			Help: "Total number of live movement messages successfully processed",
		},
		[]string{"message_type"},
	)

	LiveMessagesParseFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_messages_parse_failed_total",
			Help: "Total number of live movement messages that failed to parse",
		},
		[]string{"message_type"},
	)

	LiveProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "live_processing_duration_seconds",
			Help:    "Duration of live movement message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LiveBatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "live_batch_flush_duration_seconds",
			Help:    "Duration of batch flush operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LiveBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "live_batch_size",
			Help:    "Number of movement messages in each batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	LiveConsumerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_consumer_lag",
			Help: "Number of pending messages in the durable subscription",
		},
	)

	LiveReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_reconnects_total",
			Help: "Total number of durable subscription reconnect attempts",
		},
	)

	// Schedule Refresh Metrics
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refresh_duration_seconds",
			Help:    "Duration of schedule refresh runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RefreshErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_errors_total",
			Help: "Total number of schedule refresh errors",
		},
		[]string{"error_type"}, // "network", "auth", "decompress", "parse", "database"
	)

	RefreshLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refresh_last_success_timestamp",
			Help: "Unix timestamp of the last successful schedule refresh",
		},
	)

	RefreshHorizonGapDays = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refresh_horizon_gap_days",
			Help: "Number of days between now and the last validated schedule extract",
		},
	)

	// Circuit Breaker Metrics (schedule refresher's Network Rail feed client)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordCIFRecord records a single parsed (or rejected) CIF fixed-width record.
func RecordCIFRecord(recordType string, err error) {
	if err != nil {
		CIFParseErrors.WithLabelValues(recordType).Inc()
		return
	}
	CIFRecordsParsed.WithLabelValues(recordType).Inc()
}

// RecordCIFExtract records the duration of a full CIF extract import.
func RecordCIFExtract(extractType string, duration time.Duration) {
	CIFExtractDuration.WithLabelValues(extractType).Observe(duration.Seconds())
}

// RecordCIFBatchFlush records the duration of an Appender batch flush.
func RecordCIFBatchFlush(duration time.Duration) {
	CIFBatchFlushDuration.Observe(duration.Seconds())
}

// RecordFlattenJob records a single flattening engine worker job.
func RecordFlattenJob(duration time.Duration, schedulesProcessed int) {
	FlattenDuration.Observe(duration.Seconds())
	FlattenSchedulesProcessed.Add(float64(schedulesProcessed))
}

// UpdateFlattenReconstitutionQueueDepth updates the pending reconstitution gauge.
func UpdateFlattenReconstitutionQueueDepth(depth int64) {
	FlattenReconstitutionQueueDepth.Set(float64(depth))
}

// SetFlattenWorkersActive sets the current active worker count.
func SetFlattenWorkersActive(count int) {
	FlattenWorkersActive.Set(float64(count))
}

// RecordLiveMessageConsumed records a message received from the durable subscription.
func RecordLiveMessageConsumed(messageType string) {
	LiveMessagesConsumed.WithLabelValues(messageType).Inc()
}

// RecordLiveMessageProcessed records a message being successfully processed.
func RecordLiveMessageProcessed(messageType string, duration time.Duration) {
	LiveMessagesProcessed.WithLabelValues(messageType).Inc()
	LiveProcessingDuration.Observe(duration.Seconds())
}

// RecordLiveMessageParseFailed records a message that failed to parse.
func RecordLiveMessageParseFailed(messageType string) {
	LiveMessagesParseFailed.WithLabelValues(messageType).Inc()
}

// RecordLiveBatchFlush records a batch flush operation.
func RecordLiveBatchFlush(duration time.Duration, batchSize int) {
	LiveBatchFlushDuration.Observe(duration.Seconds())
	LiveBatchSize.Observe(float64(batchSize))
}

// UpdateLiveConsumerLag updates the durable subscription consumer lag gauge.
func UpdateLiveConsumerLag(lag int64) {
	LiveConsumerLag.Set(float64(lag))
}

// RecordLiveReconnect records a durable subscription reconnect attempt.
func RecordLiveReconnect() {
	LiveReconnects.Inc()
}

// RecordRefresh records a schedule refresh run.
func RecordRefresh(duration time.Duration, err error) {
	RefreshDuration.Observe(duration.Seconds())
	if err != nil {
		errorType := classifyRefreshError(err.Error())
		RefreshErrors.WithLabelValues(errorType).Inc()
		return
	}
	RefreshLastSuccess.Set(float64(time.Now().Unix()))
}

// UpdateRefreshHorizonGap updates the horizon gap gauge.
func UpdateRefreshHorizonGap(days int) {
	RefreshHorizonGapDays.Set(float64(days))
}

func classifyRefreshError(msg string) string {
	switch {
	case strings.Contains(msg, "auth"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return "auth"
	case strings.Contains(msg, "gzip"), strings.Contains(msg, "decompress"):
		return "decompress"
	case strings.Contains(msg, "parse"), strings.Contains(msg, "record"):
		return "parse"
	case strings.Contains(msg, "database"), strings.Contains(msg, "duckdb"):
		return "database"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return "network"
	default:
		return "other"
	}
}
