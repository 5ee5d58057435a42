// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// EventLogger provides specialized logging for the live movement ingester's
// Watermill/NATS JetStream subscription: one structured line per message
// received, processed, or failed, carrying the broker message type and the
// offending train identifier so an operator can find the record in the
// upstream feed without re-subscribing.
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates a logger configured for movement message handling.
// It uses the global logger with a component field.
func NewEventLogger() *EventLogger {
	return &EventLogger{
		logger: With().Str("component", "live").Logger(),
	}
}

// NewEventLoggerWithLogger creates an EventLogger with a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value (copy-on-write semantics)
func NewEventLoggerWithLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{
		logger: logger.With().Str("component", "live").Logger(),
	}
}

// WithFields returns a new EventLogger with additional default fields.
func (e *EventLogger) WithFields(fields map[string]interface{}) *EventLogger {
	ctx := e.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &EventLogger{logger: ctx.Logger()}
}

// Debug logs a debug message.
func (e *EventLogger) Debug(msg string, fields ...interface{}) {
	event := e.logger.Debug()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Info logs an info message.
func (e *EventLogger) Info(msg string, fields ...interface{}) {
	event := e.logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Warn logs a warning message.
func (e *EventLogger) Warn(msg string, fields ...interface{}) {
	event := e.logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Error logs an error message.
func (e *EventLogger) Error(msg string, fields ...interface{}) {
	event := e.logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// DebugContext logs a debug message with context (for correlation ID).
func (e *EventLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Debug()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// InfoContext logs an info message with context.
func (e *EventLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// WarnContext logs a warning message with context.
func (e *EventLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// ErrorContext logs an error message with context.
func (e *EventLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	logger := e.loggerWithContext(ctx)
	event := logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// loggerWithContext returns a logger with context fields added.
func (e *EventLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := e.logger.With()

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}

	return logCtx.Logger()
}

// LogMessageReceived logs a movement message pulled off the durable
// subscription, before it is dispatched to a message-type handler.
func (e *EventLogger) LogMessageReceived(ctx context.Context, messageType, trainID string) {
	e.InfoContext(ctx, "movement message received",
		"message_type", messageType,
		"train_id", trainID,
	)
}

// LogMessageProcessed logs a message-type handler completing without error.
func (e *EventLogger) LogMessageProcessed(ctx context.Context, messageType string, durationMs int64) {
	e.DebugContext(ctx, "movement message processed",
		"message_type", messageType,
		"duration_ms", durationMs,
	)
}

// LogMessageFailed logs a single element of a batch failing; the batch
// transaction continues rather than aborting on one bad message.
func (e *EventLogger) LogMessageFailed(ctx context.Context, messageType, trainID string, err error) {
	logger := e.loggerWithContext(ctx)
	logger.Error().
		Str("message_type", messageType).
		Str("train_id", trainID).
		Err(err).
		Msg("movement message failed, skipping")
}

// LogBatchFlush logs a batch transaction committing.
func (e *EventLogger) LogBatchFlush(ctx context.Context, count int, durationMs int64) {
	e.InfoContext(ctx, "movement batch committed",
		"message_count", count,
		"duration_ms", durationMs,
	)
}

// LogSubscriptionStarted logs the durable subscription coming up.
func (e *EventLogger) LogSubscriptionStarted(stream, durable string) {
	e.Info("live subscription started",
		"stream", stream,
		"durable", durable,
	)
}

// LogSubscriptionStopped logs the durable subscription being torn down.
func (e *EventLogger) LogSubscriptionStopped(stream string) {
	e.Info("live subscription stopped",
		"stream", stream,
	)
}

// LogReconnecting logs a reconnect attempt with its backoff delay.
func (e *EventLogger) LogReconnecting(attempt int, delayMs int64) {
	e.Warn("live subscription reconnecting",
		"attempt", attempt,
		"delay_ms", delayMs,
	)
}
