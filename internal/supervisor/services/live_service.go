// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package services

import (
	"context"
	"fmt"
	"time"
)

// StartShutdowner matches the live movement subscriber's lifecycle:
// internal/live.Subscriber.
type StartShutdowner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// LiveIngesterService wraps the live movement subscriber as a supervised
// suture.Service.
//
// It adapts the Start/Shutdown lifecycle pattern to suture's Serve pattern:
//  1. Calls Start(ctx) to open the durable broker subscription
//  2. Waits for context cancellation
//  3. Calls Shutdown(ctx) with a bounded timeout for a clean unsubscribe
type LiveIngesterService struct {
	subscriber      StartShutdowner
	shutdownTimeout time.Duration
	name            string
}

// NewLiveIngesterService creates a live ingester service wrapper with a
// 10 second shutdown timeout.
func NewLiveIngesterService(subscriber StartShutdowner) *LiveIngesterService {
	return NewLiveIngesterServiceWithTimeout(subscriber, 10*time.Second)
}

// NewLiveIngesterServiceWithTimeout creates a live ingester service wrapper
// with a custom shutdown timeout.
func NewLiveIngesterServiceWithTimeout(subscriber StartShutdowner, shutdownTimeout time.Duration) *LiveIngesterService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &LiveIngesterService{
		subscriber:      subscriber,
		shutdownTimeout: shutdownTimeout,
		name:            "live-ingester",
	}
}

// Serve implements suture.Service.
func (s *LiveIngesterService) Serve(ctx context.Context) error {
	if err := s.subscriber.Start(ctx); err != nil {
		return fmt.Errorf("live ingester start failed: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.subscriber.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer. Suture uses this to identify the service
// in log messages.
func (s *LiveIngesterService) String() string {
	return s.name
}
