// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the flattening engine's worker pool lifecycle
// (internal/flatten.Engine) and the schedule refresher's poll loop
// (internal/refresh.Refresher).
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// WorkerService wraps a StartStopper as a supervised suture.Service.
//
// It adapts the Start/Stop lifecycle pattern to suture's Serve pattern:
//  1. Calls Start(ctx), which spawns the component's internal goroutines
//     and returns immediately
//  2. Blocks until the context is canceled
//  3. Calls Stop(), which waits for those goroutines to finish
type WorkerService struct {
	worker StartStopper
	name   string
}

// NewWorkerService creates a worker service wrapper identified by name in
// supervisor logs (e.g. "flatten-engine", "schedule-refresher").
func NewWorkerService(name string, worker StartStopper) *WorkerService {
	return &WorkerService{worker: worker, name: name}
}

// Serve implements suture.Service.
func (s *WorkerService) Serve(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.worker.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}

	return ctx.Err()
}

// String implements fmt.Stringer. Suture uses this to identify the service
// in log messages.
func (s *WorkerService) String() string {
	return s.name
}
