// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockWorker struct {
	started atomic.Bool
	stopped atomic.Bool
	stopErr error
}

func (m *mockWorker) Start(ctx context.Context) error {
	m.started.Store(true)
	return nil
}

func (m *mockWorker) Stop() error {
	m.stopped.Store(true)
	return m.stopErr
}

func TestWorkerServiceLifecycle(t *testing.T) {
	mock := &mockWorker{}
	svc := NewWorkerService("flatten-engine", mock)
	require.Equal(t, "flatten-engine", svc.String())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, mock.started.Load())
	require.True(t, mock.stopped.Load())
}

func TestWorkerServiceStopError(t *testing.T) {
	mock := &mockWorker{stopErr: errors.New("stop failed")}
	svc := NewWorkerService("schedule-refresher", mock)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	require.Error(t, err)
}
