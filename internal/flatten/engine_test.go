// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package flatten

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/config"
)

func TestEngine_DispatchIsConsistentPerUID(t *testing.T) {
	e := &Engine{chans: make([]chan Task, 4)}
	for i := range e.chans {
		e.chans[i] = make(chan Task, 1)
	}

	ctx := context.Background()
	e.dispatch(ctx, Task{UID: "A00001"})

	var got int = -1
	for i, ch := range e.chans {
		select {
		case <-ch:
			got = i
		default:
		}
	}
	require.NotEqual(t, -1, got, "expected exactly one channel to receive the task")

	for i := range e.chans {
		e.chans[i] = make(chan Task, 1)
	}
	e.dispatch(ctx, Task{UID: "A00001"})

	var gotAgain int = -1
	for i, ch := range e.chans {
		select {
		case <-ch:
			gotAgain = i
		default:
		}
	}
	require.Equal(t, got, gotAgain, "the same uid must always hash to the same worker")
}

func TestEngine_StartStop(t *testing.T) {
	db := setupTestDB(t)

	e := New(db, config.FlattenConfig{
		HorizonDays:  7,
		WorkerCount:  2,
		PollInterval: 10 * time.Millisecond,
		QueueDepth:   8,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, e.Stop())
}
