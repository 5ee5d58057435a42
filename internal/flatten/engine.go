// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package flatten

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/store"
)

// Engine is the flattening engine's worker pool driver: a poll loop that
// discovers due work (services whose flattened_to marker has fallen
// behind the horizon, plus pending reconstitution tasks) and dispatches
// it to a fixed set of workers, one per-connection, partitioned by uid so
// a service is never flattened by two workers concurrently.
//
// Implements services.StartStopper. Grounded on flat_maintenance.py's
// outer dispatch loop, adapted from its round-robin-across-two-passes
// dispatch to consistent uid-hash partitioning (see DESIGN.md).
type Engine struct {
	db  *database.DB
	cfg config.FlattenConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
	chans  []chan Task
}

// New returns an Engine ready to Start.
func New(db *database.DB, cfg config.FlattenConfig) *Engine {
	return &Engine{db: db, cfg: cfg}
}

// Start spawns the worker pool and the poll loop, then returns
// immediately; both run until Stop is called or ctx is canceled.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.chans = make([]chan Task, e.cfg.WorkerCount)
	for i := range e.chans {
		e.chans[i] = make(chan Task, e.cfg.QueueDepth)
	}

	for i, ch := range e.chans {
		conn, err := e.db.NewSession(runCtx)
		if err != nil {
			cancel()
			return err
		}
		e.wg.Add(1)
		go e.runWorker(runCtx, i, conn, ch)
	}

	metrics.SetFlattenWorkersActive(e.cfg.WorkerCount)

	e.wg.Add(1)
	go e.pollLoop(runCtx)

	return nil
}

// Stop cancels the poll loop and every worker, then waits for them to
// drain their current task.
func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	metrics.SetFlattenWorkersActive(0)
	return nil
}

// pollLoop ticks every PollInterval, finds due work, and dispatches it.
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	horizon := time.Now().UTC().AddDate(0, 0, e.cfg.HorizonDays)
	horizon = time.Date(horizon.Year(), horizon.Month(), horizon.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Now().UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	uids, err := store.ServicesDueForFlattening(ctx, e.db.Conn(), horizon)
	if err != nil {
		logging.CtxErr(ctx, err).Msg("flatten: list services due for flattening")
	} else {
		for _, uid := range uids {
			e.dispatch(ctx, Task{
				UID:  uid,
				From: today,
				Days: e.cfg.HorizonDays,
			})
		}
	}

	pending, err := store.ListReconstitution(ctx, e.db.Conn())
	if err != nil {
		logging.CtxErr(ctx, err).Msg("flatten: list reconstitution queue")
		return
	}
	metrics.UpdateFlattenReconstitutionQueueDepth(int64(len(pending)))
	for _, task := range pending {
		e.dispatch(ctx, Task{
			UID:            task.UID,
			From:           task.StartDate,
			Reconstitution: true,
		})
	}
}

// dispatch routes a task to the worker whose channel owns this uid,
// hashed by FNV-1a so the same service always lands on the same worker
// regardless of which pass (horizon or reconstitution) produced the
// task.
func (e *Engine) dispatch(ctx context.Context, task Task) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(task.UID))
	idx := int(h.Sum32() % uint32(len(e.chans)))

	select {
	case e.chans[idx] <- task:
	case <-ctx.Done():
	}
}

// runWorker processes tasks from ch one at a time, each inside its own
// transaction on the worker's dedicated connection. A per-task
// transaction boundary is a simplification of flat_maintenance.py's
// periodic batched commits, chosen for correctness since no load testing
// is possible here (see DESIGN.md).
func (e *Engine) runWorker(ctx context.Context, id int, conn *sql.Conn, ch chan Task) {
	defer e.wg.Done()
	defer conn.Close()

	log := logging.Ctx(ctx).With().Int("flatten_worker", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-ch:
			if !ok {
				return
			}
			e.runTask(ctx, &log, conn, task)
		}
	}
}

func (e *Engine) runTask(ctx context.Context, log *zerolog.Logger, conn *sql.Conn, task Task) {
	start := time.Now()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Str("uid", task.UID).Msg("flatten: begin transaction")
		return
	}

	if err := processTask(ctx, tx, task); err != nil {
		log.Error().Err(err).Str("uid", task.UID).Msg("flatten: process task")
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("flatten: rollback after failed task")
		}
		return
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("uid", task.UID).Msg("flatten: commit task")
		return
	}

	metrics.RecordFlattenJob(time.Since(start), task.Days+1)
}
