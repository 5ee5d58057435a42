// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package refresh is the schedule refresher: it keeps the normalised
// schedule store caught up with the upstream daily update feed by
// comparing the latest extract date already applied against today and
// fetching every intervening day's update file.
//
// Grounded on _examples/original_source/renew_schedules.py: its gap
// check (refuse a catch-up spanning more than a week, skip if already
// current) and its per-weekday authenticated gzip fetch are reproduced
// here unchanged; the cron-job invocation becomes a poll loop so the
// check runs inside the same long-lived process as every other
// subsystem, and the bare requests.get call becomes an HTTP client
// wrapped in a circuit breaker and a rate limiter, following the
// teacher's internal/sync.CircuitBreakerClient.
package refresh

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/cartographus/internal/cif"
	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/store"
)

// weekdayAbbrev indexes by time.Weekday (Sunday=0) to the feed's
// three-letter weekday tokens, matching renew_schedules.py's WEEKDAYS
// list (which is Monday-first; this table is re-based to Go's
// Sunday-first time.Weekday).
var weekdayAbbrev = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

const circuitBreakerName = "nr-feed"

// Refresher is the catch-up poll loop. Implements services.StartStopper.
type Refresher struct {
	cfg    config.RefreshConfig
	cifCfg config.CIFConfig
	db     *database.DB
	parser *cif.Parser

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Refresher ready to Start.
func New(db *database.DB, parser *cif.Parser, cfg config.RefreshConfig, cifCfg config.CIFConfig) *Refresher {
	r := &Refresher{
		cfg:    cfg,
		cifCfg: cifCfg,
		db:     db,
		parser: parser,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
	}

	metrics.CircuitBreakerState.WithLabelValues(circuitBreakerName).Set(0)

	r.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        circuitBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.CircuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("from", stateName(from)).Str("to", stateName(to)).Msg("refresh: circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateName(from), stateName(to)).Inc()
		},
	})

	return r
}

// Start runs an immediate catch-up check, then repeats it every
// cfg.PollInterval until Stop is called or ctx is canceled.
func (r *Refresher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.pollLoop(runCtx)
	return nil
}

// Stop cancels the poll loop and waits for the current run to finish.
func (r *Refresher) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *Refresher) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce performs one gap check and, if there is a backlog to fill,
// fetches and parses every intervening day's update file in sequence.
// Grounded on renew_schedules.py's __main__ block.
func (r *Refresher) runOnce(ctx context.Context) {
	start := time.Now()
	err := r.catchUp(ctx)
	metrics.RecordRefresh(time.Since(start), err)
	if err != nil {
		logging.CtxErr(ctx, err).Msg("refresh: catch-up run failed")
	}
}

func (r *Refresher) catchUp(ctx context.Context) error {
	lastExtract, ok, err := store.LatestExtractDate(ctx, r.db.Conn())
	if err != nil {
		return fmt.Errorf("refresh: read latest extract date: %w", err)
	}
	if !ok {
		return fmt.Errorf("refresh: no header information in database")
	}

	today := time.Now().UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	span := int(today.Sub(lastExtract).Hours() / 24)
	metrics.UpdateRefreshHorizonGap(span)

	if span > r.cfg.MaxGapDays {
		return fmt.Errorf("refresh: last extract %d days ago, exceeds max_gap_days=%d, cannot create a non-contiguous schedule",
			span, r.cfg.MaxGapDays)
	}
	if span <= 1 {
		logging.Ctx(ctx).Debug().Msg("refresh: schedule already up to date")
		return nil
	}

	for a := 1; a < span; a++ {
		day := lastExtract.AddDate(0, 0, a)
		if err := r.fetchAndApplyDay(ctx, day); err != nil {
			return fmt.Errorf("refresh: day %s: %w", day.Format("2006-01-02"), err)
		}
	}
	return nil
}

func (r *Refresher) fetchAndApplyDay(ctx context.Context, day time.Time) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := r.fetchDay(ctx, day)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = body.Close() }()

	gz, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("ungzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	conn, err := r.db.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := r.parser.Parse(ctx, tx, gz); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.CtxErr(ctx, rbErr).Msg("refresh: rollback after parse failure")
		}
		return fmt.Errorf("parse: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logging.Ctx(ctx).Info().Str("day", day.Format("2006-01-02")).Msg("refresh: applied daily update")
	return nil
}

func (r *Refresher) fetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	url := fmt.Sprintf(r.cifCfg.UpdateURLTemplate, weekdayAbbrev[day.Weekday()])

	body, err := r.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(r.cifCfg.Username, r.cifCfg.Password)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
		}
		return io.ReadAll(resp.Body)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(circuitBreakerName, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(circuitBreakerName, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(circuitBreakerName, "success").Inc()

	return io.NopCloser(bytes.NewReader(body)), nil
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
