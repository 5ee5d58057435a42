// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package live

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/cartographus/internal/config"
	"github.com/tomtom215/cartographus/internal/database"
	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
)

// Subscriber is the live movement ingester's durable broker subscription.
// It implements services.StartShutdowner (Start/Shutdown/IsRunning) so
// internal/supervisor can run it as a suture.Service.
//
// Reconnection follows trust.py's connect_and_subscribe: attempt n sleeps
// n^2 seconds, up to cfg.MaxRetries attempts, before giving up. NATS's
// own client-level reconnect (MaxReconnects/ReconnectWait) handles brief
// network blips transparently; this loop covers the outer case where
// establishing the initial durable subscription itself fails repeatedly.
type Subscriber struct {
	cfg      config.LiveConfig
	db       *database.DB
	registry *locations.Registry
	log      *logging.EventLogger

	embedded *EmbeddedServer

	mu         sync.Mutex
	sub        message.Subscriber
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewSubscriber returns a Subscriber ready to Start.
func NewSubscriber(cfg config.LiveConfig, db *database.DB, registry *locations.Registry) *Subscriber {
	return &Subscriber{
		cfg:      cfg,
		db:       db,
		registry: registry,
		log:      logging.NewEventLogger(),
	}
}

// Start establishes the durable subscription and begins consuming
// messages in a background goroutine. Returns once the subscription is
// live (or permanently failed after exhausting retries).
func (s *Subscriber) Start(ctx context.Context) error {
	url := s.cfg.URL
	if s.cfg.EmbeddedServer {
		embedded, err := NewEmbeddedServer(s.cfg)
		if err != nil {
			return fmt.Errorf("live: start embedded broker: %w", err)
		}
		s.embedded = embedded
		url = embedded.ClientURL()
	}

	sub, messages, err := s.connectWithBackoff(ctx, url)
	if err != nil {
		if s.embedded != nil {
			s.embedded.Shutdown(context.Background())
		}
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.sub = sub
	s.cancel = cancel
	s.mu.Unlock()

	s.log.LogSubscriptionStarted(s.cfg.StreamName, s.cfg.DurableName)
	s.running.Store(true)

	s.wg.Add(1)
	go s.consumeLoop(runCtx, url, messages)

	return nil
}

// connectWithBackoff dials the broker and opens the durable subscription,
// retrying with the n^2-second backoff described in trust.py until
// cfg.MaxRetries is exhausted.
func (s *Subscriber) connectWithBackoff(ctx context.Context, url string) (message.Subscriber, <-chan *message.Message, error) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 32
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		sub, err := s.newWatermillSubscriber(url)
		if err == nil {
			messages, subErr := sub.Subscribe(ctx, s.cfg.Subject)
			if subErr == nil {
				return sub, messages, nil
			}
			_ = sub.Close()
			err = subErr
		}
		lastErr = err
		metrics.RecordLiveReconnect()

		delay := time.Duration(attempt*attempt) * time.Second
		s.log.LogReconnecting(attempt, delay.Milliseconds())

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, nil, fmt.Errorf("live: exhausted %d connection attempts: %w", maxRetries, lastErr)
}

func (s *Subscriber) newWatermillSubscriber(url string) (message.Subscriber, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(s.cfg.MaxReconnects),
		natsgo.ReconnectWait(s.cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("live subscriber disconnected", err, nil)
			}
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(s.cfg.MaxDeliver),
		natsgo.MaxAckPending(s.cfg.MaxAckPending),
		natsgo.AckWait(s.cfg.AckWaitTimeout),
		natsgo.DeliverNew(),
	}

	autoProvision := true
	if s.cfg.StreamName != "" {
		subOpts = append(subOpts, natsgo.BindStream(s.cfg.StreamName))
		autoProvision = false
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: s.cfg.QueueGroup,
		SubscribersCount: s.cfg.SubscribersCount,
		AckWaitTimeout:   s.cfg.AckWaitTimeout,
		CloseTimeout:     s.cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    autoProvision,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    s.cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// consumeLoop drains messages until ctx is canceled, dispatching each
// broker payload (a JSON array of train messages, per trust.py) through
// ProcessBatch within a single transaction, then acknowledging.
func (s *Subscriber) consumeLoop(ctx context.Context, _ string, messages <-chan *message.Message) {
	defer s.wg.Done()
	defer s.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *message.Message) {
	start := time.Now()

	if err := s.processMessage(ctx, s.db.Conn(), msg.Payload); err != nil {
		logging.CtxErr(ctx, err).Msg("live: process message batch")
		msg.Nack()
		return
	}

	metrics.RecordLiveMessageProcessed("batch", time.Since(start))
	msg.Ack()
}

func (s *Subscriber) processMessage(ctx context.Context, db *sql.DB, payload []byte) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("live: begin transaction: %w", err)
	}

	if err := ProcessBatch(ctx, tx, s.registry, payload, s.log); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.CtxErr(ctx, rbErr).Msg("live: rollback after batch failure")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("live: commit batch: %w", err)
	}
	return nil
}

// Shutdown unsubscribes and stops the embedded broker, if any, waiting
// up to ctx's deadline for the consume loop to drain.
func (s *Subscriber) Shutdown(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	sub := s.sub
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}

	if sub != nil {
		if err := sub.Close(); err != nil {
			logging.Error().Err(err).Msg("live: close subscriber")
		}
	}
	s.log.LogSubscriptionStopped(s.cfg.StreamName)

	if s.embedded != nil {
		s.embedded.Shutdown(ctx)
	}
}

// IsRunning reports whether the consume loop is currently active.
func (s *Subscriber) IsRunning() bool {
	return s.running.Load()
}
