// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package live is the live movement ingester: a durable subscriber to a
// broker carrying train activation, movement, and identity-change
// messages, which it correlates against the flattened schedule
// projection and appends to the movement log.
//
// A NATS JetStream durable consumer stands in for the STOMP broker the
// original system subscribed to (datafeeds.networkrail.co.uk TRUST
// feed): both provide a persistent, per-message-acknowledged
// subscription keyed by a stable client identifier, which is the
// property this package actually depends on. Grounded on
// _examples/original_source/trust.py and the teacher's
// internal/eventprocessor package.
package live

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/cartographus/internal/config"
)

// EmbeddedServer wraps an in-process NATS server with JetStream enabled,
// used when config.LiveConfig.EmbeddedServer is set so the system needs
// no external broker for single-instance deployments. Grounded on the
// teacher's internal/eventprocessor/server.go.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer starts an embedded JetStream-enabled NATS server
// bound to the host/port encoded in cfg.URL and storing stream state
// under cfg.StoreDir.
func NewEmbeddedServer(cfg config.LiveConfig) (*EmbeddedServer, error) {
	host, port, err := parseNatsURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("live: parse embedded server bind address: %w", err)
	}

	opts := &server.Options{
		ServerName: "cartographus-live",
		Host:       host,
		Port:       port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		DontListen: false,
		MaxPayload: 8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("live: create embedded NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("live: embedded NATS server not ready within timeout")
	}

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the connection URL clients should dial.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the embedded server, waiting for in-flight work to
// drain or ctx to expire.
func (s *EmbeddedServer) Shutdown(ctx context.Context) {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}

// IsRunning reports the embedded server's health.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

func parseNatsURL(raw string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(trimScheme(raw))
	if err != nil {
		return "127.0.0.1", 4222, nil //nolint:nilerr // fall back to defaults on unparsable URL
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", raw, err)
	}
	return host, port, nil
}

func trimScheme(raw string) string {
	const scheme = "nats://"
	if len(raw) > len(scheme) && raw[:len(scheme)] == scheme {
		return raw[len(scheme):]
	}
	return raw
}
