// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

/*
Package services provides suture.Service wrappers for the rail ingestion
system's long-running components.

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available services

Live Ingester (LiveIngesterService):
  - Wraps internal/live's durable broker subscriber
  - Start(ctx) opens the subscription, Shutdown(ctx) unsubscribes and
    drains in-flight acks within a bounded timeout

Worker Service (WorkerService):
  - Wraps any Start(ctx)/Stop() component: the flattening engine's worker
    pool and the schedule refresher's poll loop both use this wrapper

# Error handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination

# Service identification

All services implement fmt.Stringer for logging:

	func (s *WorkerService) String() string { return s.name }
*/
package services
