// Package luster is a client library for Revolt-style chat platforms.
//
// The platform exposes two surfaces: a request/response HTTP API and a
// long-lived websocket that streams events. This package holds the shared
// vocabulary (events, entities, the cache contract and errors); the
// client package ties it together into a Session.
//
// # Architecture
//
// A Session owns one connection manager, one event dispatcher and one
// entity cache:
//
//	websocket ─▶ codec ─▶ dispatcher ─▶ cache synchronizer ─▶ listeners
//
// Inbound frames are decoded by the codec (JSON text frames or msgpack
// binary frames), turned into typed events by the dispatcher, applied to
// the cache and finally handed to registered listeners. The cache update
// for an event always happens before any listener for that event runs.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/luster"
//	    "github.com/luciancaetano/luster/client"
//	)
//
//	session, err := client.New(client.DefaultConfig("bot-token"))
//	if err != nil {
//	    return err
//	}
//
//	session.On(luster.KindReady, func(ctx context.Context, ev luster.Event) error {
//	    log.Printf("ready with %d servers", len(session.Cache().Servers().All()))
//	    return nil
//	})
//
//	// Run connects, keeps the connection alive and closes the session
//	// when ctx is cancelled.
//	err = session.Run(ctx)
//
// # Connection Lifecycle
//
// The connection manager authenticates right after the socket opens and
// only reports Connected once the server confirms the token. While
// connected it sends a Ping every heartbeat interval and expects the
// matching Pong within the heartbeat timeout.
//
// Transport failures (socket errors, malformed frames, missed heartbeats)
// are retried with backoff. Authentication failures are not: they surface
// as *AuthError and the caller must intervene. The cache survives
// reconnects, so cached entities may be briefly stale until fresh events
// arrive.
//
// # Ordering
//
// Events are processed one at a time in arrival order. Listeners for the
// same kind run in registration order. A listener that fails or panics is
// reported to the diagnostic sink and does not affect other listeners,
// the cache or the connection.
//
// # Cache
//
// The cache is consumed only through the Cache and Store interfaces, so it
// can be replaced by any implementation of those four operations per
// entity kind. Entities fetched over HTTP may be inserted manually, but
// nothing keeps them fresh: only events do.
//
// # Important
//
//   - Treat entities and events handed to listeners as read-only
//   - Listeners block the dispatch of later events; hand long work to a goroutine
//   - Only one connection per Session is ever open
package luster
