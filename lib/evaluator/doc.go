// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package evaluator runs the websocket server that collects status
// events from an ensemble's workers, folds them into a [snapshot], and
// streams the result to observers.
//
// # Connections
//
// The first segment of the request path picks the role:
//
//   - /client: an observer. It receives one SNAPSHOT with the full
//     current state, then a SNAPSHOT_UPDATE for every merged event,
//     then TERMINATED as the last message. It may send USER_CANCEL and
//     USER_DONE.
//   - /dispatch: a worker. It sends status events. The evaluator stops
//     reading from it after ENSEMBLE_STOPPED.
//
// Anything else is closed without a reply.
//
// # Concurrency
//
// One goroutine, the loop, owns the snapshot, the event index and the
// connection registries. Connection handlers only read and decode;
// every event, attach and detach travels to the loop through one
// bounded queue, so a dispatcher's events are always processed before
// its detach. Each observer has a writer goroutine fed by a bounded
// outbox. An observer whose outbox fills up, or whose write fails, is
// disconnected without affecting the others.
//
// # Lifecycle
//
// [Evaluator.Run] starts the server and the ensemble and returns a
// [monitor.Monitor]. Stopping is triggered by [Evaluator.Stop], by an
// observer's USER_DONE (or USER_CANCEL when the ensemble cannot be
// cancelled), by ENSEMBLE_CANCELLED, or by cancelling Run's context.
// Once triggered, the loop keeps processing events for up to the
// drain timeout while dispatchers are still connected, then sends
// TERMINATED to every observer, closes every connection and exits.
// Stop blocks until that exit.
package evaluator
