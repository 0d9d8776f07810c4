// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the wire vocabulary shared by the evaluator,
// its workers, and its observers: the JSON envelope, the event type
// identifiers, the type groups the router matches on, the status
// strings carried in snapshots, and the source paths that address a
// node of the job graph.
//
// Every message on every connection is one JSON [Envelope]:
//
//	{"specversion": "1.0", "type": "...", "source": "/ert/ee/<id>/...", "id": 7, "data": {...}}
//
// Workers address the node an event is about through the source path
// (see [Path]). The evaluator stamps outbound envelopes with a
// monotonically increasing id; inbound ids are accepted in either
// integer or string form and otherwise ignored.
//
// Type identifiers and status strings are protocol constants. Changing
// them breaks every deployed worker and observer.
package event
