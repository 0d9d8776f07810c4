// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot holds the evaluator's view of a run: the status of
// every realization, stage, step and job, plus the overall run status
// and the ensemble metadata.
//
// A [Snapshot] has a fixed shape. The realization ids and the
// stage/step/job topology are set once by [Builder] (or
// [BuildInitial]) and never change; only status fields, job times and
// job data move. Changes arrive as a [PartialSnapshot], a sparse delta
// addressing individual nodes, usually built from one worker event by
// [FromEvent]. [Snapshot.Merge] applies a delta in place: it touches
// exactly the addressed nodes, re-applying an identical delta is a
// no-op, and the later of two deltas for the same node wins.
//
// Both full snapshots and deltas serialize to the same JSON shape
// ([Wire]); a delta simply omits everything it does not change.
// Observers rebuild a snapshot from that shape with [FromWire] and
// keep it current with [PartialFromWire].
//
// Nothing in this package does I/O or locking. The evaluator owns its
// snapshot from a single goroutine.
package snapshot
