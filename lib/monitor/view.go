// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// ErrNoSnapshot is returned by Apply for an update that arrives before
// any SNAPSHOT.
var ErrNoSnapshot = errors.New("snapshot update before snapshot")

// Apply folds one envelope into an observer's view of the run. A
// SNAPSHOT replaces the view, a SNAPSHOT_UPDATE is merged into it, and
// anything else leaves it unchanged. view may be nil until the first
// SNAPSHOT.
func Apply(view *snapshot.Snapshot, envelope *event.Envelope) (*snapshot.Snapshot, error) {
	switch envelope.Type {
	case event.TypeSnapshot:
		var wire snapshot.Wire
		if err := envelope.DecodeData(&wire); err != nil {
			return view, err
		}
		fresh, err := snapshot.FromWire(&wire)
		if err != nil {
			return view, fmt.Errorf("snapshot %d: %w", envelope.ID, err)
		}
		return fresh, nil

	case event.TypeSnapshotUpdate:
		if view == nil {
			return nil, ErrNoSnapshot
		}
		var wire snapshot.Wire
		if err := envelope.DecodeData(&wire); err != nil {
			return view, err
		}
		if err := view.Merge(snapshot.PartialFromWire(&wire)); err != nil {
			return view, fmt.Errorf("update %d: %w", envelope.ID, err)
		}
		return view, nil

	default:
		return view, nil
	}
}
