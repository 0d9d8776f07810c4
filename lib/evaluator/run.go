// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/evaluator/lib/monitor"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// RunAndGetSuccessfulRealizations runs the ensemble to completion and
// returns [Evaluator.SuccessfulRealizationCount]. It tracks the run
// through its own monitor and sends USER_DONE once the overall status
// reaches Stopped, so the evaluator ends when the ensemble does. A
// cancelled ensemble ends the run on its own.
func (e *Evaluator) RunAndGetSuccessfulRealizations(ctx context.Context) (int, error) {
	mon, err := e.Run(ctx)
	if err != nil {
		return 0, err
	}
	defer mon.Close()

	var view *snapshot.Snapshot
	signalled := false
	for envelope, err := range mon.Track(ctx) {
		if err != nil {
			e.Stop()
			return 0, fmt.Errorf("tracking evaluator: %w", err)
		}
		view, err = monitor.Apply(view, envelope)
		if err != nil {
			e.logger.Warn("monitor view out of sync", "error", err)
			continue
		}
		if !signalled && view != nil && view.Status() == event.StatusStopped {
			if err := mon.SignalDone(ctx); err != nil {
				e.logger.Warn("sending done", "error", err)
				e.Stop()
				break
			}
			signalled = true
		}
	}
	e.Stop()
	return e.SuccessfulRealizationCount(), nil
}
