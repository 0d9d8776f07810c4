// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package local is an in-process simulated ensemble. Each realization
// runs on its own goroutine with its own dispatch connection and walks
// the topology in order: stage running, step start, then for each job
// start, running, a wait on the clock, and success or failure. A
// failing job fails its step and stage and ends the realization.
//
// A coordinator connection brackets the run with ENSEMBLE_STARTED and,
// once every realization has finished, ENSEMBLE_STOPPED, or
// ENSEMBLE_CANCELLED when Cancel was called.
package local

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/ensemble"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// errCancelled ends a realization's walk after Cancel.
var errCancelled = errors.New("ensemble cancelled")

// Ensemble runs a Topology against an evaluator.
type Ensemble struct {
	topology *Topology
	clock    clock.Clock
	logger   *slog.Logger

	cancelOnce sync.Once
	cancelled  chan struct{}

	// finished is closed after the coordinator's final event.
	finished chan struct{}
}

// New returns an ensemble for topology. Job durations elapse on clk.
func New(topology *Topology, clk clock.Clock, logger *slog.Logger) *Ensemble {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ensemble{
		topology:  topology,
		clock:     clk,
		logger:    logger,
		cancelled: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// ActiveRealizations returns one realization per configured index.
func (e *Ensemble) ActiveRealizations() []ensemble.Realization {
	return e.topology.realizations()
}

// Metadata returns the topology's metadata.
func (e *Ensemble) Metadata() map[string]any {
	return maps.Clone(e.topology.Metadata)
}

// IsCancellable reports the topology's cancellable flag.
func (e *Ensemble) IsCancellable() bool {
	return e.topology.Cancellable
}

// Cancel makes every realization stop before its next job and the
// coordinator report ENSEMBLE_CANCELLED. It does not block.
func (e *Ensemble) Cancel() {
	e.cancelOnce.Do(func() { close(e.cancelled) })
}

// Finished is closed once the coordinator has sent its final event
// and closed its connection.
func (e *Ensemble) Finished() <-chan struct{} {
	return e.finished
}

// Evaluate connects the coordinator and starts one goroutine per
// realization. It returns once ENSEMBLE_STARTED has been sent.
func (e *Ensemble) Evaluate(ctx context.Context, endpoint ensemble.Endpoint, evaluatorID string) error {
	coordinator, err := ensemble.Dial(ctx, endpoint, evaluatorID, e.clock)
	if err != nil {
		return err
	}
	if err := coordinator.Report(event.TypeEnsembleStarted, event.Path{}, nil); err != nil {
		coordinator.Close()
		return err
	}

	var workers sync.WaitGroup
	for _, index := range e.topology.Realizations {
		workers.Add(1)
		go func() {
			defer workers.Done()
			e.runRealization(ctx, endpoint, evaluatorID, index)
		}()
	}

	go func() {
		defer close(e.finished)
		defer coordinator.Close()
		workers.Wait()

		final := event.TypeEnsembleStopped
		select {
		case <-e.cancelled:
			final = event.TypeEnsembleCancelled
		default:
		}
		if err := coordinator.Report(final, event.Path{}, nil); err != nil {
			e.logger.Warn("reporting ensemble end", "type", final, "error", err)
		}
	}()
	return nil
}

func (e *Ensemble) runRealization(ctx context.Context, endpoint ensemble.Endpoint, evaluatorID string, index int) {
	realization := ensemble.Realization{Index: index}.ID()
	logger := e.logger.With("realization", realization)

	reporter, err := ensemble.Dial(ctx, endpoint, evaluatorID, e.clock)
	if err != nil {
		logger.Warn("worker could not connect", "error", err)
		return
	}
	defer reporter.Close()

	w := &worker{ensemble: e, reporter: reporter, index: index, realization: realization}
	for _, stage := range e.topology.Stages {
		failed, err := w.runStage(ctx, stage)
		if err != nil {
			if !errors.Is(err, errCancelled) {
				logger.Warn("worker stopped", "error", err)
			}
			return
		}
		if failed {
			logger.Info("realization failed", "stage", stage.ID)
			return
		}
	}
}

// worker walks one realization through the topology.
type worker struct {
	ensemble    *Ensemble
	reporter    *ensemble.Reporter
	index       int
	realization string
}

// runStage reports a stage and its steps. It returns failed when a
// job failed, and an error when reporting failed or the ensemble was
// cancelled.
func (w *worker) runStage(ctx context.Context, stage StageSpec) (failed bool, err error) {
	stagePath := event.Path{Realization: w.realization, Stage: stage.ID}
	if err := w.reporter.Report(event.TypeStageRunning, stagePath, nil); err != nil {
		return false, err
	}
	for _, step := range stage.Steps {
		failed, err := w.runStep(ctx, stagePath, step)
		if err != nil {
			return false, err
		}
		if failed {
			return true, w.reporter.Report(event.TypeStageFailure, stagePath, nil)
		}
	}
	return false, w.reporter.Report(event.TypeStageSuccess, stagePath, nil)
}

func (w *worker) runStep(ctx context.Context, stagePath event.Path, step StepSpec) (failed bool, err error) {
	stepPath := stagePath
	stepPath.Step = step.ID
	if err := w.reporter.Report(event.TypeStepStart, stepPath, nil); err != nil {
		return false, err
	}
	for _, job := range step.Jobs {
		failed, err := w.runJob(ctx, stepPath, job)
		if err != nil {
			return false, err
		}
		if failed {
			return true, w.reporter.Report(event.TypeStepFailure, stepPath, nil)
		}
	}
	return false, w.reporter.Report(event.TypeStepSuccess, stepPath, nil)
}

func (w *worker) runJob(ctx context.Context, stepPath event.Path, job JobSpec) (failed bool, err error) {
	select {
	case <-w.ensemble.cancelled:
		return false, errCancelled
	default:
	}

	jobPath := stepPath
	jobPath.Job = job.ID
	if err := w.reporter.Report(event.TypeJobStart, jobPath, map[string]any{"name": job.Name}); err != nil {
		return false, err
	}
	if err := w.reporter.Report(event.TypeJobRunning, jobPath, nil); err != nil {
		return false, err
	}

	if err := w.wait(ctx, job.Duration); err != nil {
		return false, err
	}

	if job.FailsIn(w.index) {
		payload := map[string]any{"error_msg": job.Name + " failed", "exit_code": 1}
		return true, w.reporter.Report(event.TypeJobFailure, jobPath, payload)
	}
	return false, w.reporter.Report(event.TypeJobSuccess, jobPath, map[string]any{"exit_code": 0})
}

// wait lets duration elapse on the ensemble's clock.
func (w *worker) wait(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	select {
	case <-w.ensemble.clock.After(duration):
		return nil
	case <-w.ensemble.cancelled:
		return errCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}
