// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/ensemble/local"
	"github.com/bureau-foundation/evaluator/lib/monitor"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
	"github.com/bureau-foundation/evaluator/lib/testutil"
)

func TestRunAndGetSuccessfulRealizations(t *testing.T) {
	topology, err := local.ParseTopology([]byte(`{
		"realizations": 3,
		"stages": [
			{"id": "0", "steps": [{"id": "0", "jobs": [{"id": "0", "name": "prepare"}]}]},
			{"id": "1", "steps": [{"id": "0", "jobs": [{"id": "0", "name": "simulate", "fail_realizations": [2]}]}]},
		],
	}`))
	if err != nil {
		t.Fatal(err)
	}
	ens := local.New(topology, clock.Real(), quietLogger())
	e, err := New(ens, Config{Host: "127.0.0.1", Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	count, err := e.RunAndGetSuccessfulRealizations(ctx)
	if err != nil {
		t.Fatalf("RunAndGetSuccessfulRealizations: %v", err)
	}
	// Realizations 0 and 1 finish both stages; realization 2 finishes
	// only the first.
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	testutil.RequireClosed(t, e.Done(), testTimeout, "evaluator still running")

	final := e.Snapshot()
	if final.Status() != event.StatusStopped {
		t.Errorf("status = %s, want Stopped", final.Status())
	}
}

func TestMonitorFollowsRun(t *testing.T) {
	e := startEvaluator(t, newFakeEnsemble(2), nil)
	mon := monitor.New(e.Endpoint().Host, e.Endpoint().Port)
	defer mon.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	worker := reporter(t, e)
	go func() {
		worker.Report(event.TypeEnsembleStarted, event.Path{}, nil)
		worker.Report(event.TypeJobSuccess, firstJob, nil)
		worker.Report(event.TypeEnsembleStopped, event.Path{}, nil)
	}()

	var view *snapshot.Snapshot
	var types []event.Type
	signalled := false
	for envelope, err := range mon.Track(ctx) {
		if err != nil {
			t.Fatalf("Track: %v", err)
		}
		types = append(types, envelope.Type)
		view, err = monitor.Apply(view, envelope)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !signalled && view.Status() == event.StatusStopped {
			if err := mon.SignalDone(ctx); err != nil {
				t.Fatalf("SignalDone: %v", err)
			}
			signalled = true
		}
	}

	if types[0] != event.TypeSnapshot || types[len(types)-1] != event.TypeTerminated {
		t.Errorf("types = %v, want snapshot first and terminated last", types)
	}
	if job, _ := view.Job(firstJob); job == nil || job.Status != event.StatusFinished {
		t.Errorf("monitor view job = %+v, want Finished", job)
	}
	if err := mon.SignalCancel(ctx); err == nil {
		t.Error("signal after TERMINATED succeeded")
	}
}
