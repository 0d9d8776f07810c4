// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "slices"

// Type is an event type identifier carried in the envelope's "type"
// field.
type Type string

// Forward-model stage events, emitted by workers.
const (
	TypeStageWaiting Type = "com.equinor.ert.forward_model_stage.waiting"
	TypeStagePending Type = "com.equinor.ert.forward_model_stage.pending"
	TypeStageRunning Type = "com.equinor.ert.forward_model_stage.running"
	TypeStageFailure Type = "com.equinor.ert.forward_model_stage.failure"
	TypeStageSuccess Type = "com.equinor.ert.forward_model_stage.success"
	TypeStageUnknown Type = "com.equinor.ert.forward_model_stage.unknown"
)

// Forward-model step events, emitted by workers.
const (
	TypeStepStart   Type = "com.equinor.ert.forward_model_step.start"
	TypeStepFailure Type = "com.equinor.ert.forward_model_step.failure"
	TypeStepSuccess Type = "com.equinor.ert.forward_model_step.success"
)

// Forward-model job events, emitted by workers.
const (
	TypeJobStart   Type = "com.equinor.ert.forward_model_job.start"
	TypeJobRunning Type = "com.equinor.ert.forward_model_job.running"
	TypeJobSuccess Type = "com.equinor.ert.forward_model_job.success"
	TypeJobFailure Type = "com.equinor.ert.forward_model_job.failure"
)

// Ensemble lifecycle events, emitted by the ensemble's coordinator.
const (
	TypeEnsembleStarted   Type = "com.equinor.ert.ensemble.started"
	TypeEnsembleStopped   Type = "com.equinor.ert.ensemble.stopped"
	TypeEnsembleCancelled Type = "com.equinor.ert.ensemble.cancelled"
)

// Evaluator events. Snapshot, SnapshotUpdate and Terminated flow from
// the evaluator to observers; UserCancel and UserDone flow from
// observers to the evaluator.
const (
	TypeSnapshot       Type = "com.equinor.ert.ee.snapshot"
	TypeSnapshotUpdate Type = "com.equinor.ert.ee.snapshot_update"
	TypeTerminated     Type = "com.equinor.ert.ee.terminated"
	TypeUserCancel     Type = "com.equinor.ert.ee.user_cancel"
	TypeUserDone       Type = "com.equinor.ert.ee.user_done"
)

// Group is a family of related event types. The router registers a
// handler for a whole group at once.
type Group []Type

// Contains reports whether eventType is a member of the group.
func (g Group) Contains(eventType Type) bool {
	return slices.Contains(g, eventType)
}

var (
	// GroupStage holds every stage status event.
	GroupStage = Group{
		TypeStageWaiting, TypeStagePending, TypeStageRunning,
		TypeStageFailure, TypeStageSuccess, TypeStageUnknown,
	}

	// GroupStep holds every step status event.
	GroupStep = Group{TypeStepStart, TypeStepFailure, TypeStepSuccess}

	// GroupJob holds every job status event.
	GroupJob = Group{TypeJobStart, TypeJobRunning, TypeJobSuccess, TypeJobFailure}

	// GroupForwardModel is the union of the stage, step and job groups:
	// every event a worker emits about one node of the job graph.
	GroupForwardModel = slices.Concat(GroupStage, GroupStep, GroupJob)

	// GroupEnsemble holds the ensemble lifecycle events.
	GroupEnsemble = Group{TypeEnsembleStarted, TypeEnsembleStopped, TypeEnsembleCancelled}
)
