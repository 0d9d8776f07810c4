// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

// Status is the status string of a snapshot node or of the run as a
// whole.
type Status string

const (
	StatusUnknown   Status = "Unknown"
	StatusWaiting   Status = "Waiting"
	StatusPending   Status = "Pending"
	StatusStarting  Status = "Starting"
	StatusRunning   Status = "Running"
	StatusFinished  Status = "Finished"
	StatusFailed    Status = "Failed"
	StatusStopped   Status = "Stopped"
	StatusCancelled Status = "Cancelled"
)

// nodeStatus maps forward-model event types to the status they assign
// to the addressed node.
var nodeStatus = map[Type]Status{
	TypeStageWaiting: StatusWaiting,
	TypeStagePending: StatusPending,
	TypeStageRunning: StatusRunning,
	TypeStageFailure: StatusFailed,
	TypeStageSuccess: StatusFinished,
	TypeStageUnknown: StatusUnknown,

	TypeStepStart:   StatusRunning,
	TypeStepFailure: StatusFailed,
	TypeStepSuccess: StatusFinished,

	TypeJobStart:   StatusRunning,
	TypeJobRunning: StatusRunning,
	TypeJobSuccess: StatusFinished,
	TypeJobFailure: StatusFailed,
}

// ensembleStatus maps ensemble lifecycle event types to the overall
// run status they assign.
var ensembleStatus = map[Type]Status{
	TypeEnsembleStarted:   StatusStarting,
	TypeEnsembleStopped:   StatusStopped,
	TypeEnsembleCancelled: StatusCancelled,
}

// NodeStatus returns the status a forward-model event assigns to the
// node it addresses. The second result is false for types outside
// [GroupForwardModel].
func NodeStatus(eventType Type) (Status, bool) {
	status, ok := nodeStatus[eventType]
	return status, ok
}

// EnsembleStatus returns the overall run status an ensemble lifecycle
// event assigns. The second result is false for types outside
// [GroupEnsemble].
func EnsembleStatus(eventType Type) (Status, bool) {
	status, ok := ensembleStatus[eventType]
	return status, ok
}
