// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"maps"
	"time"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// NodeUpdate changes one node of the status tree. Path depth selects
// the node kind: 1 a realization, 2 a stage, 3 a step, 4 a job. Nil
// fields are left alone. Times and Data only apply to jobs.
type NodeUpdate struct {
	Path      event.Path
	Status    *event.Status
	StartTime *time.Time
	EndTime   *time.Time
	Data      map[string]any
}

// PartialSnapshot is a sparse delta: an optional overall status and
// an ordered list of node updates.
type PartialSnapshot struct {
	Status  *event.Status
	Updates []NodeUpdate
}

// IsEmpty reports whether the delta changes nothing.
func (p *PartialSnapshot) IsEmpty() bool {
	return p.Status == nil && len(p.Updates) == 0
}

// SetStatus sets the overall run status in the delta.
func (p *PartialSnapshot) SetStatus(status event.Status) *PartialSnapshot {
	p.Status = &status
	return p
}

// UpdateStage records a stage status change.
func (p *PartialSnapshot) UpdateStage(realizationID, stageID string, status event.Status) *PartialSnapshot {
	p.Updates = append(p.Updates, NodeUpdate{
		Path:   event.Path{Realization: realizationID, Stage: stageID},
		Status: &status,
	})
	return p
}

// UpdateStep records a step status change.
func (p *PartialSnapshot) UpdateStep(realizationID, stageID, stepID string, status event.Status) *PartialSnapshot {
	p.Updates = append(p.Updates, NodeUpdate{
		Path:   event.Path{Realization: realizationID, Stage: stageID, Step: stepID},
		Status: &status,
	})
	return p
}

// UpdateJob records a job change. Nil times and a nil data map are
// left alone on merge.
func (p *PartialSnapshot) UpdateJob(path event.Path, status event.Status, startTime, endTime *time.Time, data map[string]any) *PartialSnapshot {
	p.Updates = append(p.Updates, NodeUpdate{
		Path:      path,
		Status:    &status,
		StartTime: cloneTime(startTime),
		EndTime:   cloneTime(endTime),
		Data:      maps.Clone(data),
	})
	return p
}

// FromEvent builds the delta one worker or ensemble event implies.
//
// Forward-model events address their node through the source path and
// must carry every level their group needs (a job event needs real,
// stage, step and job). Job start events set the job's start time,
// job success and failure events set its end time, both from the
// envelope's time attribute; a job event's data object is merged into
// the job's data. Ensemble events set the overall status.
func FromEvent(envelope *event.Envelope) (*PartialSnapshot, error) {
	if envelope == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEvent)
	}

	delta := &PartialSnapshot{}
	if status, ok := event.EnsembleStatus(envelope.Type); ok {
		return delta.SetStatus(status), nil
	}

	status, ok := event.NodeStatus(envelope.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, envelope.Type)
	}

	_, path, err := event.ParseSource(envelope.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case event.GroupStage.Contains(envelope.Type):
		if path.Depth() < 2 {
			return nil, fmt.Errorf("%w: %s needs real and stage in source %q", ErrMalformedEvent, envelope.Type, envelope.Source)
		}
		return delta.UpdateStage(path.Realization, path.Stage, status), nil

	case event.GroupStep.Contains(envelope.Type):
		if path.Depth() < 3 {
			return nil, fmt.Errorf("%w: %s needs real, stage and step in source %q", ErrMalformedEvent, envelope.Type, envelope.Source)
		}
		return delta.UpdateStep(path.Realization, path.Stage, path.Step, status), nil

	default:
		if path.Depth() < 4 {
			return nil, fmt.Errorf("%w: %s needs a job path in source %q", ErrMalformedEvent, envelope.Type, envelope.Source)
		}
		var startTime, endTime *time.Time
		switch envelope.Type {
		case event.TypeJobStart:
			startTime = envelope.Time
		case event.TypeJobSuccess, event.TypeJobFailure:
			endTime = envelope.Time
		}
		var data map[string]any
		if err := envelope.DecodeData(&data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return delta.UpdateJob(path, status, startTime, endTime, data), nil
	}
}
