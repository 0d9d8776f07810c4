// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// Wire is the JSON form of a snapshot or a delta, carried as the data
// of SNAPSHOT and SNAPSHOT_UPDATE envelopes. A full snapshot sets every
// field; a delta sets only what it changes.
//
//	{"status": "Running",
//	 "reals": {"0": {"active": true, "status": "Unknown",
//	   "stages": {"0": {"status": "Running",
//	     "steps": {"0": {"status": "Running",
//	       "jobs": {"0": {"name": "eclipse", "status": "Running", "start_time": "...", "data": {}}}}}}}}},
//	 "metadata": {"iterations": 1}}
type Wire struct {
	Status   *event.Status               `json:"status,omitempty"`
	Reals    map[string]*WireRealization `json:"reals,omitempty"`
	Metadata map[string]any              `json:"metadata,omitempty"`
}

// WireRealization is one realization in [Wire].
type WireRealization struct {
	Active *bool                 `json:"active,omitempty"`
	Status *event.Status         `json:"status,omitempty"`
	Stages map[string]*WireStage `json:"stages,omitempty"`
}

// WireStage is one stage in [Wire].
type WireStage struct {
	Status *event.Status        `json:"status,omitempty"`
	Steps  map[string]*WireStep `json:"steps,omitempty"`
}

// WireStep is one step in [Wire].
type WireStep struct {
	Status *event.Status       `json:"status,omitempty"`
	Jobs   map[string]*WireJob `json:"jobs,omitempty"`
}

// WireJob is one job in [Wire].
type WireJob struct {
	Name      *string        `json:"name,omitempty"`
	Status    *event.Status  `json:"status,omitempty"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func pointer[T any](value T) *T {
	return &value
}

// Wire returns the full serializable form of the snapshot.
func (s *Snapshot) Wire() *Wire {
	wire := &Wire{
		Status:   pointer(s.status),
		Reals:    make(map[string]*WireRealization, len(s.realizations)),
		Metadata: maps.Clone(s.metadata),
	}
	for _, realization := range s.realizations {
		wireRealization := &WireRealization{
			Active: pointer(realization.Active),
			Status: pointer(realization.Status),
			Stages: make(map[string]*WireStage, len(realization.Stages)),
		}
		for _, stage := range realization.Stages {
			wireStage := &WireStage{
				Status: pointer(stage.Status),
				Steps:  make(map[string]*WireStep, len(stage.Steps)),
			}
			for _, step := range stage.Steps {
				wireStep := &WireStep{
					Status: pointer(step.Status),
					Jobs:   make(map[string]*WireJob, len(step.Jobs)),
				}
				for _, job := range step.Jobs {
					wireStep.Jobs[job.ID] = &WireJob{
						Name:      pointer(job.Name),
						Status:    pointer(job.Status),
						StartTime: cloneTime(job.StartTime),
						EndTime:   cloneTime(job.EndTime),
						Data:      maps.Clone(job.Data),
					}
				}
				wireStage.Steps[step.ID] = wireStep
			}
			wireRealization.Stages[stage.ID] = wireStage
		}
		wire.Reals[realization.ID] = wireRealization
	}
	return wire
}

// Wire returns the sparse serializable form of the delta. Several
// updates to one node collapse into one entry, later fields winning.
func (p *PartialSnapshot) Wire() *Wire {
	wire := &Wire{}
	if p.Status != nil {
		wire.Status = pointer(*p.Status)
	}
	for _, update := range p.Updates {
		path := update.Path
		if path.Depth() == 0 {
			continue
		}
		if wire.Reals == nil {
			wire.Reals = make(map[string]*WireRealization)
		}
		realization := lookupOrCreate(wire.Reals, path.Realization)
		if path.Depth() == 1 {
			realization.Status = overlay(realization.Status, update.Status)
			continue
		}
		if realization.Stages == nil {
			realization.Stages = make(map[string]*WireStage)
		}
		stage := lookupOrCreate(realization.Stages, path.Stage)
		if path.Depth() == 2 {
			stage.Status = overlay(stage.Status, update.Status)
			continue
		}
		if stage.Steps == nil {
			stage.Steps = make(map[string]*WireStep)
		}
		step := lookupOrCreate(stage.Steps, path.Step)
		if path.Depth() == 3 {
			step.Status = overlay(step.Status, update.Status)
			continue
		}
		if step.Jobs == nil {
			step.Jobs = make(map[string]*WireJob)
		}
		job := lookupOrCreate(step.Jobs, path.Job)
		job.Status = overlay(job.Status, update.Status)
		job.StartTime = overlay(job.StartTime, update.StartTime)
		job.EndTime = overlay(job.EndTime, update.EndTime)
		if len(update.Data) > 0 {
			if job.Data == nil {
				job.Data = make(map[string]any, len(update.Data))
			}
			maps.Copy(job.Data, update.Data)
		}
	}
	return wire
}

func lookupOrCreate[T any](nodes map[string]*T, id string) *T {
	node, ok := nodes[id]
	if !ok {
		node = new(T)
		nodes[id] = node
	}
	return node
}

func overlay[T any](current, next *T) *T {
	if next == nil {
		return current
	}
	return pointer(*next)
}

// FromWire rebuilds a full snapshot from its wire form, as received in
// a SNAPSHOT envelope. Map order is lost on the wire, so ids at every
// level are ordered numerically when they are integers and lexically
// otherwise. Absent statuses read as Unknown.
func FromWire(wire *Wire) (*Snapshot, error) {
	if wire == nil || len(wire.Reals) == 0 {
		return nil, fmt.Errorf("%w: snapshot has no realizations", ErrInvalidTopology)
	}

	snapshot := &Snapshot{
		status:   statusOrUnknown(wire.Status),
		byID:     make(map[string]*Realization, len(wire.Reals)),
		metadata: maps.Clone(wire.Metadata),
	}
	if snapshot.metadata == nil {
		snapshot.metadata = make(map[string]any)
	}
	for _, realizationID := range sortedIDs(wire.Reals) {
		wireRealization := wire.Reals[realizationID]
		realization := &Realization{
			ID:     realizationID,
			Active: wireRealization.Active == nil || *wireRealization.Active,
			Status: statusOrUnknown(wireRealization.Status),
		}
		for _, stageID := range sortedIDs(wireRealization.Stages) {
			wireStage := wireRealization.Stages[stageID]
			stage := &Stage{ID: stageID, Status: statusOrUnknown(wireStage.Status)}
			for _, stepID := range sortedIDs(wireStage.Steps) {
				wireStep := wireStage.Steps[stepID]
				step := &Step{ID: stepID, Status: statusOrUnknown(wireStep.Status)}
				for _, jobID := range sortedIDs(wireStep.Jobs) {
					wireJob := wireStep.Jobs[jobID]
					job := &Job{
						ID:        jobID,
						Status:    statusOrUnknown(wireJob.Status),
						StartTime: cloneTime(wireJob.StartTime),
						EndTime:   cloneTime(wireJob.EndTime),
						Data:      maps.Clone(wireJob.Data),
					}
					if wireJob.Name != nil {
						job.Name = *wireJob.Name
					}
					if job.Data == nil {
						job.Data = make(map[string]any)
					}
					step.Jobs = append(step.Jobs, job)
				}
				stage.Steps = append(stage.Steps, step)
			}
			realization.Stages = append(realization.Stages, stage)
		}
		snapshot.realizations = append(snapshot.realizations, realization)
		snapshot.byID[realizationID] = realization
	}
	return snapshot, nil
}

// PartialFromWire flattens the wire form of a delta, as received in a
// SNAPSHOT_UPDATE envelope, back into node updates. Each addressed node
// yields one update, parents before children.
func PartialFromWire(wire *Wire) *PartialSnapshot {
	delta := &PartialSnapshot{}
	if wire == nil {
		return delta
	}
	if wire.Status != nil {
		delta.SetStatus(*wire.Status)
	}
	for _, realizationID := range sortedIDs(wire.Reals) {
		wireRealization := wire.Reals[realizationID]
		if wireRealization.Status != nil {
			delta.Updates = append(delta.Updates, NodeUpdate{
				Path:   event.Path{Realization: realizationID},
				Status: pointer(*wireRealization.Status),
			})
		}
		for _, stageID := range sortedIDs(wireRealization.Stages) {
			wireStage := wireRealization.Stages[stageID]
			if wireStage.Status != nil {
				delta.UpdateStage(realizationID, stageID, *wireStage.Status)
			}
			for _, stepID := range sortedIDs(wireStage.Steps) {
				wireStep := wireStage.Steps[stepID]
				if wireStep.Status != nil {
					delta.UpdateStep(realizationID, stageID, stepID, *wireStep.Status)
				}
				for _, jobID := range sortedIDs(wireStep.Jobs) {
					wireJob := wireStep.Jobs[jobID]
					delta.Updates = append(delta.Updates, NodeUpdate{
						Path:      event.Path{Realization: realizationID, Stage: stageID, Step: stepID, Job: jobID},
						Status:    overlay[event.Status](nil, wireJob.Status),
						StartTime: cloneTime(wireJob.StartTime),
						EndTime:   cloneTime(wireJob.EndTime),
						Data:      maps.Clone(wireJob.Data),
					})
				}
			}
		}
	}
	return delta
}

func statusOrUnknown(status *event.Status) event.Status {
	if status == nil || *status == "" {
		return event.StatusUnknown
	}
	return *status
}

// sortedIDs returns the keys of nodes, integers first in numeric order,
// then everything else lexically.
func sortedIDs[T any](nodes map[string]T) []string {
	ids := slices.Collect(maps.Keys(nodes))
	slices.SortFunc(ids, compareIDs)
	return ids
}

func compareIDs(a, b string) int {
	numberA, errA := strconv.Atoi(a)
	numberB, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(numberA, numberB)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
