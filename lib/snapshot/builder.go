// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"maps"

	"github.com/bureau-foundation/evaluator/lib/ensemble"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// Builder accumulates one realization's topology and the run metadata,
// then stamps that topology onto every realization id in Build.
type Builder struct {
	stages   []*Stage
	metadata map[string]any
	err      error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{metadata: make(map[string]any)}
}

// AddStage appends a stage to the topology.
func (b *Builder) AddStage(stageID string, status event.Status) *Builder {
	if _, exists := find(b.stages, func(stage *Stage) bool { return stage.ID == stageID }); exists {
		b.fail("duplicate stage %q", stageID)
		return b
	}
	b.stages = append(b.stages, &Stage{ID: stageID, Status: status})
	return b
}

// AddStep appends a step to an already added stage.
func (b *Builder) AddStep(stageID, stepID string, status event.Status) *Builder {
	stage, ok := find(b.stages, func(stage *Stage) bool { return stage.ID == stageID })
	if !ok {
		b.fail("step %q: no stage %q", stepID, stageID)
		return b
	}
	if _, exists := stage.Step(stepID); exists {
		b.fail("duplicate step %q in stage %q", stepID, stageID)
		return b
	}
	stage.Steps = append(stage.Steps, &Step{ID: stepID, Status: status})
	return b
}

// AddJob appends a job to an already added step.
func (b *Builder) AddJob(stageID, stepID, jobID, name string, status event.Status, data map[string]any) *Builder {
	stage, ok := find(b.stages, func(stage *Stage) bool { return stage.ID == stageID })
	if !ok {
		b.fail("job %q: no stage %q", jobID, stageID)
		return b
	}
	step, ok := stage.Step(stepID)
	if !ok {
		b.fail("job %q: no step %q in stage %q", jobID, stepID, stageID)
		return b
	}
	if _, exists := step.Job(jobID); exists {
		b.fail("duplicate job %q in step %q", jobID, stepID)
		return b
	}
	if data == nil {
		data = make(map[string]any)
	}
	step.Jobs = append(step.Jobs, &Job{ID: jobID, Name: name, Status: status, Data: data})
	return b
}

// AddMetadata records one metadata entry.
func (b *Builder) AddMetadata(key string, value any) *Builder {
	b.metadata[key] = value
	return b
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidTopology}, args...)...)
	}
}

// Build produces a snapshot with one copy of the accumulated topology
// per realization id. It fails with ErrInvalidTopology when
// realizationIDs is empty, contains duplicates, or any Add call failed.
func (b *Builder) Build(realizationIDs []string, status event.Status) (*Snapshot, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(realizationIDs) == 0 {
		return nil, fmt.Errorf("%w: an ensemble needs at least one realization", ErrInvalidTopology)
	}

	template := &Realization{Active: true, Status: event.StatusUnknown, Stages: b.stages}
	snapshot := &Snapshot{
		status:       status,
		realizations: make([]*Realization, 0, len(realizationIDs)),
		byID:         make(map[string]*Realization, len(realizationIDs)),
		metadata:     maps.Clone(b.metadata),
	}
	for _, id := range realizationIDs {
		if _, exists := snapshot.byID[id]; exists {
			return nil, fmt.Errorf("%w: duplicate realization %q", ErrInvalidTopology, id)
		}
		realization := template.clone()
		realization.ID = id
		snapshot.realizations = append(snapshot.realizations, realization)
		snapshot.byID[id] = realization
	}
	return snapshot, nil
}

// BuildInitial builds the all-unknown snapshot for a run. The topology
// comes from the first realization; stage statuses are copied from it,
// steps and jobs start Unknown, and the overall status is Unknown.
func BuildInitial(realizations []ensemble.Realization, metadata map[string]any) (*Snapshot, error) {
	if len(realizations) == 0 {
		return nil, fmt.Errorf("%w: an ensemble needs at least one realization", ErrInvalidTopology)
	}

	builder := NewBuilder()
	for _, stage := range realizations[0].Stages {
		status := stage.Status
		if status == "" {
			status = event.StatusUnknown
		}
		builder.AddStage(stage.ID, status)
		for _, step := range stage.Steps {
			builder.AddStep(stage.ID, step.ID, event.StatusUnknown)
			for _, job := range step.Jobs {
				builder.AddJob(stage.ID, step.ID, job.ID, job.Name, event.StatusUnknown, nil)
			}
		}
	}
	for key, value := range metadata {
		builder.AddMetadata(key, value)
	}

	ids := make([]string, len(realizations))
	for i, realization := range realizations {
		ids[i] = realization.ID()
	}
	return builder.Build(ids, event.StatusUnknown)
}
