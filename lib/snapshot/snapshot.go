// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"slices"
	"time"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

var (
	// ErrInvalidTopology is returned when a snapshot cannot be built
	// because the ensemble has no active realizations.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrMalformedEvent is returned by FromEvent when an event lacks the
	// fields its type requires.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownPath is returned by Merge when a delta addresses a node
	// that is not part of the snapshot's topology.
	ErrUnknownPath = errors.New("unknown snapshot path")
)

// Job is the status of one job in one realization.
type Job struct {
	ID        string
	Name      string
	Status    event.Status
	StartTime *time.Time
	EndTime   *time.Time
	Data      map[string]any
}

// Step is the status of one step and its jobs.
type Step struct {
	ID     string
	Status event.Status
	Jobs   []*Job
}

// Stage is the status of one stage and its steps.
type Stage struct {
	ID     string
	Status event.Status
	Steps  []*Step
}

// Realization is the status tree of one realization. Stages are kept
// in topology order.
type Realization struct {
	ID     string
	Active bool
	Status event.Status
	Stages []*Stage
}

// Snapshot is the full state of a run.
type Snapshot struct {
	status       event.Status
	realizations []*Realization
	byID         map[string]*Realization
	metadata     map[string]any
}

// Status returns the overall run status.
func (s *Snapshot) Status() event.Status {
	return s.status
}

// RealizationIDs returns the realization ids in construction order.
func (s *Snapshot) RealizationIDs() []string {
	ids := make([]string, len(s.realizations))
	for i, realization := range s.realizations {
		ids[i] = realization.ID
	}
	return ids
}

// Realizations returns the realization trees in construction order.
// The returned trees alias the snapshot; callers outside the owning
// goroutine should work on a [Snapshot.Clone].
func (s *Snapshot) Realizations() []*Realization {
	return s.realizations
}

// Realization returns one realization tree by id.
func (s *Snapshot) Realization(id string) (*Realization, bool) {
	realization, ok := s.byID[id]
	return realization, ok
}

// Metadata returns the metadata copied from the ensemble.
func (s *Snapshot) Metadata() map[string]any {
	return s.metadata
}

// Stage returns the stage with the given id.
func (r *Realization) Stage(id string) (*Stage, bool) {
	return find(r.Stages, func(stage *Stage) bool { return stage.ID == id })
}

// Step returns the step with the given id.
func (s *Stage) Step(id string) (*Step, bool) {
	return find(s.Steps, func(step *Step) bool { return step.ID == id })
}

// Job returns the job with the given id.
func (s *Step) Job(id string) (*Job, bool) {
	return find(s.Jobs, func(job *Job) bool { return job.ID == id })
}

func find[T any](items []T, match func(T) bool) (T, bool) {
	index := slices.IndexFunc(items, match)
	if index < 0 {
		var zero T
		return zero, false
	}
	return items[index], true
}

// Job looks up a job by full path.
func (s *Snapshot) Job(path event.Path) (*Job, bool) {
	step, ok := s.step(path)
	if !ok {
		return nil, false
	}
	return step.Job(path.Job)
}

func (s *Snapshot) stage(path event.Path) (*Stage, bool) {
	realization, ok := s.byID[path.Realization]
	if !ok {
		return nil, false
	}
	return realization.Stage(path.Stage)
}

func (s *Snapshot) step(path event.Path) (*Step, bool) {
	stage, ok := s.stage(path)
	if !ok {
		return nil, false
	}
	return stage.Step(path.Step)
}

// Clone returns a deep copy that shares nothing with s. Metadata and
// job data are copied through nested maps and slices; other values in
// them, which decoded JSON never holds, are shared.
func (s *Snapshot) Clone() *Snapshot {
	clone := &Snapshot{
		status:       s.status,
		realizations: make([]*Realization, len(s.realizations)),
		byID:         make(map[string]*Realization, len(s.realizations)),
		metadata:     cloneData(s.metadata),
	}
	for i, realization := range s.realizations {
		copied := realization.clone()
		clone.realizations[i] = copied
		clone.byID[copied.ID] = copied
	}
	return clone
}

func (r *Realization) clone() *Realization {
	copied := *r
	copied.Stages = make([]*Stage, len(r.Stages))
	for i, stage := range r.Stages {
		stageCopy := *stage
		stageCopy.Steps = make([]*Step, len(stage.Steps))
		for j, step := range stage.Steps {
			stepCopy := *step
			stepCopy.Jobs = make([]*Job, len(step.Jobs))
			for k, job := range step.Jobs {
				jobCopy := *job
				jobCopy.StartTime = cloneTime(job.StartTime)
				jobCopy.EndTime = cloneTime(job.EndTime)
				jobCopy.Data = cloneData(job.Data)
				stepCopy.Jobs[k] = &jobCopy
			}
			stageCopy.Steps[j] = &stepCopy
		}
		copied.Stages[i] = &stageCopy
	}
	return &copied
}

// cloneData copies a JSON-shaped map, descending into nested maps and
// slices.
func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	copied := make(map[string]any, len(data))
	for key, value := range data {
		copied[key] = cloneValue(value)
	}
	return copied
}

func cloneValue(value any) any {
	switch value := value.(type) {
	case map[string]any:
		return cloneData(value)
	case []any:
		copied := make([]any, len(value))
		for i, element := range value {
			copied[i] = cloneValue(element)
		}
		return copied
	default:
		return value
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

// SuccessfulRealizationCount walks each realization's stages in
// topology order and counts one for every stage that is Finished,
// stopping at the first stage of that realization that is not. The
// result is therefore the number of leading finished stages summed over
// all realizations, not the number of fully finished realizations:
// stages [Finished, Finished] and [Running, Finished] count 2+0=2, and
// [Finished, Finished] with [Finished, Running] counts 2+1=3.
//
// The evaluator exposes this under its historical name,
// successful-realization count; callers depend on the exact rule.
func (s *Snapshot) SuccessfulRealizationCount() int {
	count := 0
	for _, realization := range s.realizations {
		for _, stage := range realization.Stages {
			if stage.Status != event.StatusFinished {
				break
			}
			count++
		}
	}
	return count
}
