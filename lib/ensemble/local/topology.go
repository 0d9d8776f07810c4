// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/evaluator/lib/ensemble"
)

//go:embed topology.schema.json
var topologySchemaJSON []byte

// topologySchema is compiled once; the embedded document is fixed.
var topologySchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("topology.schema.json", bytes.NewReader(topologySchemaJSON)); err != nil {
		panic("local: adding topology schema: " + err.Error())
	}
	schema, err := compiler.Compile("topology.schema.json")
	if err != nil {
		panic("local: compiling topology schema: " + err.Error())
	}
	return schema
}()

// Topology describes a simulated ensemble. It is authored as JSONC:
//
//	{
//	  "realizations": 3,           // or [0, 2, 5]
//	  "cancellable": true,
//	  "metadata": {"iteration": 0},
//	  "stages": [
//	    {"id": "0", "steps": [
//	      {"id": "0", "jobs": [
//	        {"id": "0", "name": "make_grid", "duration": "2s"},
//	        {"id": "1", "name": "flow", "duration": "30s", "fail_realizations": [2]},
//	      ]},
//	    ]},
//	  ],
//	}
type Topology struct {
	Realizations []int
	Cancellable  bool
	Metadata     map[string]any
	Stages       []StageSpec
}

// StageSpec is one stage of the simulated graph.
type StageSpec struct {
	ID    string     `json:"id"`
	Steps []StepSpec `json:"steps"`
}

// StepSpec is one step of the simulated graph.
type StepSpec struct {
	ID   string    `json:"id"`
	Jobs []JobSpec `json:"jobs"`
}

// JobSpec is one simulated job.
type JobSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Duration is how long the job runs on the ensemble's clock.
	Duration time.Duration `json:"-"`

	// FailRealizations lists the realizations in which the job fails.
	FailRealizations []int `json:"fail_realizations"`
}

// FailsIn reports whether the job fails in the given realization.
func (j JobSpec) FailsIn(realization int) bool {
	return slices.Contains(j.FailRealizations, realization)
}

// topologyDocument is the JSON shape before realizations and durations
// are normalized.
type topologyDocument struct {
	Realizations json.RawMessage `json:"realizations"`
	Cancellable  bool            `json:"cancellable"`
	Metadata     map[string]any  `json:"metadata"`
	Stages       []struct {
		ID    string `json:"id"`
		Steps []struct {
			ID   string `json:"id"`
			Jobs []struct {
				JobSpec
				Duration string `json:"duration"`
			} `json:"jobs"`
		} `json:"steps"`
	} `json:"stages"`
}

// ParseTopology strips JSONC comments and trailing commas, validates
// the result against the topology schema, and decodes it. Every stage,
// step and job list must be non-empty.
func ParseTopology(data []byte) (*Topology, error) {
	stripped := jsonc.ToJSON(data)

	var raw any
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	if err := topologySchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	var document topologyDocument
	if err := json.Unmarshal(stripped, &document); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}

	topology := &Topology{
		Cancellable: document.Cancellable,
		Metadata:    document.Metadata,
	}
	if topology.Metadata == nil {
		topology.Metadata = make(map[string]any)
	}

	var count int
	if err := json.Unmarshal(document.Realizations, &count); err == nil {
		for index := range count {
			topology.Realizations = append(topology.Realizations, index)
		}
	} else if err := json.Unmarshal(document.Realizations, &topology.Realizations); err != nil {
		return nil, fmt.Errorf("parsing realizations: %w", err)
	}
	slices.Sort(topology.Realizations)

	for _, stage := range document.Stages {
		stageSpec := StageSpec{ID: stage.ID}
		for _, step := range stage.Steps {
			stepSpec := StepSpec{ID: step.ID}
			for _, job := range step.Jobs {
				spec := job.JobSpec
				if job.Duration != "" {
					duration, err := time.ParseDuration(job.Duration)
					if err != nil {
						return nil, fmt.Errorf("job %s/%s/%s duration: %w", stage.ID, step.ID, job.ID, err)
					}
					spec.Duration = duration
				}
				stepSpec.Jobs = append(stepSpec.Jobs, spec)
			}
			stageSpec.Steps = append(stageSpec.Steps, stepSpec)
		}
		topology.Stages = append(topology.Stages, stageSpec)
	}
	return topology, nil
}

// ReadTopology reads and parses a JSONC topology file.
func ReadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	topology, err := ParseTopology(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return topology, nil
}

// realizations expands the topology into the evaluator's view.
func (t *Topology) realizations() []ensemble.Realization {
	stages := make([]ensemble.Stage, len(t.Stages))
	for i, stage := range t.Stages {
		steps := make([]ensemble.Step, len(stage.Steps))
		for j, step := range stage.Steps {
			jobs := make([]ensemble.Job, len(step.Jobs))
			for k, job := range step.Jobs {
				jobs[k] = ensemble.Job{ID: job.ID, Name: job.Name}
			}
			steps[j] = ensemble.Step{ID: step.ID, Jobs: jobs}
		}
		stages[i] = ensemble.Stage{ID: stage.ID, Steps: steps}
	}

	realizations := make([]ensemble.Realization, len(t.Realizations))
	for i, index := range t.Realizations {
		realizations[i] = ensemble.Realization{Index: index, Stages: stages}
	}
	return realizations
}
