// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"
	"strings"
)

// sourcePrefix is the first two segments of every source path.
const sourcePrefix = "/ert/ee/"

// EvaluatorSource returns the source attribute for messages the
// evaluator itself originates: "/ert/ee/<evaluatorID>".
func EvaluatorSource(evaluatorID string) string {
	return sourcePrefix + evaluatorID
}

// Path addresses one node of the job graph. Trailing fields are empty
// when the path stops at a shallower level: a stage event carries
// Realization and Stage, a step event adds Step, a job event adds Job.
type Path struct {
	Realization string
	Stage       string
	Step        string
	Job         string
}

// Depth returns how many levels of the path are set, from 0 (the run
// itself) to 4 (a job).
func (p Path) Depth() int {
	switch {
	case p.Realization == "":
		return 0
	case p.Stage == "":
		return 1
	case p.Step == "":
		return 2
	case p.Job == "":
		return 3
	default:
		return 4
	}
}

// String renders the path as "real/<r>/stage/<s>/step/<t>/job/<j>",
// stopping at the deepest set level.
func (p Path) String() string {
	var builder strings.Builder
	for i, segment := range p.segments() {
		if i > 0 {
			builder.WriteByte('/')
		}
		builder.WriteString(segment.key)
		builder.WriteByte('/')
		builder.WriteString(segment.value)
	}
	return builder.String()
}

// Source returns the full source attribute for an event about this
// node, emitted to the evaluator identified by evaluatorID.
func (p Path) Source(evaluatorID string) string {
	if p.Depth() == 0 {
		return EvaluatorSource(evaluatorID)
	}
	return EvaluatorSource(evaluatorID) + "/" + p.String()
}

type pathSegment struct {
	key   string
	value string
}

func (p Path) segments() []pathSegment {
	all := []pathSegment{
		{"real", p.Realization},
		{"stage", p.Stage},
		{"step", p.Step},
		{"job", p.Job},
	}
	return all[:p.Depth()]
}

// ParseSource extracts the evaluator id and node path from a source
// attribute. Segments after the evaluator id must come in the fixed
// order real, stage, step, job, each followed by a non-empty id.
func ParseSource(source string) (evaluatorID string, path Path, err error) {
	if !strings.HasPrefix(source, sourcePrefix) {
		return "", Path{}, fmt.Errorf("source %q: expected prefix %q", source, sourcePrefix)
	}
	segments := strings.Split(strings.TrimPrefix(source, sourcePrefix), "/")
	evaluatorID = segments[0]
	rest := segments[1:]
	if len(rest)%2 != 0 {
		return "", Path{}, fmt.Errorf("source %q: dangling segment %q", source, rest[len(rest)-1])
	}

	fields := []*string{&path.Realization, &path.Stage, &path.Step, &path.Job}
	keys := []string{"real", "stage", "step", "job"}
	for level := 0; level*2 < len(rest); level++ {
		if level >= len(keys) {
			return "", Path{}, fmt.Errorf("source %q: too many segments", source)
		}
		key, value := rest[level*2], rest[level*2+1]
		if key != keys[level] {
			return "", Path{}, fmt.Errorf("source %q: expected %q segment, got %q", source, keys[level], key)
		}
		if value == "" {
			return "", Path{}, fmt.Errorf("source %q: empty %s id", source, key)
		}
		*fields[level] = value
	}
	return evaluatorID, path, nil
}
