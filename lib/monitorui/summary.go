// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import (
	"fmt"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// row is the display summary of one realization.
type row struct {
	id string

	// status is the status of the first unfinished stage, or Finished
	// when every stage is.
	status event.Status

	// stages holds each stage's status in topology order.
	stages []event.Status

	// finished counts leading finished stages.
	finished int

	// job names the job the realization is on: the running one, else
	// the one that failed.
	job string
}

// text is what the filter matches against.
func (r row) text() string {
	return fmt.Sprintf("%s %s %s", r.id, r.status, r.job)
}

// summarize reduces a snapshot to one row per realization, in
// realization order.
func summarize(view *snapshot.Snapshot) []row {
	if view == nil {
		return nil
	}
	realizations := view.Realizations()
	rows := make([]row, 0, len(realizations))
	for _, realization := range realizations {
		r := row{id: realization.ID, status: event.StatusFinished}
		current := -1
		for i, stage := range realization.Stages {
			r.stages = append(r.stages, stage.Status)
			if stage.Status == event.StatusFinished && current < 0 {
				r.finished++
				continue
			}
			if current < 0 {
				current = i
				r.status = stage.Status
			}
		}
		if len(realization.Stages) == 0 {
			r.status = realization.Status
		}
		if current >= 0 {
			r.job = currentJob(realization.Stages[current])
		}
		rows = append(rows, r)
	}
	return rows
}

func currentJob(stage *snapshot.Stage) string {
	failed := ""
	for _, step := range stage.Steps {
		for _, job := range step.Jobs {
			switch job.Status {
			case event.StatusRunning:
				return job.Name
			case event.StatusFailed:
				failed = job.Name
			}
		}
	}
	return failed
}

// progressFraction is finished stages over all stages.
func progressFraction(rows []row) (finished, total int, fraction float64) {
	for _, r := range rows {
		finished += r.finished
		total += len(r.stages)
	}
	if total == 0 {
		return 0, 0, 0
	}
	return finished, total, float64(finished) / float64(total)
}
