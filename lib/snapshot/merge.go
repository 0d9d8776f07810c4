// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"maps"
)

// Merge applies delta in place. Every update is resolved against the
// topology before anything changes, so a delta with an unknown path
// (ErrUnknownPath) leaves the snapshot untouched. Updates are applied
// in order; a later update to the same node overwrites the earlier one.
func (s *Snapshot) Merge(delta *PartialSnapshot) error {
	if delta == nil {
		return nil
	}

	apply := make([]func(), 0, len(delta.Updates))
	for _, update := range delta.Updates {
		target, err := s.resolve(update)
		if err != nil {
			return err
		}
		apply = append(apply, target)
	}

	if delta.Status != nil {
		s.status = *delta.Status
	}
	for _, target := range apply {
		target()
	}
	return nil
}

// resolve finds the node an update addresses and returns the closure
// that writes the update into it.
func (s *Snapshot) resolve(update NodeUpdate) (func(), error) {
	path := update.Path
	realization, ok := s.byID[path.Realization]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}

	switch path.Depth() {
	case 1:
		return func() {
			if update.Status != nil {
				realization.Status = *update.Status
			}
		}, nil

	case 2:
		stage, ok := realization.Stage(path.Stage)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
		}
		return func() {
			if update.Status != nil {
				stage.Status = *update.Status
			}
		}, nil

	case 3:
		step, ok := s.step(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
		}
		return func() {
			if update.Status != nil {
				step.Status = *update.Status
			}
		}, nil

	case 4:
		job, ok := s.Job(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
		}
		return func() {
			if update.Status != nil {
				job.Status = *update.Status
			}
			if update.StartTime != nil {
				job.StartTime = cloneTime(update.StartTime)
			}
			if update.EndTime != nil {
				job.EndTime = cloneTime(update.EndTime)
			}
			if len(update.Data) > 0 {
				if job.Data == nil {
					job.Data = make(map[string]any, len(update.Data))
				}
				maps.Copy(job.Data, update.Data)
			}
		}, nil

	default:
		return nil, fmt.Errorf("%w: empty path", ErrUnknownPath)
	}
}
