// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import "time"

// HeatDecayDuration is how long a realization row glows after an
// update touches it.
const HeatDecayDuration = 3 * time.Second

// HeatTickInterval is the re-render interval while any row is hot.
const HeatTickInterval = 100 * time.Millisecond

// HeatTracker maps realization ids to the time of their last update.
// Heat decays linearly from 1 to 0 over [HeatDecayDuration].
type HeatTracker struct {
	ignitions map[string]time.Time
}

// NewHeatTracker creates an empty tracker.
func NewHeatTracker() *HeatTracker {
	return &HeatTracker{ignitions: make(map[string]time.Time)}
}

// Ignite marks a realization as just updated.
func (tracker *HeatTracker) Ignite(realizationID string, now time.Time) {
	tracker.ignitions[realizationID] = now
}

// Heat returns the current intensity for a realization: 1 at ignition,
// 0 once decayed or never ignited.
func (tracker *HeatTracker) Heat(realizationID string, now time.Time) float64 {
	ignition, exists := tracker.ignitions[realizationID]
	if !exists {
		return 0
	}
	elapsed := now.Sub(ignition)
	if elapsed >= HeatDecayDuration {
		return 0
	}
	return 1 - float64(elapsed)/float64(HeatDecayDuration)
}

// HasHot reports whether any row still glows, dropping decayed
// entries as it goes.
func (tracker *HeatTracker) HasHot(now time.Time) bool {
	hot := false
	for realizationID, ignition := range tracker.ignitions {
		if now.Sub(ignition) < HeatDecayDuration {
			hot = true
			continue
		}
		delete(tracker.ignitions, realizationID)
	}
	return hot
}
