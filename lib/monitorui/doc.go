// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitorui is the terminal view of a running evaluator. It is
// a bubbletea model fed by a monitor's envelope stream: the first
// SNAPSHOT seeds the view, each SNAPSHOT_UPDATE is merged into it, and
// TERMINATED ends the program.
//
// The screen shows the overall status with a progress bar over
// finished stages, then one row per realization with its stage
// progress and the job it is currently on. Rows touched by an update
// glow briefly. "/" filters rows by fuzzy match on the row text; "c"
// asks the evaluator to cancel the ensemble and "q" tells it the
// observer is done.
package monitorui
