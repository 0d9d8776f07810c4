// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ensemble defines what the evaluator needs from the engine
// that actually runs the job graph: the topology of each active
// realization, run metadata, cancellation, and a way to start the
// workers. It also provides [Reporter], the worker-side client that
// delivers status events to the evaluator's dispatch endpoint.
//
// The evaluator never decides topology. It captures the shape of the
// first active realization once, at construction, and assumes every
// other realization shares it.
package ensemble

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// Job is a leaf of the job graph.
type Job struct {
	ID   string
	Name string
}

// Step is an ordered group of jobs within a stage.
type Step struct {
	ID   string
	Jobs []Job
}

// Stage is an ordered group of steps within a realization. Status is
// the stage's status at the time the topology is read; the evaluator
// copies it into the initial snapshot.
type Stage struct {
	ID     string
	Status event.Status
	Steps  []Step
}

// Realization is one independent run of the job graph.
type Realization struct {
	Index  int
	Stages []Stage
}

// ID returns the realization id used in snapshots and source paths.
func (r Realization) ID() string {
	return strconv.Itoa(r.Index)
}

// Endpoint is the network address of a running evaluator.
type Endpoint struct {
	Host string
	Port int
}

// Address returns "host:port".
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// DispatchURL is the websocket URL workers connect to.
func (e Endpoint) DispatchURL() string {
	return fmt.Sprintf("ws://%s/dispatch", e.Address())
}

// ClientURL is the websocket URL observers connect to.
func (e Endpoint) ClientURL() string {
	return fmt.Sprintf("ws://%s/client", e.Address())
}

// Ensemble is the job-execution engine driven by an evaluator.
//
// Cancel and IsCancellable are called from the evaluator's event loop
// and must not block. Evaluate must return once the workers are
// started; the workers then report progress over the dispatch endpoint
// and finish with an ensemble stopped or cancelled event.
type Ensemble interface {
	// ActiveRealizations returns the realizations that will run, in
	// index order.
	ActiveRealizations() []Realization

	// Metadata is copied into the snapshot once, at construction.
	Metadata() map[string]any

	// IsCancellable reports whether Cancel will eventually produce an
	// ensemble cancelled event.
	IsCancellable() bool

	// Cancel asks the workers to stop.
	Cancel()

	// Evaluate starts the workers against the evaluator at endpoint.
	Evaluate(ctx context.Context, endpoint Endpoint, evaluatorID string) error
}
