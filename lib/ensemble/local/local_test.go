// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/ensemble"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/testutil"
)

const twoJobTopology = `{
	// two realizations, one failing in the second job
	"realizations": [0, 1],
	"cancellable": true,
	"metadata": {"iteration": 3},
	"stages": [
		{"id": "0", "steps": [
			{"id": "0", "jobs": [
				{"id": "0", "name": "make_grid", "duration": "1s"},
				{"id": "1", "name": "flow", "fail_realizations": [1]},
			]},
		]},
	],
}`

// oneStage is the smallest valid stages list.
const oneStage = `[{"id": "0", "steps": [{"id": "0", "jobs": [{"id": "0", "name": "noop"}]}]}]`

func TestParseTopology(t *testing.T) {
	topology, err := ParseTopology([]byte(twoJobTopology))
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}
	if len(topology.Realizations) != 2 || topology.Realizations[1] != 1 {
		t.Errorf("realizations = %v, want [0 1]", topology.Realizations)
	}
	if !topology.Cancellable {
		t.Error("cancellable = false")
	}
	if topology.Metadata["iteration"] != float64(3) {
		t.Errorf("metadata = %v", topology.Metadata)
	}
	jobs := topology.Stages[0].Steps[0].Jobs
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Duration != time.Second {
		t.Errorf("duration = %v, want 1s", jobs[0].Duration)
	}
	if jobs[1].Duration != 0 {
		t.Errorf("missing duration = %v, want 0", jobs[1].Duration)
	}
	if jobs[0].FailsIn(1) || !jobs[1].FailsIn(1) || jobs[1].FailsIn(0) {
		t.Error("FailsIn does not follow fail_realizations")
	}
}

func TestParseTopologyCount(t *testing.T) {
	topology, err := ParseTopology([]byte(`{"realizations": 4, "stages": ` + oneStage + `}`))
	if err != nil {
		t.Fatalf("ParseTopology: %v", err)
	}
	for index, got := range topology.Realizations {
		if got != index {
			t.Fatalf("realizations = %v, want 0..3", topology.Realizations)
		}
	}
	if len(topology.Realizations) != 4 {
		t.Errorf("realizations = %v, want 4 entries", topology.Realizations)
	}
	if topology.Metadata == nil {
		t.Error("metadata is nil, want empty map")
	}
}

func TestParseTopologyRejects(t *testing.T) {
	cases := map[string]string{
		"not json":            `{realizations`,
		"zero realizations":   `{"realizations": 0, "stages": ` + oneStage + `}`,
		"duplicate indices":   `{"realizations": [1, 1], "stages": ` + oneStage + `}`,
		"negative index":      `{"realizations": [-1], "stages": ` + oneStage + `}`,
		"missing stages":      `{"realizations": 1}`,
		"empty stages":        `{"realizations": 1, "stages": []}`,
		"unknown field":       `{"realizations": 1, "stages": ` + oneStage + `, "queue": "lsf"}`,
		"bad duration":        `{"realizations": 1, "stages": [{"id": "0", "steps": [{"id": "0", "jobs": [{"id": "0", "name": "a", "duration": "soon"}]}]}]}`,
		"job without name":    `{"realizations": 1, "stages": [{"id": "0", "steps": [{"id": "0", "jobs": [{"id": "0"}]}]}]}`,
		"stage without steps": `{"realizations": 1, "stages": [{"id": "0"}]}`,
	}
	for name, document := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseTopology([]byte(document)); err == nil {
				t.Errorf("ParseTopology accepted %s", document)
			}
		})
	}
}

func TestReadTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.jsonc")
	if err := os.WriteFile(path, []byte(twoJobTopology), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTopology(path); err != nil {
		t.Fatalf("ReadTopology: %v", err)
	}
	if _, err := ReadTopology(filepath.Join(t.TempDir(), "absent.jsonc")); err == nil {
		t.Error("ReadTopology accepted a missing file")
	}
}

func TestActiveRealizations(t *testing.T) {
	topology, err := ParseTopology([]byte(twoJobTopology))
	if err != nil {
		t.Fatal(err)
	}
	ens := New(topology, clock.Fake(time.Unix(0, 0)), nil)

	realizations := ens.ActiveRealizations()
	if len(realizations) != 2 {
		t.Fatalf("realizations = %d, want 2", len(realizations))
	}
	if realizations[1].ID() != "1" {
		t.Errorf("ID = %q, want 1", realizations[1].ID())
	}
	jobs := realizations[0].Stages[0].Steps[0].Jobs
	if len(jobs) != 2 || jobs[1].Name != "flow" {
		t.Errorf("jobs = %+v", jobs)
	}
	if !ens.IsCancellable() {
		t.Error("IsCancellable = false")
	}

	metadata := ens.Metadata()
	metadata["iteration"] = "changed"
	if ens.Metadata()["iteration"] != float64(3) {
		t.Error("Metadata returned the topology's own map")
	}
}

// collector is a dispatch endpoint that records every envelope it
// receives.
type collector struct {
	mu        sync.Mutex
	envelopes []*event.Envelope
}

func newCollector(t *testing.T) (*collector, ensemble.Endpoint) {
	t.Helper()
	c := &collector{}
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		for {
			var message []byte
			if err := websocket.Message.Receive(conn, &message); err != nil {
				return
			}
			envelope, err := event.Decode(message)
			if err != nil {
				return
			}
			c.mu.Lock()
			c.envelopes = append(c.envelopes, envelope)
			c.mu.Unlock()
		}
	}))
	t.Cleanup(server.Close)

	host, portText, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		t.Fatal(err)
	}
	return c, ensemble.Endpoint{Host: host, Port: port}
}

// waitFor blocks until count envelopes have arrived. Each connection
// is read on its own goroutine, so arrival lags the sender.
func (c *collector) waitFor(t *testing.T, count int) {
	t.Helper()
	testutil.RequireEventually(t, func() bool { return len(c.snapshot()) >= count },
		5*time.Second, "collector did not receive %d envelopes", count)
}

func (c *collector) snapshot() []*event.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*event.Envelope(nil), c.envelopes...)
}

// bySource groups the recorded event types by source.
func (c *collector) bySource() map[string][]event.Type {
	grouped := make(map[string][]event.Type)
	for _, envelope := range c.snapshot() {
		grouped[envelope.Source] = append(grouped[envelope.Source], envelope.Type)
	}
	return grouped
}

func TestEvaluateReportsInOrder(t *testing.T) {
	topology, err := ParseTopology([]byte(twoJobTopology))
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.Fake(start)
	ens := New(topology, fake, nil)
	collected, endpoint := newCollector(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ens.Evaluate(ctx, endpoint, "ee-test"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Both realizations block on make_grid's one second.
	fake.WaitForTimers(2)
	fake.Advance(time.Second)
	testutil.RequireClosed(t, ens.Finished(), 5*time.Second, "ensemble did not finish")
	// Ten per realization plus the ensemble's started and stopped.
	collected.waitFor(t, 22)

	grouped := collected.bySource()

	ensembleTypes := grouped[event.EvaluatorSource("ee-test")]
	want := []event.Type{event.TypeEnsembleStarted, event.TypeEnsembleStopped}
	assertTypes(t, "ensemble", ensembleTypes, want)

	firstJob := event.Path{Realization: "0", Stage: "0", Step: "0", Job: "0"}
	assertTypes(t, "realization 0 job 0", grouped[firstJob.Source("ee-test")], []event.Type{
		event.TypeJobStart, event.TypeJobRunning, event.TypeJobSuccess,
	})
	failingJob := event.Path{Realization: "1", Stage: "0", Step: "0", Job: "1"}
	assertTypes(t, "realization 1 job 1", grouped[failingJob.Source("ee-test")], []event.Type{
		event.TypeJobStart, event.TypeJobRunning, event.TypeJobFailure,
	})
	stage := event.Path{Realization: "1", Stage: "0"}
	assertTypes(t, "realization 1 stage", grouped[stage.Source("ee-test")], []event.Type{
		event.TypeStageRunning, event.TypeStageFailure,
	})
	step := event.Path{Realization: "0", Stage: "0", Step: "0"}
	assertTypes(t, "realization 0 step", grouped[step.Source("ee-test")], []event.Type{
		event.TypeStepStart, event.TypeStepSuccess,
	})

	for _, envelope := range collected.snapshot() {
		if envelope.Time == nil || envelope.Time.Before(start) || envelope.Time.After(fake.Now()) {
			t.Errorf("%s time = %v, want a time from the fake clock", envelope.Type, envelope.Time)
		}
	}
}

func TestEvaluateCancel(t *testing.T) {
	topology, err := ParseTopology([]byte(`{
		"realizations": 2,
		"cancellable": true,
		"stages": [{"id": "0", "steps": [{"id": "0", "jobs": [
			{"id": "0", "name": "long", "duration": "1h"},
			{"id": "1", "name": "never"},
		]}]}],
	}`))
	if err != nil {
		t.Fatal(err)
	}
	fake := clock.Fake(time.Unix(0, 0))
	ens := New(topology, fake, nil)
	collected, endpoint := newCollector(t)

	if err := ens.Evaluate(context.Background(), endpoint, "ee-cancel"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	fake.WaitForTimers(2)
	ens.Cancel()
	ens.Cancel()
	testutil.RequireClosed(t, ens.Finished(), 5*time.Second, "cancelled ensemble did not finish")
	// Per realization: stage running, step start, job start, job running.
	collected.waitFor(t, 10)

	types := collected.bySource()[event.EvaluatorSource("ee-cancel")]
	assertTypes(t, "ensemble", types, []event.Type{event.TypeEnsembleStarted, event.TypeEnsembleCancelled})

	never := event.Path{Realization: "0", Stage: "0", Step: "0", Job: "1"}
	if got := collected.bySource()[never.Source("ee-cancel")]; len(got) != 0 {
		t.Errorf("job after cancel reported %v", got)
	}
}

func TestEvaluateUnreachable(t *testing.T) {
	topology, err := ParseTopology([]byte(`{"realizations": 1, "stages": ` + oneStage + `}`))
	if err != nil {
		t.Fatal(err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ens := New(topology, clock.Real(), nil)
	if err := ens.Evaluate(context.Background(), ensemble.Endpoint{Host: "127.0.0.1", Port: port}, "ee"); err == nil {
		t.Error("Evaluate succeeded with nothing listening")
	}
}

func assertTypes(t *testing.T, what string, got, want []event.Type) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s types = %v, want %v", what, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s types = %v, want %v", what, got, want)
			return
		}
	}
}
