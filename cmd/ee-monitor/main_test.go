// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/evaluator/lib/journal"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

func TestMonitorFor(t *testing.T) {
	mon, err := monitorFor([]string{"127.0.0.1:51820"})
	if err != nil {
		t.Fatalf("monitorFor: %v", err)
	}
	if mon.URL() != "ws://127.0.0.1:51820/client" {
		t.Errorf("URL = %q", mon.URL())
	}

	for _, args := range [][]string{nil, {"a:1", "b:2"}, {"localhost"}, {"localhost:http"}, {"localhost:70000"}} {
		if _, err := monitorFor(args); err == nil {
			t.Errorf("monitorFor(%q) succeeded", args)
		}
	}
}

func TestEnvelopes(t *testing.T) {
	first, err := event.New(event.TypeSnapshot, event.EvaluatorSource("ee-1"), 1, map[string]any{"status": "Starting"})
	if err != nil {
		t.Fatal(err)
	}
	body, err := first.Encode()
	if err != nil {
		t.Fatal(err)
	}
	messages := []journal.Message{
		{Index: 1, Type: event.TypeSnapshot, Body: body},
		{Index: 2, Type: event.TypeSnapshotUpdate, Body: []byte("{broken")},
		{Index: 3, Type: event.TypeTerminated, Body: body},
	}

	var ids []event.ID
	var failure error
	for envelope, err := range envelopes(messages) {
		if err != nil {
			failure = err
			continue
		}
		ids = append(ids, envelope.ID)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("ids = %v, want [1]", ids)
	}
	if failure == nil || !strings.Contains(failure.Error(), "message 2") {
		t.Errorf("error = %v, want one naming message 2", failure)
	}
}

func TestPrintRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var output bytes.Buffer
	err := printRuns(&output, []journal.Run{
		{ID: 1, EvaluatorID: "ee-a", StartedAt: started, EndedAt: started.Add(time.Minute), Messages: 12},
		{ID: 2, EvaluatorID: "ee-b", StartedAt: started.Add(time.Hour), Messages: 3, Dropped: 1},
	})
	if err != nil {
		t.Fatalf("printRuns: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header and two runs:\n%s", len(lines), output.String())
	}
	if !strings.Contains(lines[1], "2026-03-01T12:01:00Z") {
		t.Errorf("first run line = %q, want its end time", lines[1])
	}
	if fields := strings.Fields(lines[2]); fields[3] != "-" {
		t.Errorf("unfinished run line = %q, want '-' for ended", lines[2])
	}
}

func TestReadOnlyController(t *testing.T) {
	if err := (readOnly{}).SignalCancel(context.Background()); !errors.Is(err, errReplay) {
		t.Errorf("SignalCancel = %v", err)
	}
	if err := (readOnly{}).SignalDone(context.Background()); !errors.Is(err, errReplay) {
		t.Errorf("SignalDone = %v", err)
	}
}

func TestRootCommandNames(t *testing.T) {
	want := []string{"watch", "tail", "cancel", "done", "inspect", "report", "replay", "keygen"}
	root := rootCommand()
	if len(root.Subcommands) != len(want) {
		t.Fatalf("subcommands = %d, want %d", len(root.Subcommands), len(want))
	}
	for i, sub := range root.Subcommands {
		if sub.Name != want[i] {
			t.Errorf("subcommand %d = %q, want %q", i, sub.Name, want[i])
		}
	}
}
