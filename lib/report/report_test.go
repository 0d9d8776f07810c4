// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/evaluator/lib/ensemble"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

func fixture(t *testing.T) (snapshot.ArchiveHeader, *snapshot.Snapshot) {
	t.Helper()
	stages := []ensemble.Stage{{
		ID: "0",
		Steps: []ensemble.Step{{
			ID:   "0",
			Jobs: []ensemble.Job{{ID: "0", Name: "make_grid"}, {ID: "1", Name: "flow"}},
		}},
	}}
	view, err := snapshot.BuildInitial([]ensemble.Realization{
		{Index: 0, Stages: stages},
		{Index: 1, Stages: stages},
	}, map[string]any{"iteration": 2})
	if err != nil {
		t.Fatalf("BuildInitial: %v", err)
	}

	apply := func(eventType event.Type, path event.Path, data map[string]any) {
		t.Helper()
		var payload any
		if data != nil {
			payload = data
		}
		envelope, err := event.New(eventType, path.Source("ee-7"), 1, payload)
		if err != nil {
			t.Fatal(err)
		}
		delta, err := snapshot.FromEvent(envelope)
		if err != nil {
			t.Fatal(err)
		}
		if err := view.Merge(delta); err != nil {
			t.Fatal(err)
		}
	}
	apply(event.TypeStageSuccess, event.Path{Realization: "0", Stage: "0"}, nil)
	apply(event.TypeStageFailure, event.Path{Realization: "1", Stage: "0"}, nil)
	apply(event.TypeJobFailure, event.Path{Realization: "1", Stage: "0", Step: "0", Job: "1"},
		map[string]any{"error_msg": "flow failed", "exit_code": 1})

	digest, err := view.Digest()
	if err != nil {
		t.Fatal(err)
	}
	header := snapshot.ArchiveHeader{
		EvaluatorID: "ee-7",
		WrittenAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventIndex:  9,
		Digest:      digest,
	}
	return header, view
}

func TestMarkdown(t *testing.T) {
	header, view := fixture(t)
	var output bytes.Buffer
	if err := Markdown(&output, header, view); err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	text := output.String()

	for _, want := range []string{
		"# Ensemble evaluation `ee-7`",
		"| Archived | 2026-03-01T12:00:00Z |",
		"| Messages sent | 9 |",
		"| Successful realizations | 1 |",
		"| 0 | Finished | 1/1 |  |",
		"| 1 | Failed | 0/1 | flow |",
		"### flow `real/1/stage/0/step/0/job/1`",
		"Exit code: 1",
		"```\nflow failed\n```",
		`"iteration": 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report does not contain %q:\n%s", want, text)
		}
	}
}

func TestHTML(t *testing.T) {
	header, view := fixture(t)
	var source bytes.Buffer
	if err := Markdown(&source, header, view); err != nil {
		t.Fatal(err)
	}
	var page bytes.Buffer
	if err := HTML(&page, "ee-7 <report>", source.Bytes()); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	text := page.String()
	for _, want := range []string{"<title>ee-7 &lt;report&gt;</title>", "<table>", "<h1>", "<td>flow</td>", "<pre><code>flow failed"} {
		if !strings.Contains(text, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
}
