// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

func TestWireRoundTripThroughJSON(t *testing.T) {
	snapshot := mustBuildInitial(t, twoStageTopology(12))
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delta := (&PartialSnapshot{}).
		SetStatus(event.StatusRunning).
		UpdateStage("11", "1", event.StatusFailed).
		UpdateJob(event.Path{Realization: "2", Stage: "0", Step: "0", Job: "1"}, event.StatusRunning, &start, nil, map[string]any{"stdout": "flow.stdout"})
	if err := snapshot.Merge(delta); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	data, err := json.Marshal(snapshot.Wire())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	rebuilt, err := FromWire(&wire)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}

	// Ids come back in numeric order, not the lexical order of JSON keys.
	if !slices.Equal(rebuilt.RealizationIDs(), snapshot.RealizationIDs()) {
		t.Errorf("realization ids = %v, want %v", rebuilt.RealizationIDs(), snapshot.RealizationIDs())
	}
	want, _ := snapshot.Digest()
	got, _ := rebuilt.Digest()
	if want != got {
		t.Errorf("rebuilt digest %s, want %s", got, want)
	}
	job, _ := rebuilt.Job(event.Path{Realization: "2", Stage: "0", Step: "0", Job: "1"})
	if job.Name != "flow" || job.StartTime == nil || !job.StartTime.Equal(start) {
		t.Errorf("job = %+v", job)
	}
}

func TestPartialWireIsSparse(t *testing.T) {
	delta := (&PartialSnapshot{}).UpdateStep("4", "0", "0", event.StatusRunning)

	data, err := json.Marshal(delta.Wire())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	const want = `{"reals":{"4":{"stages":{"0":{"steps":{"0":{"status":"Running"}}}}}}}`
	if string(data) != want {
		t.Errorf("delta wire = %s\nwant %s", data, want)
	}
}

func TestPartialWireCollapsesUpdates(t *testing.T) {
	path := event.Path{Realization: "0", Stage: "0", Step: "0", Job: "0"}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delta := (&PartialSnapshot{}).
		UpdateJob(path, event.StatusRunning, &start, nil, map[string]any{"a": 1}).
		UpdateJob(path, event.StatusFinished, nil, nil, map[string]any{"b": 2})

	job := delta.Wire().Reals["0"].Stages["0"].Steps["0"].Jobs["0"]
	if *job.Status != event.StatusFinished {
		t.Errorf("status = %q, want the later Finished", *job.Status)
	}
	if job.StartTime == nil {
		t.Error("start time from the earlier update was lost")
	}
	if len(job.Data) != 2 {
		t.Errorf("data = %v, want both keys", job.Data)
	}
}

func TestPartialFromWireAppliesLikeOriginal(t *testing.T) {
	path := event.Path{Realization: "1", Stage: "1", Step: "0", Job: "0"}
	delta := (&PartialSnapshot{}).
		SetStatus(event.StatusRunning).
		UpdateStage("1", "1", event.StatusRunning).
		UpdateJob(path, event.StatusRunning, nil, nil, map[string]any{"pid": "17"})

	direct := mustBuildInitial(t, twoStageTopology(2))
	viaWire := mustBuildInitial(t, twoStageTopology(2))
	if err := direct.Merge(delta); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	data, err := json.Marshal(delta.Wire())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := viaWire.Merge(PartialFromWire(&wire)); err != nil {
		t.Fatalf("Merge(PartialFromWire): %v", err)
	}

	want, _ := direct.Digest()
	got, _ := viaWire.Digest()
	if want != got {
		t.Errorf("digest via wire %s, direct %s", got, want)
	}
}

func TestFromWireEmpty(t *testing.T) {
	if _, err := FromWire(&Wire{}); err == nil {
		t.Error("FromWire of an empty wire should fail")
	}
}

func TestCompareIDs(t *testing.T) {
	ids := []string{"b", "10", "2", "a", "0"}
	slices.SortFunc(ids, compareIDs)
	want := []string{"0", "2", "10", "a", "b"}
	if !slices.Equal(ids, want) {
		t.Errorf("sorted = %v, want %v", ids, want)
	}
}
