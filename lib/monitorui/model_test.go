// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
	"github.com/bureau-foundation/evaluator/lib/testutil"
)

type fakeController struct {
	mu      sync.Mutex
	signals []string
	err     error
}

func (f *fakeController) SignalCancel(context.Context) error { return f.record("cancel") }
func (f *fakeController) SignalDone(context.Context) error   { return f.record("done") }

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, name)
	return f.err
}

func testSnapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.NewBuilder().
		AddStage("0", event.StatusUnknown).
		AddStep("0", "0", event.StatusUnknown).
		AddJob("0", "0", "0", "make_grid", event.StatusUnknown, nil).
		AddStage("1", event.StatusUnknown).
		AddStep("1", "0", event.StatusUnknown).
		AddJob("1", "0", "0", "flow", event.StatusUnknown, nil).
		Build([]string{"0", "1", "2"}, event.StatusUnknown)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func envelope(t *testing.T, eventType event.Type, id int64, payload any) *event.Envelope {
	t.Helper()
	e, err := event.New(eventType, event.EvaluatorSource("ee"), id, payload)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// step applies one message and returns the updated model and command.
func step(t *testing.T, model Model, message tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := model.Update(message)
	return updated.(Model), cmd
}

func newTestModel(t *testing.T, controller Controller) Model {
	t.Helper()
	model := NewModel(make(chan Update), controller, DefaultTheme)
	model, _ = step(t, model, tea.WindowSizeMsg{Width: 100, Height: 20})
	model, _ = step(t, model, updateMsg{Update{Envelope: envelope(t, event.TypeSnapshot, 1, testSnapshot(t).Wire())}})
	return model
}

func TestSummarize(t *testing.T) {
	snap := testSnapshot(t)
	delta := (&snapshot.PartialSnapshot{}).
		UpdateStage("0", "0", event.StatusFinished).
		UpdateStage("0", "1", event.StatusRunning).
		UpdateJob(event.Path{Realization: "0", Stage: "1", Step: "0", Job: "0"}, event.StatusRunning, nil, nil, nil).
		UpdateStage("1", "0", event.StatusFailed).
		UpdateJob(event.Path{Realization: "1", Stage: "0", Step: "0", Job: "0"}, event.StatusFailed, nil, nil, nil).
		UpdateStage("2", "0", event.StatusFinished).
		UpdateStage("2", "1", event.StatusFinished)
	if err := snap.Merge(delta); err != nil {
		t.Fatal(err)
	}

	rows := summarize(snap)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	want := []struct {
		status   event.Status
		finished int
		job      string
	}{
		{event.StatusRunning, 1, "flow"},
		{event.StatusFailed, 0, "make_grid"},
		{event.StatusFinished, 2, ""},
	}
	for i, w := range want {
		if rows[i].status != w.status || rows[i].finished != w.finished || rows[i].job != w.job {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], w)
		}
	}

	finished, total, fraction := progressFraction(rows)
	if finished != 3 || total != 6 || fraction != 0.5 {
		t.Errorf("progress = %d/%d (%v), want 3/6", finished, total, fraction)
	}
	if summarize(nil) != nil {
		t.Error("summarize(nil) is not nil")
	}
}

func TestModelAppliesUpdates(t *testing.T) {
	model := newTestModel(t, &fakeController{})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	model.now = func() time.Time { return now }

	delta := (&snapshot.PartialSnapshot{}).
		SetStatus(event.StatusStarting).
		UpdateStage("1", "0", event.StatusRunning)
	model, cmd := step(t, model, updateMsg{Update{Envelope: envelope(t, event.TypeSnapshotUpdate, 2, delta.Wire())}})
	if cmd == nil {
		t.Fatal("update returned no command; the model must keep listening")
	}

	if model.Snapshot().Status() != event.StatusStarting {
		t.Errorf("status = %s, want Starting", model.Snapshot().Status())
	}
	if model.rows[1].status != event.StatusRunning {
		t.Errorf("row 1 status = %s, want Running", model.rows[1].status)
	}
	if model.heat.Heat("1", now) != 1 || model.heat.Heat("0", now) != 0 {
		t.Error("only the touched realization should glow")
	}

	view := ansi.Strip(model.View())
	for _, want := range []string{"Starting", "event 2", "3 realizations", "0/6 stages"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelQuitsOnTerminated(t *testing.T) {
	model := newTestModel(t, &fakeController{})
	model, cmd := step(t, model, updateMsg{Update{Envelope: envelope(t, event.TypeTerminated, 2, nil)}})
	if !model.Terminated() {
		t.Error("Terminated() = false")
	}
	if cmd == nil {
		t.Fatal("no command after terminated")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("terminated did not quit")
	}
}

func TestModelStreamErrors(t *testing.T) {
	model := newTestModel(t, &fakeController{})
	failure := errors.New("connection reset")
	model, cmd := step(t, model, updateMsg{Update{Err: failure}})
	if !errors.Is(model.Err(), failure) {
		t.Errorf("Err() = %v", model.Err())
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("stream error did not quit")
	}

	fresh := newTestModel(t, &fakeController{})
	fresh, _ = step(t, fresh, streamEndedMsg{})
	if fresh.Err() == nil {
		t.Error("stream end without TERMINATED is not an error")
	}
}

func TestModelSignals(t *testing.T) {
	controller := &fakeController{}
	model := newTestModel(t, controller)

	model, cmd := step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if cmd == nil {
		t.Fatal("cancel key returned no command")
	}
	model, _ = step(t, model, cmd())
	if !strings.Contains(model.notice, "cancel sent") {
		t.Errorf("notice = %q", model.notice)
	}

	controller.err = errors.New("evaluator gone")
	model, cmd = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	model, _ = step(t, model, cmd())
	if !strings.Contains(model.notice, "done failed") {
		t.Errorf("notice = %q", model.notice)
	}

	if len(controller.signals) != 2 || controller.signals[0] != "cancel" || controller.signals[1] != "done" {
		t.Errorf("signals = %v", controller.signals)
	}
}

func TestModelFilter(t *testing.T) {
	model := newTestModel(t, &fakeController{})
	delta := (&snapshot.PartialSnapshot{}).
		UpdateStage("2", "0", event.StatusRunning).
		UpdateJob(event.Path{Realization: "2", Stage: "0", Step: "0", Job: "0"}, event.StatusRunning, nil, nil, nil)
	model, _ = step(t, model, updateMsg{Update{Envelope: envelope(t, event.TypeSnapshotUpdate, 2, delta.Wire())}})

	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	for _, r := range "grid" {
		model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if len(model.visible) != 1 || model.rows[model.visible[0]].id != "2" {
		t.Errorf("visible = %v, want only realization 2", model.visible)
	}

	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if model.filtering {
		t.Error("enter did not leave filter mode")
	}
	if !strings.Contains(ansi.Strip(model.View()), `filter "grid": 1 of 3`) {
		t.Errorf("status line missing filter summary:\n%s", ansi.Strip(model.View()))
	}

	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	if len(model.visible) != 3 {
		t.Errorf("visible after clear = %d, want 3", len(model.visible))
	}

	// Lowercase input finds the capitalised status.
	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	for _, r := range "run" {
		model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if len(model.visible) != 1 || model.rows[model.visible[0]].id != "2" {
		t.Errorf("visible for %q = %v, want only the running realization", model.filter, model.visible)
	}
}

func TestModelCursorStaysInRange(t *testing.T) {
	model := newTestModel(t, &fakeController{})
	for range 10 {
		model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyDown})
	}
	if model.cursor != 2 {
		t.Errorf("cursor = %d, want 2", model.cursor)
	}
	model, _ = step(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	if model.cursor != 0 {
		t.Errorf("cursor after home = %d, want 0", model.cursor)
	}
}

func TestFeed(t *testing.T) {
	seq := func(yield func(*event.Envelope, error) bool) {
		if !yield(envelope(t, event.TypeSnapshot, 1, nil), nil) {
			return
		}
		yield(envelope(t, event.TypeTerminated, 2, nil), nil)
	}
	updates := Feed(context.Background(), seq)

	first := testutil.RequireReceive(t, updates, time.Second, "first update")
	second := testutil.RequireReceive(t, updates, time.Second, "second update")
	if first.Envelope.ID != 1 || second.Envelope.Type != event.TypeTerminated {
		t.Errorf("updates = %+v, %+v", first, second)
	}
	if _, ok := <-updates; ok {
		t.Error("channel not closed after the sequence ended")
	}
}

func TestHeatTracker(t *testing.T) {
	tracker := NewHeatTracker()
	start := time.Unix(100, 0)
	tracker.Ignite("4", start)

	if heat := tracker.Heat("4", start.Add(HeatDecayDuration/2)); heat < 0.49 || heat > 0.51 {
		t.Errorf("heat at half decay = %v", heat)
	}
	if !tracker.HasHot(start) {
		t.Error("HasHot = false right after ignition")
	}
	if tracker.HasHot(start.Add(HeatDecayDuration)) {
		t.Error("HasHot = true after decay")
	}
	if tracker.Heat("4", start) != 0 {
		t.Error("decayed entry was not dropped")
	}
}

func TestFuzzyMatcher(t *testing.T) {
	matcher := newFuzzyMatcher()
	if _, ok := matcher.match("12 Running eclipse100", "ecl"); !ok {
		t.Error("prefix did not match")
	}
	for _, pattern := range []string{"run", "RUN", "Run", "running"} {
		if _, ok := matcher.match("12 Running eclipse100", pattern); !ok {
			t.Errorf("%q did not match a capitalised row", pattern)
		}
	}
	if _, ok := matcher.match("12 Finished", "flow"); ok {
		t.Error("absent pattern matched")
	}
	if _, ok := matcher.match("anything", ""); !ok {
		t.Error("empty pattern did not match")
	}
}
