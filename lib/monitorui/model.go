// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/evaluator/lib/monitor"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// signalTimeout bounds one cancel or done request.
const signalTimeout = 10 * time.Second

// Update is one item of the monitor stream: an envelope, or the error
// that ended the stream.
type Update struct {
	Envelope *event.Envelope
	Err      error
}

// Feed drains seq on its own goroutine into a channel the model can
// listen on. The channel closes when seq ends or ctx is cancelled.
func Feed(ctx context.Context, seq iter.Seq2[*event.Envelope, error]) <-chan Update {
	updates := make(chan Update, 64)
	go func() {
		defer close(updates)
		for envelope, err := range seq {
			select {
			case updates <- Update{Envelope: envelope, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return updates
}

// Controller sends the user's requests to the evaluator.
// *monitor.Monitor implements it.
type Controller interface {
	SignalCancel(ctx context.Context) error
	SignalDone(ctx context.Context) error
}

type (
	updateMsg      struct{ update Update }
	streamEndedMsg struct{}
	heatTickMsg    struct{}
	signalMsg      struct {
		name string
		err  error
	}
)

// Model is the bubbletea model of the monitor.
type Model struct {
	theme      Theme
	keys       KeyMap
	updates    <-chan Update
	controller Controller
	now        func() time.Time

	view      *snapshot.Snapshot
	lastID    event.ID
	rows      []row
	visible   []int
	matcher   *fuzzyMatcher
	filter    string
	filtering bool

	cursor int
	offset int
	width  int
	height int

	heat        *HeatTracker
	heatTicking bool

	spinner  spinner.Model
	progress progress.Model
	help     help.Model

	notice     string
	err        error
	terminated bool
}

// NewModel returns a model that reads updates until the stream ends
// and sends cancel and done through controller.
func NewModel(updates <-chan Update, controller Controller, theme Theme) Model {
	return Model{
		theme:      theme,
		keys:       DefaultKeyMap,
		updates:    updates,
		controller: controller,
		now:        time.Now,
		matcher:    newFuzzyMatcher(),
		heat:       NewHeatTracker(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress:   progress.New(progress.WithGradient(theme.ProgressStart, theme.ProgressEnd), progress.WithoutPercentage()),
		help:       help.New(),
		width:      80,
		height:     24,
	}
}

// Terminated reports whether the evaluator sent TERMINATED.
func (model Model) Terminated() bool {
	return model.terminated
}

// Err returns the error that ended the stream, if any.
func (model Model) Err() error {
	return model.err
}

// Snapshot returns the model's current view of the run, nil before
// the first SNAPSHOT.
func (model Model) Snapshot() *snapshot.Snapshot {
	return model.view
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(listen(model.updates), model.spinner.Tick)
}

// listen blocks until the next update arrives.
func listen(updates <-chan Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return streamEndedMsg{}
		}
		return updateMsg{update: update}
	}
}

func heatTick() tea.Cmd {
	return tea.Tick(HeatTickInterval, func(time.Time) tea.Msg { return heatTickMsg{} })
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		if model.filtering {
			return model.handleFilterKeys(message)
		}
		return model.handleKeys(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.help.Width = message.Width
		model.progress.Width = max(message.Width-24, 10)
		model.clampCursor()

	case updateMsg:
		return model.handleUpdate(message.update)

	case streamEndedMsg:
		if !model.terminated && model.err == nil {
			model.err = fmt.Errorf("monitor stream ended before TERMINATED")
		}
		return model, tea.Quit

	case signalMsg:
		if message.err != nil {
			model.notice = fmt.Sprintf("%s failed: %v", message.name, message.err)
		} else {
			model.notice = message.name + " sent"
		}

	case heatTickMsg:
		if model.heat.HasHot(model.now()) {
			return model, heatTick()
		}
		model.heatTicking = false

	case spinner.TickMsg:
		if model.terminated {
			return model, nil
		}
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(message)
		return model, cmd
	}
	return model, nil
}

func (model Model) handleUpdate(update Update) (tea.Model, tea.Cmd) {
	if update.Err != nil {
		model.err = update.Err
		return model, tea.Quit
	}
	envelope := update.Envelope
	model.lastID = envelope.ID

	if envelope.Type == event.TypeSnapshotUpdate {
		now := model.now()
		for _, id := range touchedRealizations(envelope) {
			model.heat.Ignite(id, now)
		}
	}

	view, err := monitor.Apply(model.view, envelope)
	if err != nil {
		model.notice = fmt.Sprintf("view out of sync: %v", err)
	}
	model.view = view
	model.rows = summarize(view)
	model.applyFilter()

	if envelope.Type == event.TypeTerminated {
		model.terminated = true
		return model, tea.Quit
	}

	cmds := []tea.Cmd{listen(model.updates)}
	if !model.heatTicking && model.heat.HasHot(model.now()) {
		model.heatTicking = true
		cmds = append(cmds, heatTick())
	}
	return model, tea.Batch(cmds...)
}

// touchedRealizations lists the realizations a SNAPSHOT_UPDATE
// changes.
func touchedRealizations(envelope *event.Envelope) []string {
	var delta struct {
		Reals map[string]json.RawMessage `json:"reals"`
	}
	if err := envelope.DecodeData(&delta); err != nil {
		return nil
	}
	ids := make([]string, 0, len(delta.Reals))
	for id := range delta.Reals {
		ids = append(ids, id)
	}
	return ids
}

func (model Model) handleKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Done):
		model.notice = "waiting for the evaluator to terminate"
		return model, model.signal("done", model.controller.SignalDone)

	case key.Matches(message, model.keys.Cancel):
		return model, model.signal("cancel", model.controller.SignalCancel)

	case key.Matches(message, model.keys.FilterActivate):
		model.filtering = true

	case key.Matches(message, model.keys.FilterClear):
		model.filter = ""
		model.applyFilter()

	case key.Matches(message, model.keys.Up):
		model.cursor--
	case key.Matches(message, model.keys.Down):
		model.cursor++
	case key.Matches(message, model.keys.PageUp):
		model.cursor -= model.listHeight()
	case key.Matches(message, model.keys.PageDown):
		model.cursor += model.listHeight()
	case key.Matches(message, model.keys.Home):
		model.cursor = 0
	case key.Matches(message, model.keys.End):
		model.cursor = len(model.visible) - 1
	}
	model.clampCursor()
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit
	case tea.KeyEsc:
		model.filter = ""
		model.filtering = false
	case tea.KeyEnter:
		model.filtering = false
	case tea.KeyBackspace:
		if runes := []rune(model.filter); len(runes) > 0 {
			model.filter = string(runes[:len(runes)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		model.filter += string(message.Runes)
	}
	model.applyFilter()
	return model, nil
}

func (model Model) signal(name string, send func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		defer cancel()
		return signalMsg{name: name, err: send(ctx)}
	}
}

// applyFilter recomputes the visible rows.
func (model *Model) applyFilter() {
	visible := make([]int, 0, len(model.rows))
	for i, r := range model.rows {
		if _, ok := model.matcher.match(r.text(), model.filter); ok {
			visible = append(visible, i)
		}
	}
	model.visible = visible
	model.clampCursor()
}

func (model *Model) clampCursor() {
	model.cursor = min(model.cursor, len(model.visible)-1)
	model.cursor = max(model.cursor, 0)

	height := model.listHeight()
	if model.cursor < model.offset {
		model.offset = model.cursor
	}
	if model.cursor >= model.offset+height {
		model.offset = model.cursor - height + 1
	}
	model.offset = max(min(model.offset, len(model.visible)-height), 0)
}

// listHeight is the number of realization rows that fit between the
// header and the footer.
func (model Model) listHeight() int {
	return max(model.height-chromeLines, 1)
}
