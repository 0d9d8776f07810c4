// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// chromeLines is the header, progress, spacer, status and help lines
// around the realization list.
const chromeLines = 5

// idWidth is the column width of realization ids.
const idWidth = 6

// View implements tea.Model.
func (model Model) View() string {
	var builder strings.Builder

	builder.WriteString(model.truncate(model.renderHeader()))
	builder.WriteByte('\n')
	builder.WriteString(model.truncate(model.renderProgress()))
	builder.WriteString("\n\n")

	height := model.listHeight()
	now := model.now()
	for line := range height {
		position := model.offset + line
		if position < len(model.visible) {
			builder.WriteString(model.truncate(model.renderRow(model.rows[model.visible[position]], position == model.cursor, now)))
		}
		builder.WriteByte('\n')
	}

	builder.WriteString(model.truncate(model.renderStatusLine()))
	builder.WriteByte('\n')
	builder.WriteString(model.help.View(model.keys))
	return builder.String()
}

func (model Model) truncate(line string) string {
	return ansi.Truncate(line, model.width, "…")
}

func (model Model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("ensemble evaluator")
	if model.view == nil {
		return title + " " + model.spinner.View() + lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(" connecting")
	}

	status := model.view.Status()
	header := title + "  " + lipgloss.NewStyle().Foreground(model.theme.StatusColor(status)).Bold(true).Render(string(status))
	if !model.terminated && status != event.StatusStopped && status != event.StatusCancelled {
		header += " " + model.spinner.View()
	}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	header += faint.Render(fmt.Sprintf("  %d realizations  event %d", len(model.rows), model.lastID))
	if model.terminated {
		header += faint.Render("  terminated")
	}
	return header
}

func (model Model) renderProgress() string {
	finished, total, fraction := progressFraction(model.rows)
	return model.progress.ViewAs(fraction) + lipgloss.NewStyle().Foreground(model.theme.FaintText).
		Render(fmt.Sprintf("  %d/%d stages", finished, total))
}

func (model Model) renderRow(r row, selected bool, now time.Time) string {
	var cells strings.Builder

	marker := "  "
	if selected {
		marker = "▸ "
	}
	cells.WriteString(marker)
	cells.WriteString(fmt.Sprintf("%-*s", idWidth, r.id))

	for _, status := range r.stages {
		glyph := "□"
		if status == event.StatusFinished {
			glyph = "■"
		}
		cells.WriteString(lipgloss.NewStyle().Foreground(model.theme.StatusColor(status)).Render(glyph))
	}
	cells.WriteString("  ")
	cells.WriteString(lipgloss.NewStyle().Foreground(model.theme.StatusColor(r.status)).Width(10).Render(string(r.status)))
	if r.job != "" {
		cells.WriteString(lipgloss.NewStyle().Foreground(model.theme.NormalText).Render(r.job))
	}

	style := lipgloss.NewStyle()
	switch {
	case selected:
		style = style.Background(model.theme.SelectedBackground)
	case model.heat.Heat(r.id, now) > 0:
		style = style.Background(model.theme.HotAccent)
	}
	return style.Render(cells.String())
}

func (model Model) renderStatusLine() string {
	switch {
	case model.filtering:
		return "/" + model.filter + "█"
	case model.err != nil:
		return lipgloss.NewStyle().Foreground(model.theme.StatusFailed).Render(model.err.Error())
	case model.notice != "":
		return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(model.notice)
	case model.filter != "":
		return lipgloss.NewStyle().Foreground(model.theme.FaintText).
			Render(fmt.Sprintf("filter %q: %d of %d", model.filter, len(model.visible), len(model.rows)))
	}
	return ""
}
