// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// Theme is the monitor's colour palette. All colours are ANSI 256
// codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Status colours.
	StatusWaiting   lipgloss.Color
	StatusRunning   lipgloss.Color
	StatusFinished  lipgloss.Color
	StatusFailed    lipgloss.Color
	StatusCancelled lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// HotAccent tints the background of a row that just changed.
	HotAccent lipgloss.Color

	// Progress bar gradient, empty to full.
	ProgressStart string
	ProgressEnd   string
}

// StatusColor returns the colour for a node or run status. Unknown
// and unrecognised statuses are faint.
func (theme Theme) StatusColor(status event.Status) lipgloss.Color {
	switch status {
	case event.StatusWaiting, event.StatusPending, event.StatusStarting:
		return theme.StatusWaiting
	case event.StatusRunning:
		return theme.StatusRunning
	case event.StatusFinished, event.StatusStopped:
		return theme.StatusFinished
	case event.StatusFailed:
		return theme.StatusFailed
	case event.StatusCancelled:
		return theme.StatusCancelled
	default:
		return theme.FaintText
	}
}

// DefaultTheme is tuned for dark 256-colour terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StatusWaiting:   lipgloss.Color("75"),  // blue
	StatusRunning:   lipgloss.Color("220"), // amber
	StatusFinished:  lipgloss.Color("114"), // green
	StatusFailed:    lipgloss.Color("196"), // red
	StatusCancelled: lipgloss.Color("141"), // light purple

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	HotAccent: lipgloss.Color("58"), // dark amber

	ProgressStart: "#5A56E0",
	ProgressEnd:   "#73F59F",
}
