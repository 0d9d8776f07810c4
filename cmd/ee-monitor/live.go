// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/evaluator/internal/cli"
	"github.com/bureau-foundation/evaluator/lib/monitor"
	"github.com/bureau-foundation/evaluator/lib/monitorui"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Summary: "Interactive view of a running evaluator",
		Description: `Open a terminal view of every realization's progress. Press / to
filter, c to cancel the ensemble, q to tell the evaluator you are done
and ctrl+c to leave without signalling.`,
		Usage: "ee-monitor watch HOST:PORT",
		Run: func(args []string) error {
			mon, err := monitorFor(args)
			if err != nil {
				return err
			}
			defer mon.Close()

			ctx, cancel := signalContext()
			defer cancel()
			return runTUI(ctx, monitorui.Feed(ctx, mon.Track(ctx)), mon)
		},
	}
}

// runTUI runs the view until it quits and reports a stream error.
func runTUI(ctx context.Context, updates <-chan monitorui.Update, controller monitorui.Controller) error {
	model := monitorui.NewModel(updates, controller, monitorui.DefaultTheme)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return err
	}
	if finished, ok := final.(monitorui.Model); ok && finished.Err() != nil {
		return finished.Err()
	}
	return nil
}

func tailCommand() *cli.Command {
	var plain bool
	return &cli.Command{
		Name:    "tail",
		Summary: "Print every message the evaluator sends",
		Usage:   "ee-monitor tail [--plain] HOST:PORT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tail", pflag.ContinueOnError)
			flagSet.BoolVar(&plain, "plain", false, "never colour the output")
			return flagSet
		},
		Run: func(args []string) error {
			mon, err := monitorFor(args)
			if err != nil {
				return err
			}
			defer mon.Close()

			printer := cli.NewJSONPrinter(os.Stdout)
			if plain {
				printer = cli.NewPlainJSONPrinter(os.Stdout)
			}
			ctx, cancel := signalContext()
			defer cancel()
			for envelope, err := range mon.Track(ctx) {
				if err != nil {
					return err
				}
				if err := printer.Print(envelope); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func signalCommand(name, summary string, send func(*monitor.Monitor, context.Context) error) *cli.Command {
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   fmt.Sprintf("ee-monitor %s HOST:PORT", name),
		Run: func(args []string) error {
			mon, err := monitorFor(args)
			if err != nil {
				return err
			}
			defer mon.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return send(mon, ctx)
		},
	}
}
