// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ee-monitor watches and controls a running ensemble evaluator, and
// reads what an evaluator leaves behind: snapshot archives and message
// journals.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bureau-foundation/evaluator/internal/cli"
	"github.com/bureau-foundation/evaluator/lib/monitor"
	"github.com/bureau-foundation/evaluator/lib/process"
	"github.com/bureau-foundation/evaluator/lib/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("ee-monitor %s\n", version.Info())
		return
	}
	if err := rootCommand().Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:        "ee-monitor",
		Description: "Watch and control an ensemble evaluator, and inspect the archives\nand journals it writes.",
		Subcommands: []*cli.Command{
			watchCommand(),
			tailCommand(),
			signalCommand("cancel", "Ask the evaluator to cancel the ensemble", (*monitor.Monitor).SignalCancel),
			signalCommand("done", "Tell the evaluator the observer is finished", (*monitor.Monitor).SignalDone),
			inspectCommand(),
			reportCommand(),
			replayCommand(),
			keygenCommand(),
		},
		Examples: []cli.Example{
			{Description: "Watch a local evaluator", Command: "ee-monitor watch 127.0.0.1:51820"},
			{Description: "Print a sealed archive", Command: "ee-monitor inspect --identity ~/.config/ee/identity run.ee"},
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// monitorFor parses the HOST:PORT argument every evaluator command
// takes.
func monitorFor(args []string) (*monitor.Monitor, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one HOST:PORT argument, got %d", len(args))
	}
	host, portText, err := net.SplitHostPort(args[0])
	if err != nil {
		return nil, fmt.Errorf("evaluator address %q: %w", args[0], err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("evaluator address %q: invalid port", args[0])
	}
	return monitor.New(host, port), nil
}
