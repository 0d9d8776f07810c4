// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/evaluator/internal/cli"
	"github.com/bureau-foundation/evaluator/lib/journal"
	"github.com/bureau-foundation/evaluator/lib/monitorui"
	"github.com/bureau-foundation/evaluator/lib/report"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/sealed"
	"github.com/bureau-foundation/evaluator/lib/secret"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// readArchive reads a plain or sealed archive. identityPath may be
// empty for a plain archive.
func readArchive(path, identityPath string) (snapshot.ArchiveHeader, *snapshot.Snapshot, error) {
	if identityPath == "" {
		header, view, err := snapshot.ReadArchiveFile(path)
		if errors.Is(err, snapshot.ErrSealed) {
			return header, view, fmt.Errorf("%w (pass --identity)", err)
		}
		return header, view, err
	}
	identity, err := secret.ReadFile(identityPath)
	if err != nil {
		return snapshot.ArchiveHeader{}, nil, fmt.Errorf("reading identity: %w", err)
	}
	defer identity.Close()
	return snapshot.ReadSealedArchiveFile(path, identity)
}

type archiveDocument struct {
	EvaluatorID string         `json:"evaluator_id"`
	WrittenAt   time.Time      `json:"written_at"`
	EventIndex  int64          `json:"event_index"`
	Compression string         `json:"compression"`
	Digest      string         `json:"digest"`
	Successful  int            `json:"successful_realizations"`
	Snapshot    *snapshot.Wire `json:"snapshot"`
}

func inspectCommand() *cli.Command {
	var identityPath string
	var plain bool
	return &cli.Command{
		Name:    "inspect",
		Summary: "Print a snapshot archive as JSON",
		Usage:   "ee-monitor inspect [--identity FILE] ARCHIVE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.StringVarP(&identityPath, "identity", "i", "", "age identity file for sealed archives")
			flagSet.BoolVar(&plain, "plain", false, "never colour the output")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one ARCHIVE argument, got %d", len(args))
			}
			header, view, err := readArchive(args[0], identityPath)
			if err != nil {
				return err
			}
			printer := cli.NewJSONPrinter(os.Stdout)
			if plain {
				printer = cli.NewPlainJSONPrinter(os.Stdout)
			}
			return printer.Print(archiveDocument{
				EvaluatorID: header.EvaluatorID,
				WrittenAt:   header.WrittenAt,
				EventIndex:  header.EventIndex,
				Compression: header.Compression.String(),
				Digest:      header.Digest.String(),
				Successful:  view.SuccessfulRealizationCount(),
				Snapshot:    view.Wire(),
			})
		},
	}
}

func reportCommand() *cli.Command {
	var identityPath, outputPath string
	var asHTML bool
	return &cli.Command{
		Name:    "report",
		Summary: "Summarize a snapshot archive as Markdown or HTML",
		Usage:   "ee-monitor report [--html] [--output FILE] [--identity FILE] ARCHIVE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("report", pflag.ContinueOnError)
			flagSet.StringVarP(&identityPath, "identity", "i", "", "age identity file for sealed archives")
			flagSet.StringVarP(&outputPath, "output", "o", "", "write here instead of stdout")
			flagSet.BoolVar(&asHTML, "html", false, "render a standalone HTML page")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one ARCHIVE argument, got %d", len(args))
			}
			header, view, err := readArchive(args[0], identityPath)
			if err != nil {
				return err
			}

			var markdown bytes.Buffer
			if err := report.Markdown(&markdown, header, view); err != nil {
				return err
			}
			output := markdown.Bytes()
			if asHTML {
				var page bytes.Buffer
				if err := report.HTML(&page, "Ensemble evaluation "+header.EvaluatorID, output); err != nil {
					return err
				}
				output = page.Bytes()
			}

			if outputPath == "" {
				_, err := os.Stdout.Write(output)
				return err
			}
			return os.WriteFile(outputPath, output, 0o644)
		},
	}
}

func replayCommand() *cli.Command {
	var runID int64
	var list, watch, plain bool
	return &cli.Command{
		Name:    "replay",
		Summary: "Replay the messages recorded in a journal",
		Description: `Print the messages an evaluator recorded in its journal, in the order
it sent them. With --watch, play them through the interactive view.
The latest run is used unless --run is given.`,
		Usage: "ee-monitor replay [--list | --run ID] [--watch] JOURNAL",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			flagSet.Int64Var(&runID, "run", 0, "run to replay (default: latest)")
			flagSet.BoolVar(&list, "list", false, "list the journal's runs")
			flagSet.BoolVar(&watch, "watch", false, "play the run in the interactive view")
			flagSet.BoolVar(&plain, "plain", false, "never colour the output")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one JOURNAL argument, got %d", len(args))
			}
			ctx, cancel := signalContext()
			defer cancel()

			reader, err := journal.OpenReader(args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			if list {
				runs, err := reader.Runs(ctx)
				if err != nil {
					return err
				}
				return printRuns(os.Stdout, runs)
			}

			if runID == 0 {
				if runID, err = reader.LatestRun(ctx); err != nil {
					return err
				}
			}
			messages, err := reader.ReadRun(ctx, runID)
			if err != nil {
				return err
			}

			if watch {
				return runTUI(ctx, monitorui.Feed(ctx, envelopes(messages)), readOnly{})
			}
			printer := cli.NewJSONPrinter(os.Stdout)
			if plain {
				printer = cli.NewPlainJSONPrinter(os.Stdout)
			}
			for _, message := range messages {
				if err := printer.Print(message.Body); err != nil {
					return fmt.Errorf("message %d: %w", message.Index, err)
				}
			}
			return nil
		},
	}
}

func printRuns(w io.Writer, runs []journal.Run) error {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "RUN\tEVALUATOR\tSTARTED\tENDED\tMESSAGES\tDROPPED")
	for _, run := range runs {
		ended := "-"
		if !run.EndedAt.IsZero() {
			ended = run.EndedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			run.ID, run.EvaluatorID, run.StartedAt.Format(time.RFC3339), ended, run.Messages, run.Dropped)
	}
	return tw.Flush()
}

// envelopes decodes journal messages in order.
func envelopes(messages []journal.Message) iter.Seq2[*event.Envelope, error] {
	return func(yield func(*event.Envelope, error) bool) {
		for _, message := range messages {
			envelope, err := event.Decode(message.Body)
			if err != nil {
				yield(nil, fmt.Errorf("message %d: %w", message.Index, err))
				return
			}
			if !yield(envelope, nil) {
				return
			}
		}
	}
}

// readOnly refuses signals during a replay.
type readOnly struct{}

var errReplay = errors.New("replaying a journal: nothing to signal")

func (readOnly) SignalCancel(context.Context) error { return errReplay }
func (readOnly) SignalDone(context.Context) error   { return errReplay }

func keygenCommand() *cli.Command {
	var outputPath string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an identity for sealed archives",
		Description: `Generate an age x25519 keypair. The identity is written to --output
with mode 0600; the public key is printed. Give the public key to
evaluators as archive.recipients or --recipient.`,
		Usage: "ee-monitor keygen --output FILE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&outputPath, "output", "o", "", "identity file to create (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if outputPath == "" {
				return errors.New("--output is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintf(file, "# created: %s\n# public key: %s\n%s\n",
				time.Now().UTC().Format(time.RFC3339), keypair.PublicKey, keypair.PrivateKey.String())
			if err := errors.Join(writeErr, file.Close()); err != nil {
				return err
			}
			fmt.Println(keypair.PublicKey)
			return nil
		},
	}
}
