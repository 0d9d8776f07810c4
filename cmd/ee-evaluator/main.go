// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ee-evaluator runs a simulated ensemble under an ensemble evaluator
// and prints the number of successful realizations when it ends.
//
// The ensemble is described by a JSONC topology file (see
// lib/ensemble/local). While it runs, observers can connect to
// ws://HOST:PORT/client, for example with ee-monitor watch. The run
// ends when every realization has finished, when an observer sends
// USER_DONE or USER_CANCEL, or on SIGINT/SIGTERM.
//
// Configuration comes from --config, then $EE_CONFIG, then built-in
// defaults. Flags override the file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/evaluator/internal/cli"
	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/config"
	"github.com/bureau-foundation/evaluator/lib/ensemble/local"
	"github.com/bureau-foundation/evaluator/lib/evaluator"
	"github.com/bureau-foundation/evaluator/lib/journal"
	"github.com/bureau-foundation/evaluator/lib/process"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
	"github.com/bureau-foundation/evaluator/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		topologyPath string
		host         string
		port         int
		id           string
		archivePath  string
		compression  string
		recipients   []string
		journalPath  string
		logLevel     string
		showVersion  bool
	)

	flagSet := pflag.NewFlagSet("ee-evaluator", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&topologyPath, "topology", "t", "", "JSONC topology of the simulated ensemble (required)")
	flagSet.StringVar(&host, "host", "", "interface to listen on")
	flagSet.IntVar(&port, "port", 0, "port to listen on (0 picks a free port)")
	flagSet.StringVar(&id, "id", "", "evaluator id (default: random UUID)")
	flagSet.StringVar(&archivePath, "archive", "", "write the final snapshot archive here")
	flagSet.StringVar(&compression, "compression", "", "archive compression: none, lz4 or zstd")
	flagSet.StringArrayVar(&recipients, "recipient", nil, "seal the archive to this age public key (repeatable)")
	flagSet.StringVar(&journalPath, "journal", "", "record outbound messages in this SQLite journal")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("ee-evaluator %s\n", version.Info())
		return nil
	}
	if topologyPath == "" {
		printHelp(flagSet)
		return errors.New("--topology is required")
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("host") {
		cfg.Evaluator.Host = host
	}
	if flagSet.Changed("port") {
		cfg.Evaluator.Port = port
	}
	if flagSet.Changed("id") {
		cfg.Evaluator.ID = id
	}
	if flagSet.Changed("archive") {
		cfg.Archive.Path = archivePath
	}
	if flagSet.Changed("compression") {
		cfg.Archive.Compression = compression
	}
	if flagSet.Changed("recipient") {
		cfg.Archive.Recipients = recipients
	}
	if flagSet.Changed("journal") {
		cfg.Journal.Path = journalPath
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Evaluator.ID == "" {
		cfg.Evaluator.ID = uuid.NewString()
	}

	logger, err := cli.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	archiveCompression, err := snapshot.ParseCompression(cfg.Archive.Compression)
	if err != nil {
		return err
	}

	topology, err := local.ReadTopology(topologyPath)
	if err != nil {
		return err
	}

	evaluatorConfig := evaluator.FromConfig(cfg.Evaluator, logger)
	var recorder *journal.Journal
	if cfg.Journal.Path != "" {
		recorder, err = journal.Open(journal.Config{
			Path:        cfg.Journal.Path,
			EvaluatorID: cfg.Evaluator.ID,
			Buffer:      cfg.Journal.Buffer,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		evaluatorConfig.Journal = recorder
		logger.Info("journal opened", "path", cfg.Journal.Path, "run", recorder.RunID())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ens := local.New(topology, clock.Real(), logger)
	e, err := evaluator.New(ens, evaluatorConfig)
	if err != nil {
		return err
	}

	successful, runErr := e.RunAndGetSuccessfulRealizations(ctx)
	ens.Cancel()

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error("closing journal", "error", err)
		} else if dropped := recorder.Dropped(); dropped > 0 {
			logger.Warn("journal dropped messages", "dropped", dropped)
		}
	}

	if cfg.Archive.Path != "" {
		header, err := e.WriteArchive(cfg.Archive.Path, archiveCompression, cfg.Archive.Recipients...)
		if err != nil {
			return errors.Join(runErr, err)
		}
		logger.Info("archive written",
			"path", cfg.Archive.Path,
			"compression", header.Compression,
			"sealed", len(cfg.Archive.Recipients) > 0,
			"digest", header.Digest,
		)
	}

	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	fmt.Println(successful)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ee-evaluator runs a simulated ensemble and reports how many
realizations succeeded.

Observers connect to ws://HOST:PORT/client; workers report to
ws://HOST:PORT/dispatch.

Usage:
  ee-evaluator --topology FILE [flags]

Flags:
%s
Examples:
  # Run three realizations and archive the final snapshot
  ee-evaluator -t poly.jsonc --archive run.ee

  # Seal the archive so only the operator can read it
  ee-evaluator -t poly.jsonc --archive run.ee --recipient age1...
`, flagSet.FlagUsages())
}
