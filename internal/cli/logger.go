// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/evaluator/lib/config"
)

// NewLogger builds the process logger. Format "auto" uses the text
// handler when output is a terminal and JSON otherwise, so logs piped
// to a collector stay machine-readable.
func NewLogger(cfg config.LoggingConfig, output *os.File) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == "auto" || format == "" {
		format = "json"
		if term.IsTerminal(int(output.Fd())) {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(output, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(output, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
