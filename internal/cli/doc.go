// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the plumbing shared by the ee-evaluator and
// ee-monitor binaries: the subcommand tree, the process logger and
// terminal-aware JSON output.
package cli
