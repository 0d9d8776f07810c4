// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the evaluator binaries.
//
// main functions follow one shape: main calls run, and a non-nil error
// from run goes to [Fatal], which writes to stderr directly because
// the structured logger may not exist yet.
package process
