// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the evaluator
// binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/evaluator/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without injection the commit comes from the VCS stamp in the
// binary's build info, when there is one.
package version
