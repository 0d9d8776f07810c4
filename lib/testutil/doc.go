// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend] and [RequireClosed] wrap the select
// with a wall-clock timeout that keeps a broken test from hanging the
// suite. They are the only place tests use real time for waiting;
// anything the code under test times goes through a fake clock.
// [RequireEventually] polls state that has no channel to wait on.
//
// [UniqueID] generates per-process unique identifiers.
//
// All helpers fail the test with t.Fatalf rather than returning
// errors.
package testutil
