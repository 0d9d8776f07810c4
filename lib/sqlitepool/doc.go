// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with the pragmas the
// evaluator's local storage expects.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, use it from one goroutine, and [Pool.Put] it back.
//
// Writable pools get:
//
//   - journal_mode=WAL, so ee-monitor replay can read a journal while
//     the evaluator is still appending to it.
//   - synchronous=NORMAL. A journal is a record of a run, not its source
//     of truth; losing the tail on power failure is acceptable.
//   - busy_timeout=5000.
//   - cache_size=-8192 and temp_store=MEMORY.
//
// Read-only pools skip the journal_mode change and open the file
// without create or write access.
package sqlitepool
