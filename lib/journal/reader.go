// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/sqlitepool"
)

// ErrUnknownRun is returned by ReadRun for a run id the journal does
// not contain.
var ErrUnknownRun = errors.New("unknown run")

// Run summarizes one evaluator process's entry in a journal.
type Run struct {
	ID          int64
	EvaluatorID string
	StartedAt   time.Time

	// EndedAt is zero while the run is still being written, or if the
	// evaluator died without closing the journal.
	EndedAt  time.Time
	Dropped  int64
	Messages int64
}

// Message is one recorded outbound message.
type Message struct {
	Index      int64
	Type       event.Type
	RecordedAt time.Time
	Body       []byte
}

// Reader reads a journal file without modifying it. It can be used
// while an evaluator is still writing.
type Reader struct {
	pool *sqlitepool.Pool
}

// OpenReader opens an existing journal read-only.
func OpenReader(path string) (*Reader, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 1, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Reader{pool: pool}, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.pool.Close()
}

// Runs lists the journal's runs, oldest first.
func (r *Reader) Runs(ctx context.Context) ([]Run, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	defer r.pool.Put(conn)

	var runs []Run
	err = sqlitex.Execute(conn, `
		SELECT runs.id, runs.evaluator_id, runs.started_at, runs.ended_at, runs.dropped,
		       (SELECT COUNT(*) FROM messages WHERE messages.run_id = runs.id)
		FROM runs ORDER BY runs.id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				run := Run{
					ID:          stmt.ColumnInt64(0),
					EvaluatorID: stmt.ColumnText(1),
					StartedAt:   time.Unix(0, stmt.ColumnInt64(2)).UTC(),
					Dropped:     stmt.ColumnInt64(4),
					Messages:    stmt.ColumnInt64(5),
				}
				if stmt.ColumnType(3) != sqlite.TypeNull {
					run.EndedAt = time.Unix(0, stmt.ColumnInt64(3)).UTC()
				}
				runs = append(runs, run)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("journal: listing runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the id of the most recent run.
func (r *Reader) LatestRun(ctx context.Context) (int64, error) {
	runs, err := r.Runs(ctx)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, fmt.Errorf("journal: %w: journal is empty", ErrUnknownRun)
	}
	return runs[len(runs)-1].ID, nil
}

// ReadRun returns a run's messages in event index order.
func (r *Reader) ReadRun(ctx context.Context, runID int64) ([]Message, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	defer r.pool.Put(conn)

	var exists bool
	err = sqlitex.Execute(conn, "SELECT 1 FROM runs WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{runID},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: looking up run %d: %w", runID, err)
	}
	if !exists {
		return nil, fmt.Errorf("journal: run %d: %w", runID, ErrUnknownRun)
	}

	var messages []Message
	err = sqlitex.Execute(conn, "SELECT idx, type, recorded_at, body FROM messages WHERE run_id = ? ORDER BY idx", &sqlitex.ExecOptions{
		Args: []any{runID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			body := make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, body)
			messages = append(messages, Message{
				Index:      stmt.ColumnInt64(0),
				Type:       event.Type(stmt.ColumnText(1)),
				RecordedAt: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
				Body:       body,
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: reading run %d: %w", runID, err)
	}
	return messages, nil
}
