// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal keeps a SQLite record of the messages an evaluator
// sends to its observers, so a run can be replayed after the fact.
//
// Each evaluator process opens the journal file once and appends one
// row to the runs table. Every outbound SNAPSHOT, SNAPSHOT_UPDATE and
// TERMINATED is then stored verbatim under that run, keyed by its event
// index. Recording never blocks the evaluator: messages go through a
// bounded queue to a writer goroutine, and when the queue is full the
// message is dropped and counted. The drop count is stored on the run
// when the journal closes.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY,
	evaluator_id TEXT NOT NULL,
	started_at   INTEGER NOT NULL,
	ended_at     INTEGER,
	dropped      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	run_id      INTEGER NOT NULL,
	idx         INTEGER NOT NULL,
	type        TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	body        BLOB NOT NULL,
	PRIMARY KEY (run_id, idx)
);
`

// batchLimit caps the messages written in one transaction.
const batchLimit = 256

// Config configures a Journal.
type Config struct {
	// Path is the database file. Its directory must exist.
	Path string

	// EvaluatorID is stored on the run row.
	EvaluatorID string

	// Buffer is the number of messages queued for the writer.
	// Default: 4096.
	Buffer int

	// Clock stamps runs and messages. Default: clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type record struct {
	index     int64
	eventType event.Type
	body      []byte
}

// Journal appends one run's messages. Record is safe for concurrent
// use; Close must be called once the evaluator has stopped.
type Journal struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
	runID  int64

	mu      sync.RWMutex
	closed  bool
	records chan record
	dropped atomic.Int64

	writerDone chan struct{}
	writeErr   error
}

// Open creates the schema if needed, starts a run and the writer.
func Open(cfg Config) (*Journal, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4096
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: 1,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}
	err = sqlitex.Execute(conn, "INSERT INTO runs (evaluator_id, started_at) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{cfg.EvaluatorID, cfg.Clock.Now().UnixNano()},
	})
	runID := conn.LastInsertRowID()
	if err != nil {
		pool.Put(conn)
		pool.Close()
		return nil, fmt.Errorf("journal: starting run: %w", err)
	}

	j := &Journal{
		pool:       pool,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With("journal", cfg.Path, "run", runID),
		runID:      runID,
		records:    make(chan record, cfg.Buffer),
		writerDone: make(chan struct{}),
	}
	go j.write(conn)
	return j, nil
}

// RunID returns the id of the run this journal appends to.
func (j *Journal) RunID() int64 {
	return j.runID
}

// Record queues one outbound message. It never blocks: a full queue
// drops the message. Records after Close are ignored. body must not be
// modified afterwards.
func (j *Journal) Record(index int64, eventType event.Type, body []byte) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.records <- record{index: index, eventType: eventType, body: body}:
	default:
		if j.dropped.Add(1) == 1 {
			j.logger.Warn("journal queue full, dropping messages", "index", index)
		}
	}
}

// Dropped returns how many messages Record has dropped.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// Close flushes queued messages, ends the run and closes the database.
// It returns the first write error the writer hit, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.records)
	j.mu.Unlock()

	<-j.writerDone
	return errors.Join(j.writeErr, j.pool.Close())
}

// write owns conn for the journal's lifetime.
func (j *Journal) write(conn *sqlite.Conn) {
	defer close(j.writerDone)
	defer j.pool.Put(conn)

	batch := make([]record, 0, batchLimit)
	for first := range j.records {
		batch = append(batch[:0], first)
	fill:
		for len(batch) < batchLimit {
			select {
			case next, ok := <-j.records:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		if err := j.writeBatch(conn, batch); err != nil && j.writeErr == nil {
			j.writeErr = err
			j.logger.Error("journal write failed", "error", err)
		}
	}

	err := sqlitex.Execute(conn, "UPDATE runs SET ended_at = ?, dropped = ? WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{j.clock.Now().UnixNano(), j.dropped.Load(), j.runID},
	})
	if err != nil && j.writeErr == nil {
		j.writeErr = fmt.Errorf("journal: ending run: %w", err)
	}
}

func (j *Journal) writeBatch(conn *sqlite.Conn, batch []record) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("journal: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	recordedAt := j.clock.Now().UnixNano()
	for _, message := range batch {
		err = sqlitex.Execute(conn,
			"INSERT OR REPLACE INTO messages (run_id, idx, type, recorded_at, body) VALUES (?, ?, ?, ?, ?)",
			&sqlitex.ExecOptions{
				Args: []any{j.runID, message.index, string(message.eventType), recordedAt, message.body},
			})
		if err != nil {
			return fmt.Errorf("journal: inserting message %d: %w", message.index, err)
		}
	}
	return nil
}
