// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/config"
	"github.com/bureau-foundation/evaluator/lib/dispatch"
	"github.com/bureau-foundation/evaluator/lib/ensemble"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

var (
	// ErrAlreadyRunning is returned by Run on an evaluator that has
	// already been started.
	ErrAlreadyRunning = errors.New("evaluator already running")

	// ErrStopped is returned by Run on an evaluator that was stopped
	// before it was started.
	ErrStopped = errors.New("evaluator stopped")
)

// Config configures an Evaluator. Zero fields take the defaults of
// [config.Default].
type Config struct {
	// ID names the evaluator in outbound sources. Empty means a
	// random UUID.
	ID string

	Host string
	Port int

	// MaxQueue bounds the inbound queue shared by all connections.
	MaxQueue int

	// MaxMessageSize bounds one inbound message in bytes.
	MaxMessageSize int

	// DrainTimeout bounds the wait for dispatchers once stopping.
	DrainTimeout time.Duration

	// WriteTimeout bounds one write to an observer.
	WriteTimeout time.Duration

	// ClientBuffer is each observer's outbox capacity. An observer
	// whose outbox is full when a message is broadcast is disconnected
	// rather than allowed to stall the loop, so a small buffer can drop
	// an observer that is reading but slower than a burst of events.
	ClientBuffer int

	// Clock drives the drain timeout and archive timestamps.
	// Default: clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Journal, if set, receives every outbound message as it is
	// built. Record is called from the loop goroutine and must not
	// block.
	Journal Recorder
}

// Recorder keeps a copy of outbound messages.
type Recorder interface {
	Record(index int64, eventType event.Type, body []byte)
}

// FromConfig converts the evaluator section of a config file.
func FromConfig(file config.EvaluatorConfig, logger *slog.Logger) Config {
	return Config{
		ID:             file.ID,
		Host:           file.Host,
		Port:           file.Port,
		MaxQueue:       file.MaxQueue,
		MaxMessageSize: file.MaxMessageSize,
		DrainTimeout:   file.DrainTimeout,
		WriteTimeout:   file.WriteTimeout,
		ClientBuffer:   file.ClientBuffer,
		Logger:         logger,
	}
}

func (c Config) withDefaults() Config {
	defaults := config.Default().Evaluator
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = defaults.MaxQueue
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaults.DrainTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = defaults.ClientBuffer
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

// Evaluator tracks one ensemble run. Create it with New, start it with
// Run, and end it with Stop.
type Evaluator struct {
	id       string
	config   Config
	ensemble ensemble.Ensemble
	clock    clock.Clock
	logger   *slog.Logger

	// Built once in New, read-only afterwards.
	dispatchRouter *dispatch.Router[*dispatcher]
	controlRouter  *dispatch.Router[*observer]

	// Owned by the loop goroutine once Run has started.
	snapshot    *snapshot.Snapshot
	eventIndex  int64
	observers   map[*observer]struct{}
	dispatchers map[*dispatcher]struct{}
	stopping    bool

	inbound chan inbound
	queries chan func()

	// gate admits connection handlers and their messages until the
	// loop starts terminating.
	gate       sync.RWMutex
	gateClosed bool
	handlers   sync.WaitGroup

	stopRequested chan struct{}
	stopOnce      sync.Once
	done          chan struct{}

	mu         sync.Mutex
	state      runState
	endpoint   ensemble.Endpoint
	httpServer *http.Server

	connectionCount int64
}

// New builds the initial snapshot from the ensemble's active
// realizations. It fails with [snapshot.ErrInvalidTopology] when there
// are none.
func New(ens ensemble.Ensemble, cfg Config) (*Evaluator, error) {
	cfg = cfg.withDefaults()

	initial, err := snapshot.BuildInitial(ens.ActiveRealizations(), ens.Metadata())
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		id:            cfg.ID,
		config:        cfg,
		ensemble:      ens,
		clock:         cfg.Clock,
		logger:        cfg.Logger.With("evaluator", cfg.ID),
		snapshot:      initial,
		eventIndex:    1,
		observers:     make(map[*observer]struct{}),
		dispatchers:   make(map[*dispatcher]struct{}),
		inbound:       make(chan inbound, cfg.MaxQueue),
		queries:       make(chan func()),
		stopRequested: make(chan struct{}),
		done:          make(chan struct{}),
	}

	e.dispatchRouter = dispatch.New[*dispatcher]().
		RegisterGroup(e.handleForwardModel, event.GroupForwardModel).
		Register(e.handleStarted, event.TypeEnsembleStarted).
		Register(e.handleStopped, event.TypeEnsembleStopped).
		Register(e.handleCancelled, event.TypeEnsembleCancelled)
	e.controlRouter = dispatch.New[*observer]().
		Register(e.handleUserCancel, event.TypeUserCancel).
		Register(e.handleUserDone, event.TypeUserDone)

	return e, nil
}

// ID returns the evaluator id used in outbound sources.
func (e *Evaluator) ID() string {
	return e.id
}

// Endpoint returns the address the server listens on. The port is only
// known once Run has returned.
func (e *Evaluator) Endpoint() ensemble.Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endpoint
}

// Done is closed when the loop has exited after a stop.
func (e *Evaluator) Done() <-chan struct{} {
	return e.done
}

// SuccessfulRealizationCount returns the snapshot's leading finished
// stage count; see [snapshot.Snapshot.SuccessfulRealizationCount] for
// the exact rule.
func (e *Evaluator) SuccessfulRealizationCount() int {
	var count int
	e.query(func() { count = e.snapshot.SuccessfulRealizationCount() })
	return count
}

// Snapshot returns a copy of the current snapshot.
func (e *Evaluator) Snapshot() *snapshot.Snapshot {
	var current *snapshot.Snapshot
	e.query(func() { current = e.snapshot.Clone() })
	return current
}

// EventsSent returns how many outbound messages have been built, which
// is also the index of the last one.
func (e *Evaluator) EventsSent() int64 {
	var sent int64
	e.query(func() { sent = e.eventIndex - 1 })
	return sent
}

// WriteArchive writes the current snapshot to path, sealed to
// recipients when any are given.
func (e *Evaluator) WriteArchive(path string, compression snapshot.Compression, recipients ...string) (snapshot.ArchiveHeader, error) {
	var current *snapshot.Snapshot
	var sent int64
	e.query(func() {
		current = e.snapshot.Clone()
		sent = e.eventIndex - 1
	})
	info := snapshot.ArchiveInfo{
		EvaluatorID: e.id,
		WrittenAt:   e.clock.Now(),
		EventIndex:  sent,
	}
	return snapshot.WriteArchiveFile(path, current, info, compression, recipients...)
}

// query runs f with the loop's state. While the loop runs, f runs on
// the loop goroutine; before Run and after the loop exits nothing else
// touches the state, so f runs on the caller's goroutine.
func (e *Evaluator) query(f func()) {
	e.mu.Lock()
	running := e.state == stateRunning
	e.mu.Unlock()

	if running {
		finished := make(chan struct{})
		select {
		case e.queries <- func() { f(); close(finished) }:
			<-finished
			return
		case <-e.done:
		}
	}
	f()
}
