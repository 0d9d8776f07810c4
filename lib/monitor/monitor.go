// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor is the observer-side client of an evaluator. A
// [Monitor] connects to the evaluator's /client endpoint, yields every
// message the evaluator sends until TERMINATED, and sends the user's
// cancel and done requests on the same connection.
//
//	mon := monitor.New("127.0.0.1", port)
//	defer mon.Close()
//	var view *snapshot.Snapshot
//	for envelope, err := range mon.Track(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    view, _ = monitor.Apply(view, envelope)
//	}
package monitor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// ErrTerminated is returned once the evaluator has sent TERMINATED:
// the stream is over and the connection closed.
var ErrTerminated = errors.New("evaluator terminated")

const websocketOrigin = "http://localhost/"

// Monitor is one observer connection. It dials lazily, on the first
// Track or signal. Track is single-pass and should have one consumer;
// signals may be sent from any goroutine while it runs.
type Monitor struct {
	url string

	mu         sync.Mutex
	conn       *websocket.Conn
	terminated bool
	source     string
	nextID     int64
}

// New returns a monitor for the evaluator listening on host:port.
func New(host string, port int) *Monitor {
	return &Monitor{
		url:    fmt.Sprintf("ws://%s/client", net.JoinHostPort(host, strconv.Itoa(port))),
		nextID: 1,
	}
}

// URL returns the observer endpoint the monitor connects to.
func (m *Monitor) URL() string {
	return m.url
}

func (m *Monitor) connect(ctx context.Context) (*websocket.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil, ErrTerminated
	}
	if m.conn != nil {
		return m.conn, nil
	}
	config, err := websocket.NewConfig(m.url, websocketOrigin)
	if err != nil {
		return nil, fmt.Errorf("monitor config: %w", err)
	}
	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", m.url, err)
	}
	m.conn = conn
	return conn, nil
}

// Track yields every envelope the evaluator sends, starting with the
// SNAPSHOT, and ends after yielding TERMINATED. A connection or decode
// failure is yielded as an error and ends the sequence. Cancelling ctx
// closes the connection.
func (m *Monitor) Track(ctx context.Context) iter.Seq2[*event.Envelope, error] {
	return func(yield func(*event.Envelope, error) bool) {
		conn, err := m.connect(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		trackDone := make(chan struct{})
		defer close(trackDone)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-trackDone:
			}
		}()

		for {
			var message []byte
			if err := websocket.Message.Receive(conn, &message); err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				yield(nil, fmt.Errorf("receiving from evaluator: %w", err))
				return
			}
			envelope, err := event.Decode(message)
			if err != nil {
				yield(nil, err)
				return
			}
			m.learnSource(envelope)

			if envelope.Type == event.TypeTerminated {
				m.markTerminated()
				yield(envelope, nil)
				return
			}
			if !yield(envelope, nil) {
				return
			}
		}
	}
}

// SignalCancel asks the evaluator to cancel the ensemble.
func (m *Monitor) SignalCancel(ctx context.Context) error {
	return m.signal(ctx, event.TypeUserCancel)
}

// SignalDone tells the evaluator the observer is finished, which stops
// the evaluator.
func (m *Monitor) SignalDone(ctx context.Context) error {
	return m.signal(ctx, event.TypeUserDone)
}

func (m *Monitor) signal(ctx context.Context, eventType event.Type) error {
	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	envelope, err := event.New(eventType, m.signalSource(), m.nextID, nil)
	if err != nil {
		return err
	}
	m.nextID++
	data, err := envelope.Encode()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second) //nolint:realclock socket deadline
	if contextDeadline, ok := ctx.Deadline(); ok && contextDeadline.Before(deadline) {
		deadline = contextDeadline
	}
	conn.SetWriteDeadline(deadline)
	if err := websocket.Message.Send(conn, string(data)); err != nil {
		return fmt.Errorf("sending %s: %w", eventType, err)
	}
	return nil
}

// signalSource is the source stamped on control events: the
// evaluator's own source with a /monitor suffix once known.
func (m *Monitor) signalSource() string {
	if m.source == "" {
		return event.EvaluatorSource("monitor")
	}
	return m.source + "/monitor"
}

func (m *Monitor) learnSource(envelope *event.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source == "" {
		m.source = envelope.Source
	}
}

func (m *Monitor) markTerminated() {
	m.mu.Lock()
	m.terminated = true
	conn := m.conn
	m.mu.Unlock()
	conn.Close()
}

// Close closes the connection. Track, if running, ends with an error.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
