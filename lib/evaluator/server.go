// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/evaluator/lib/netutil"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

type inboundKind int

const (
	observerAttached inboundKind = iota
	observerDetached
	observerControl
	dispatcherAttached
	dispatcherDetached
	dispatcherEvent
)

// inbound is one message from a connection handler to the loop.
type inbound struct {
	kind       inboundKind
	observer   *observer
	dispatcher *dispatcher
	envelope   *event.Envelope
}

// observer is a /client connection. The loop writes to outbox and
// closes it exactly once, when it forgets the observer; the writer
// goroutine drains it and then closes the connection.
type observer struct {
	name       string
	conn       *websocket.Conn
	outbox     chan []byte
	writerDone chan struct{}
}

// dispatcher is a /dispatch connection.
type dispatcher struct {
	name string
	conn *websocket.Conn
}

// serveConnection is the websocket handler for every accepted
// connection. The websocket server closes conn when it returns.
func (e *Evaluator) serveConnection(conn *websocket.Conn) {
	if !e.enter() {
		return
	}
	defer e.handlers.Done()

	conn.MaxPayloadBytes = e.config.MaxMessageSize
	number := atomic.AddInt64(&e.connectionCount, 1)

	switch role(conn.Request().URL.Path) {
	case "client":
		e.serveObserver(conn, fmt.Sprintf("observer-%d", number))
	case "dispatch":
		e.serveDispatcher(conn, fmt.Sprintf("dispatcher-%d", number))
	default:
		e.logger.Debug("closing connection with unknown path",
			"path", conn.Request().URL.Path,
			"remote", conn.Request().RemoteAddr,
		)
	}
}

// role returns the first segment of a request path.
func role(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return first
}

// enter admits a new connection handler unless the evaluator is
// terminating.
func (e *Evaluator) enter() bool {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if e.gateClosed {
		return false
	}
	e.handlers.Add(1)
	return true
}

// submit queues a message for the loop, blocking while the queue is
// full. It returns false once the evaluator is terminating.
func (e *Evaluator) submit(message inbound) bool {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if e.gateClosed {
		return false
	}
	e.inbound <- message
	return true
}

func (e *Evaluator) serveObserver(conn *websocket.Conn, name string) {
	o := &observer{
		name:       name,
		conn:       conn,
		outbox:     make(chan []byte, e.config.ClientBuffer),
		writerDone: make(chan struct{}),
	}
	go e.writeLoop(o)
	defer func() { <-o.writerDone }()

	if !e.submit(inbound{kind: observerAttached, observer: o}) {
		close(o.outbox)
		return
	}
	defer e.submit(inbound{kind: observerDetached, observer: o})

	for {
		envelope, err := e.receive(conn, name)
		if err != nil {
			return
		}
		if !e.submit(inbound{kind: observerControl, observer: o, envelope: envelope}) {
			return
		}
	}
}

func (e *Evaluator) serveDispatcher(conn *websocket.Conn, name string) {
	d := &dispatcher{name: name, conn: conn}
	if !e.submit(inbound{kind: dispatcherAttached, dispatcher: d}) {
		return
	}
	defer e.submit(inbound{kind: dispatcherDetached, dispatcher: d})

	for {
		envelope, err := e.receive(conn, name)
		if err != nil {
			return
		}
		if !e.submit(inbound{kind: dispatcherEvent, dispatcher: d, envelope: envelope}) {
			return
		}
		if envelope.Type == event.TypeEnsembleStopped {
			return
		}
	}
}

// receive reads and decodes one message. Any error ends the
// connection: a malformed message closes only the connection that
// sent it.
func (e *Evaluator) receive(conn *websocket.Conn, name string) (*event.Envelope, error) {
	var message []byte
	if err := websocket.Message.Receive(conn, &message); err != nil {
		if netutil.IsExpectedCloseError(err) {
			e.logger.Debug("connection closed", "connection", name)
		} else {
			e.logger.Warn("connection read failed", "connection", name, "error", err)
		}
		return nil, err
	}
	envelope, err := event.Decode(message)
	if err != nil {
		e.logger.Warn("closing connection after malformed message", "connection", name, "error", err)
		return nil, err
	}
	return envelope, nil
}

// writeLoop delivers an observer's outbox in order. After a failed
// write it closes the connection, which ends the observer's reader,
// and discards the rest until the loop closes the outbox.
func (e *Evaluator) writeLoop(o *observer) {
	defer close(o.writerDone)
	defer o.conn.Close()

	failed := false
	for data := range o.outbox {
		if failed {
			continue
		}
		// Socket deadlines are wall-clock regardless of the injected clock.
		o.conn.SetWriteDeadline(time.Now().Add(e.config.WriteTimeout)) //nolint:realclock socket deadline
		if err := websocket.Message.Send(o.conn, string(data)); err != nil {
			failed = true
			if !netutil.IsExpectedCloseError(err) {
				e.logger.Warn("observer write failed", "observer", o.name, "error", err)
			}
			o.conn.Close()
		}
	}
}
