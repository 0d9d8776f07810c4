// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/evaluator/lib/ensemble"
	"github.com/bureau-foundation/evaluator/lib/monitor"
	"github.com/bureau-foundation/evaluator/lib/netutil"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// Run starts the server, starts the ensemble's workers against it, and
// returns a monitor connected to the server's observer endpoint.
// Cancelling ctx stops the evaluator as Stop does, without waiting.
func (e *Evaluator) Run(ctx context.Context) (*monitor.Monitor, error) {
	e.mu.Lock()
	if e.state != stateIdle {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	select {
	case <-e.stopRequested:
		e.state = stateStopped
		close(e.done)
		e.mu.Unlock()
		return nil, ErrStopped
	default:
	}

	listener, err := netutil.Listen(e.config.Host, e.config.Port)
	if err != nil {
		e.state = stateStopped
		close(e.done)
		e.mu.Unlock()
		return nil, err
	}
	e.endpoint = ensemble.Endpoint{Host: e.config.Host, Port: netutil.Port(listener)}
	e.httpServer = &http.Server{
		Handler: websocket.Server{
			// Workers and observers are not browsers; any origin is
			// accepted.
			Handshake: func(*websocket.Config, *http.Request) error { return nil },
			Handler:   e.serveConnection,
		},
		ReadHeaderTimeout: 10 * time.Second,
	}
	e.state = stateRunning
	endpoint := e.endpoint
	e.mu.Unlock()

	e.logger.Info("evaluator listening",
		"address", endpoint.Address(),
		"realizations", len(e.snapshot.RealizationIDs()),
	)

	go e.serve(listener)
	go e.loop(ctx)

	if err := e.ensemble.Evaluate(ctx, endpoint, e.id); err != nil {
		e.Stop()
		return nil, fmt.Errorf("starting ensemble: %w", err)
	}
	return monitor.New(endpoint.Host, endpoint.Port), nil
}

// Stop asks the evaluator to stop and waits until it has sent
// TERMINATED and closed every connection. It is safe to call from any
// goroutine, any number of times. Before Run it only marks the
// evaluator stopped.
func (e *Evaluator) Stop() {
	e.requestStop()

	e.mu.Lock()
	running := e.state == stateRunning
	e.mu.Unlock()
	if running {
		<-e.done
	}
}

// requestStop signals the loop without waiting. Handlers running on
// the loop use it; Stop would deadlock there.
func (e *Evaluator) requestStop() {
	e.stopOnce.Do(func() { close(e.stopRequested) })
}

func (e *Evaluator) serve(listener net.Listener) {
	if err := e.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.logger.Error("evaluator server failed", "error", err)
		e.requestStop()
	}
}

// loop owns the evaluator state until it returns.
func (e *Evaluator) loop(ctx context.Context) {
	defer close(e.done)

	stopRequested := e.stopRequested
	contextDone := ctx.Done()
	var drainExpired <-chan time.Time

	for {
		select {
		case message := <-e.inbound:
			e.handle(message)

		case query := <-e.queries:
			query()

		case <-stopRequested:
			stopRequested, contextDone = nil, nil
			drainExpired = e.beginStopping("stop requested")

		case <-contextDone:
			e.requestStop()
			stopRequested, contextDone = nil, nil
			drainExpired = e.beginStopping("context cancelled")

		case <-drainExpired:
			e.logger.Warn("dispatchers still connected after drain timeout",
				"dispatchers", len(e.dispatchers),
				"timeout", e.config.DrainTimeout,
			)
			e.terminate()
			return
		}

		if e.stopping && len(e.dispatchers) == 0 {
			e.terminate()
			return
		}
	}
}

// beginStopping enters the drain phase and returns the channel that
// fires when it expires, or nil when there is nothing to drain.
func (e *Evaluator) beginStopping(reason string) <-chan time.Time {
	e.stopping = true
	e.logger.Info("evaluator stopping",
		"reason", reason,
		"dispatchers", len(e.dispatchers),
		"observers", len(e.observers),
	)
	if len(e.dispatchers) == 0 {
		return nil
	}
	return e.clock.After(e.config.DrainTimeout)
}

// terminate sends TERMINATED, closes every connection and waits for
// every handler to return. Nothing reaches an observer after
// TERMINATED: the gate closes first, so no further event can be
// merged.
func (e *Evaluator) terminate() {
	e.closeGate()

	if data, ok := e.outbound(event.TypeTerminated, nil); ok {
		e.broadcast(data)
	}
	for observer := range e.observers {
		e.dropObserver(observer)
	}

	e.mu.Lock()
	server := e.httpServer
	e.mu.Unlock()
	if err := server.Close(); err != nil {
		e.logger.Debug("closing listener", "error", err)
	}

	for dispatcher := range e.dispatchers {
		dispatcher.conn.Close()
	}
	e.handlers.Wait()

	e.logger.Info("evaluator terminated",
		"events_sent", e.eventIndex-1,
		"successful_realizations", e.snapshot.SuccessfulRealizationCount(),
	)
}

// closeGate stops admitting handler messages. Handlers blocked on a
// full queue hold the gate's read lock, so the queue is drained
// concurrently while the write lock is acquired, and once more after.
func (e *Evaluator) closeGate() {
	stopDraining := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case message := <-e.inbound:
				e.discard(message)
			case <-stopDraining:
				return
			}
		}
	}()

	e.gate.Lock()
	e.gateClosed = true
	e.gate.Unlock()

	close(stopDraining)
	<-drained
	for {
		select {
		case message := <-e.inbound:
			e.discard(message)
		default:
			return
		}
	}
}

// discard releases what an unprocessed message holds. It touches only
// the message's own connection, never loop state.
func (e *Evaluator) discard(message inbound) {
	switch message.kind {
	case observerAttached:
		close(message.observer.outbox)
	case dispatcherAttached:
		message.dispatcher.conn.Close()
	case dispatcherEvent:
		e.logger.Debug("dropping event received during shutdown",
			"dispatcher", message.dispatcher.name,
			"type", message.envelope.Type,
		)
	}
}
