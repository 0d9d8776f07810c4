// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"errors"

	"github.com/bureau-foundation/evaluator/lib/dispatch"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// handle applies one inbound message on the loop goroutine.
func (e *Evaluator) handle(message inbound) {
	switch message.kind {
	case observerAttached:
		e.observers[message.observer] = struct{}{}
		e.logger.Info("observer connected", "observer", message.observer.name, "observers", len(e.observers))
		if data, ok := e.outbound(event.TypeSnapshot, e.snapshot.Wire()); ok {
			e.send(message.observer, data)
		}

	case observerDetached:
		if _, registered := e.observers[message.observer]; registered {
			e.dropObserver(message.observer)
			e.logger.Info("observer disconnected", "observer", message.observer.name, "observers", len(e.observers))
		}

	case observerControl:
		e.route(e.controlRouter.Dispatch(message.observer, message.envelope), message.observer.name, message.envelope)

	case dispatcherAttached:
		e.dispatchers[message.dispatcher] = struct{}{}
		e.logger.Debug("dispatcher connected", "dispatcher", message.dispatcher.name, "dispatchers", len(e.dispatchers))

	case dispatcherDetached:
		delete(e.dispatchers, message.dispatcher)
		e.logger.Debug("dispatcher disconnected", "dispatcher", message.dispatcher.name, "dispatchers", len(e.dispatchers))

	case dispatcherEvent:
		e.route(e.dispatchRouter.Dispatch(message.dispatcher, message.envelope), message.dispatcher.name, message.envelope)
	}
}

// route logs the outcome of a dispatch. Neither an unroutable type nor
// a rejected event ends the connection.
func (e *Evaluator) route(err error, connection string, envelope *event.Envelope) {
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrUnroutable):
		e.logger.Debug("ignoring event with no handler",
			"connection", connection,
			"type", envelope.Type,
		)
	default:
		e.logger.Warn("event rejected",
			"connection", connection,
			"type", envelope.Type,
			"source", envelope.Source,
			"error", err,
		)
	}
}

func (e *Evaluator) handleForwardModel(_ *dispatcher, envelope *event.Envelope) error {
	return e.mergeEvent(envelope)
}

func (e *Evaluator) handleStarted(d *dispatcher, envelope *event.Envelope) error {
	e.logger.Info("ensemble started", "dispatcher", d.name)
	return e.mergeEvent(envelope)
}

func (e *Evaluator) handleStopped(d *dispatcher, envelope *event.Envelope) error {
	e.logger.Info("ensemble stopped", "dispatcher", d.name)
	return e.mergeEvent(envelope)
}

// handleCancelled ends the run: cancellation is terminal once the
// update has gone out.
func (e *Evaluator) handleCancelled(d *dispatcher, envelope *event.Envelope) error {
	e.logger.Info("ensemble cancelled", "dispatcher", d.name)
	err := e.mergeEvent(envelope)
	e.requestStop()
	return err
}

func (e *Evaluator) handleUserCancel(o *observer, _ *event.Envelope) error {
	if e.ensemble.IsCancellable() {
		e.logger.Info("cancelling ensemble", "observer", o.name)
		e.ensemble.Cancel()
		return nil
	}
	e.logger.Info("ensemble cannot be cancelled, stopping", "observer", o.name)
	e.requestStop()
	return nil
}

func (e *Evaluator) handleUserDone(o *observer, _ *event.Envelope) error {
	e.logger.Info("observer done", "observer", o.name)
	e.requestStop()
	return nil
}

// mergeEvent merges the delta an event implies and broadcasts it as a
// SNAPSHOT_UPDATE. A rejected delta changes nothing and sends nothing.
func (e *Evaluator) mergeEvent(envelope *event.Envelope) error {
	delta, err := snapshot.FromEvent(envelope)
	if err != nil {
		return err
	}
	if err := e.snapshot.Merge(delta); err != nil {
		return err
	}
	if data, ok := e.outbound(event.TypeSnapshotUpdate, delta.Wire()); ok {
		e.broadcast(data)
	}
	return nil
}

// outbound builds the next outbound message and consumes its index.
func (e *Evaluator) outbound(eventType event.Type, payload any) ([]byte, bool) {
	envelope, err := event.New(eventType, event.EvaluatorSource(e.id), e.eventIndex, payload)
	if err != nil {
		e.logger.Error("building outbound message", "type", eventType, "error", err)
		return nil, false
	}
	data, err := envelope.Encode()
	if err != nil {
		e.logger.Error("encoding outbound message", "type", eventType, "error", err)
		return nil, false
	}
	if e.config.Journal != nil {
		e.config.Journal.Record(e.eventIndex, eventType, data)
	}
	e.eventIndex++
	return data, true
}

// broadcast queues data for every observer.
func (e *Evaluator) broadcast(data []byte) {
	for observer := range e.observers {
		e.send(observer, data)
	}
}

// send queues data for one observer, disconnecting it if its outbox is
// full.
func (e *Evaluator) send(o *observer, data []byte) {
	select {
	case o.outbox <- data:
	default:
		e.logger.Warn("observer outbox full, disconnecting",
			"observer", o.name,
			"capacity", cap(o.outbox),
		)
		e.dropObserver(o)
	}
}

// dropObserver forgets an observer and closes its outbox. The writer
// delivers what is already queued, then closes the connection.
func (e *Evaluator) dropObserver(o *observer) {
	delete(e.observers, o)
	close(o.outbox)
}
