// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes inbound events to handlers by event type.
//
// A [Router] is filled once at construction, one handler per type or
// group of types, and never changes afterwards. Routing an event whose
// type has no handler is an error the caller logs and drops; the event
// is not lost silently.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// ErrUnroutable is returned by [Router.Dispatch] for an event type
// with no registered handler.
var ErrUnroutable = errors.New("no handler for event type")

// Handler processes one event. The router passes the envelope through
// unchanged; the origin value T carries whatever the handler needs
// besides the event (typically the connection it arrived on).
type Handler[T any] func(origin T, envelope *event.Envelope) error

// Router maps event types to handlers.
type Router[T any] struct {
	handlers map[event.Type]Handler[T]
}

// New returns an empty router.
func New[T any]() *Router[T] {
	return &Router[T]{handlers: make(map[event.Type]Handler[T])}
}

// Register binds handler to each of the given types. Binding a type
// twice is a programming error and panics.
func (r *Router[T]) Register(handler Handler[T], types ...event.Type) *Router[T] {
	for _, eventType := range types {
		if _, exists := r.handlers[eventType]; exists {
			panic(fmt.Sprintf("dispatch: duplicate handler for %s", eventType))
		}
		r.handlers[eventType] = handler
	}
	return r
}

// RegisterGroup binds handler to every type in group.
func (r *Router[T]) RegisterGroup(handler Handler[T], group event.Group) *Router[T] {
	return r.Register(handler, group...)
}

// Handles reports whether eventType has a handler.
func (r *Router[T]) Handles(eventType event.Type) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Dispatch calls the handler bound to the envelope's type and returns
// its error. Each event reaches exactly one handler.
func (r *Router[T]) Dispatch(origin T, envelope *event.Envelope) error {
	handler, ok := r.handlers[envelope.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnroutable, envelope.Type)
	}
	return handler(origin, envelope)
}
