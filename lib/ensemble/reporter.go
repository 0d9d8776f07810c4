// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ensemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
)

// websocketOrigin is the Origin header sent on every dial. The
// evaluator does not check it, but the handshake requires one.
const websocketOrigin = "http://localhost/"

// Reporter is one worker's dispatch connection. It stamps envelopes
// with the evaluator's source prefix, a per-connection id and the
// current time, and sends them in order.
//
// A Reporter is safe for concurrent use; sends are serialized.
type Reporter struct {
	evaluatorID string
	clock       clock.Clock

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// Dial opens a dispatch connection to the evaluator at endpoint.
func Dial(ctx context.Context, endpoint Endpoint, evaluatorID string, clk clock.Clock) (*Reporter, error) {
	config, err := websocket.NewConfig(endpoint.DispatchURL(), websocketOrigin)
	if err != nil {
		return nil, fmt.Errorf("dispatch config: %w", err)
	}
	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint.DispatchURL(), err)
	}
	return &Reporter{evaluatorID: evaluatorID, clock: clk, conn: conn, nextID: 1}, nil
}

// Report sends one event about the node at path. An empty path
// addresses the ensemble as a whole. payload may be nil.
func (r *Reporter) Report(eventType event.Type, path event.Path, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	envelope, err := event.New(eventType, path.Source(r.evaluatorID), r.nextID, payload)
	if err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	envelope.Time = &now
	r.nextID++
	return r.sendLocked(envelope)
}

// Send delivers a prepared envelope unchanged.
func (r *Reporter) Send(envelope *event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendLocked(envelope)
}

func (r *Reporter) sendLocked(envelope *event.Envelope) error {
	data, err := envelope.Encode()
	if err != nil {
		return err
	}
	// Socket deadlines are wall-clock regardless of the injected clock.
	r.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)) //nolint:realclock socket deadline
	if err := websocket.Message.Send(r.conn, string(data)); err != nil {
		return fmt.Errorf("sending %s: %w", envelope.Type, err)
	}
	return nil
}

// Close closes the connection. The evaluator treats the close as the
// worker detaching.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}
