// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ensemble

import (
	"context"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/bureau-foundation/evaluator/lib/clock"
	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/testutil"
)

func TestReporterStampsEnvelopes(t *testing.T) {
	received := make(chan *event.Envelope, 8)
	paths := make(chan string, 1)
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		paths <- conn.Request().URL.Path
		for {
			var message []byte
			if err := websocket.Message.Receive(conn, &message); err != nil {
				close(received)
				return
			}
			envelope, err := event.Decode(message)
			if err != nil {
				close(received)
				return
			}
			received <- envelope
		}
	}))
	defer server.Close()

	host, portText, _ := net.SplitHostPort(server.Listener.Addr().String())
	port, _ := strconv.Atoi(portText)
	endpoint := Endpoint{Host: host, Port: port}

	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	fake := clock.Fake(now)
	reporter, err := Dial(context.Background(), endpoint, "ee-7", fake)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if path := testutil.RequireReceive(t, paths, 5*time.Second, "no connection"); path != "/dispatch" {
		t.Errorf("path = %q, want /dispatch", path)
	}

	job := event.Path{Realization: "3", Stage: "0", Step: "0", Job: "1"}
	if err := reporter.Report(event.TypeJobRunning, job, map[string]any{"current_memory_usage": 1024}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := reporter.Report(event.TypeEnsembleStarted, event.Path{}, nil); err != nil {
		t.Fatalf("Report: %v", err)
	}

	first := testutil.RequireReceive(t, received, 5*time.Second, "first envelope")
	if first.Type != event.TypeJobRunning {
		t.Errorf("type = %s", first.Type)
	}
	if first.Source != "/ert/ee/ee-7/real/3/stage/0/step/0/job/1" {
		t.Errorf("source = %q", first.Source)
	}
	if first.Time == nil || !first.Time.Equal(now) {
		t.Errorf("time = %v, want %v", first.Time, now)
	}

	second := testutil.RequireReceive(t, received, 5*time.Second, "second envelope")
	if second.Source != "/ert/ee/ee-7" {
		t.Errorf("ensemble source = %q", second.Source)
	}
	if first.ID == second.ID {
		t.Errorf("ids repeat: %v", first.ID)
	}

	if err := reporter.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, ok := <-received; ok {
		t.Error("received an envelope after Close")
	}
}

func TestEndpointURLs(t *testing.T) {
	endpoint := Endpoint{Host: "10.0.0.5", Port: 51820}
	if got := endpoint.DispatchURL(); got != "ws://10.0.0.5:51820/dispatch" {
		t.Errorf("DispatchURL = %q", got)
	}
	if got := endpoint.ClientURL(); got != "ws://10.0.0.5:51820/client" {
		t.Errorf("ClientURL = %q", got)
	}
}
