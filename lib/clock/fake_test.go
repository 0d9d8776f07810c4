// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"

	"github.com/bureau-foundation/evaluator/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	fake := Fake(epoch)
	if !fake.Now().Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", fake.Now(), epoch)
	}
	fake.Advance(3 * time.Second)
	if want := epoch.Add(3 * time.Second); !fake.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", fake.Now(), want)
	}
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(10 * time.Second)

	fake.Advance(9 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	fired := testutil.RequireReceive(t, channel, time.Second, "After at deadline")
	if want := epoch.Add(10 * time.Second); !fired.Equal(want) {
		t.Errorf("fired at %v, want %v", fired, want)
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after firing, want 0", fake.PendingCount())
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(epoch)
	testutil.RequireReceive(t, fake.After(0), time.Second, "After(0)")
}

func TestFakeAfterFuncOrder(t *testing.T) {
	fake := Fake(epoch)
	var order []string
	fake.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	fake.AfterFunc(time.Second, func() { order = append(order, "first") })
	fake.AfterFunc(2*time.Second, func() { order = append(order, "third") })

	fake.Advance(5 * time.Second)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	fake := Fake(epoch)
	called := false
	timer := fake.AfterFunc(time.Second, func() { called = true })

	if !timer.Stop() {
		t.Error("Stop() on a pending timer = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	fake.Advance(time.Minute)
	if called {
		t.Error("stopped AfterFunc ran")
	}
}

func TestFakeCallbackRegistersDueTimer(t *testing.T) {
	fake := Fake(epoch)
	var channel <-chan time.Time
	var calledAt time.Time
	fake.AfterFunc(time.Second, func() {
		calledAt = fake.Now()
		channel = fake.After(time.Second)
	})

	fake.Advance(5 * time.Second)

	if channel == nil {
		t.Fatal("callback did not run")
	}
	if want := epoch.Add(time.Second); !calledAt.Equal(want) {
		t.Errorf("Now() inside callback = %v, want %v", calledAt, want)
	}
	fired := testutil.RequireReceive(t, channel, time.Second, "timer registered by callback")
	if want := epoch.Add(2 * time.Second); !fired.Equal(want) {
		t.Errorf("fired at %v, want %v", fired, want)
	}
	if want := epoch.Add(5 * time.Second); !fake.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", fake.Now(), want)
	}
}

func TestFakeCallbackTimerBeyondAdvance(t *testing.T) {
	fake := Fake(epoch)
	var channel <-chan time.Time
	fake.AfterFunc(4*time.Second, func() { channel = fake.After(2 * time.Second) })

	fake.Advance(5 * time.Second)
	select {
	case <-channel:
		t.Fatal("timer due at 6s fired during a 5s advance")
	default:
	}

	fake.Advance(time.Second)
	testutil.RequireReceive(t, channel, time.Second, "timer at its deadline")
}

func TestFakeSleepWithWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	woke := make(chan struct{})
	go func() {
		fake.Sleep(5 * time.Second)
		close(woke)
	}()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	testutil.RequireClosed(t, woke, time.Second, "sleeper after Advance")
}

func TestRealAfterFuncStop(t *testing.T) {
	timer := Real().AfterFunc(time.Hour, func() {})
	if !timer.Stop() {
		t.Error("Stop() on a pending real timer = false, want true")
	}
}
