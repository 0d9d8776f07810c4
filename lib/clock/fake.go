// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock set to initial. Time stands still until
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a Clock whose time moves only when the test says so.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance or Sleep on the same clock.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*fakeTimer
	changed *sync.Cond

	// registered orders timers that share a deadline.
	registered int
}

// fakeTimer is one registered After, AfterFunc or Sleep. Exactly one
// of channel and callback is set.
type fakeTimer struct {
	deadline time.Time
	sequence int
	channel  chan time.Time
	callback func()
	done     bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a timer that fires when the clock reaches now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.registerLocked(&fakeTimer{deadline: c.current.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f to run inside the Advance call that reaches
// now+d. If d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{deadline: c.current.Add(d), callback: f}
	c.registerLocked(timer)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		c.pending = slices.DeleteFunc(c.pending, func(pending *fakeTimer) bool { return pending == timer })
		return true
	}}
}

// Sleep blocks until the clock has been advanced by at least d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

func (c *FakeClock) registerLocked(timer *fakeTimer) {
	c.registered++
	timer.sequence = c.registered
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

// Advance moves the clock forward by d, firing every timer whose
// deadline falls within the step, earliest first. Before a timer fires
// the clock is set to its deadline, so a timer registered by a callback
// is measured from the moment its parent fired and fires in the same
// call if it is still due. The clock ends at the original now+d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		timer, now := c.popDue(target)
		if timer == nil {
			break
		}
		if timer.callback != nil {
			timer.callback()
		} else {
			timer.channel <- now
		}
	}

	c.mu.Lock()
	if target.After(c.current) {
		c.current = target
	}
	c.mu.Unlock()
}

// popDue removes the earliest timer due by target, moves the clock to
// its deadline, and returns it. It returns nil when none is due.
func (c *FakeClock) popDue(target time.Time) (*fakeTimer, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := -1
	for i, timer := range c.pending {
		if timer.deadline.After(target) {
			continue
		}
		if index < 0 || earlier(timer, c.pending[index]) {
			index = i
		}
	}
	if index < 0 {
		return nil, c.current
	}
	timer := c.pending[index]
	timer.done = true
	c.pending = slices.Delete(c.pending, index, index+1)
	if timer.deadline.After(c.current) {
		c.current = timer.deadline
	}
	c.changed.Broadcast()
	return timer, c.current
}

func earlier(a, b *fakeTimer) bool {
	if !a.deadline.Equal(b.deadline) {
		return a.deadline.Before(b.deadline)
	}
	return a.sequence < b.sequence
}

// WaitForTimers blocks until at least n timers are pending. Call it
// before Advance when another goroutine is about to register a timer,
// so the advance cannot race the registration.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of registered timers that have not
// fired or been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
