// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that waits takes a [Clock]: [Real] in production, [Fake] in
// tests. With a fake clock a test decides exactly when the drain
// window closes or a simulated job finishes:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go evaluator.Run(ctx)        // registers the drain timer on stop
//	fake.WaitForTimers(1)        // wait for the registration
//	fake.Advance(10 * time.Second)
package clock
