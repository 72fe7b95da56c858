// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// The session engine is full of time-driven behavior — the 5s heartbeat
// cadence, the 15s dead-peer watchdog, the 300ms landing cooldown, the
// constant reconnect backoff — and all of it must be testable without
// wall-clock sleeps. Production code accepts a [Clock] parameter instead
// of calling time.Now, time.After, or time.NewTicker directly. In
// production, [Real] provides standard library behavior. In tests,
// [Fake] provides a deterministic clock that advances only when Advance
// is called.
//
// # Wiring pattern
//
// Add a Clock field to structs that use time:
//
//	type Server struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := NewServer(..., c)
//	go server.Run(ctx)
//	c.WaitForTimers(2)          // heartbeat + watchdog tickers registered
//	c.Advance(16 * time.Second) // fire the watchdog deterministically
//
// WaitForTimers removes the race between a goroutine registering its
// timers and the test advancing the clock.
package clock
