// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"sync/atomic"

	"github.com/edgehop/edgehop/wire"
)

// Capture is the bounded channel between the OS hook thread and the
// session loop. The hook side offers events without ever blocking; the
// session loop drains them at its own pace. On overflow the event is
// silently dropped — that is the designed backpressure policy, not a
// fault, and it is never surfaced as an error. A dropped MouseMove is
// repaired by the next one; the alternative (blocking the hook thread)
// loses clicks and freezes the cursor for every application on the
// machine.
type Capture struct {
	events  chan wire.InputEvent
	dropped atomic.Uint64
}

// NewCapture creates a capture channel with the given buffer size.
func NewCapture(size int) *Capture {
	return &Capture{events: make(chan wire.InputEvent, size)}
}

// Offer attempts a non-blocking send from the hook thread. Returns
// false when the buffer is full and the event was dropped.
func (c *Capture) Offer(event wire.InputEvent) bool {
	select {
	case c.events <- event:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Events is the session loop's receive side. Ordering is preserved:
// single producer (the hook thread), single consumer (the loop).
func (c *Capture) Events() <-chan wire.InputEvent {
	return c.events
}

// Dropped returns how many events overflowed. Diagnostic only.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}
