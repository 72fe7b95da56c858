// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import "github.com/edgehop/edgehop/wire"

// Source is the platform input-capture boundary. Implementations
// install OS hooks and invoke the capture callback for every local
// input event, with mouse coordinates pre-normalized to [0,1] over the
// union bounding box of all displays. A backend that can only
// normalize against the main display does not satisfy this contract.
//
// The callback fires on an OS-owned hook thread with hard real-time
// expectations: it must return within microseconds or the OS starts
// dropping input. Callbacks must therefore never block — see Capture
// for the channel discipline.
type Source interface {
	// StartCapture installs the hooks and begins delivering events to
	// callback. The callback runs on the hook thread.
	StartCapture(callback func(wire.InputEvent)) error

	// SetRemote tells the backend whether to swallow local events
	// (remote focus: events go to the peer, not the local OS) or pass
	// them through. Called only by the session loop on focus
	// transitions. While remote, the OS cursor is frozen, so the
	// backend reports MouseMove events as raw normalized deltas in
	// DX/DY instead of absolute positions; the session's virtual
	// cursor integrates them.
	SetRemote(remote bool)

	// WarpCursor re-centers and freezes the visible OS cursor. Called
	// when Remote mode is entered so the local cursor does not drift
	// while input is redirected.
	WarpCursor() error

	// Close uninstalls the hooks.
	Close() error
}

// Sink is the platform input-injection boundary. The client role
// injects remote input through it.
type Sink interface {
	// Inject synthesizes one input event on the local OS.
	Inject(event wire.InputEvent) error

	// SetRemote mirrors the source-side flag on the injection side: an
	// inbound ScreenSwitch frame is the only trigger that starts or
	// stops injection, never the injecting side's own edge detection.
	SetRemote(remote bool)

	// Close releases injection resources.
	Close() error
}
