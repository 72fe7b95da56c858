// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the engine of a seamless-KVM link: the state
// machines that decide, frame by frame, which machine owns the input
// stream and what crosses the wire.
//
// A session has two fixed, asymmetric roles. The [Server] owns the
// physical keyboard and mouse: it captures input, runs edge detection
// through the [Focus] coordinator, and forwards events while Remote
// mode holds. The [Client] injects what it receives and never makes
// focus decisions of its own — an inbound ScreenSwitch frame is the
// only trigger. Both roles share the clipboard coordination
// ([ClipboardCoordinator]), the file transfer negotiation
// ([Transfers]), the heartbeat, and the dead-peer watchdog.
//
// Each live connection is served by exactly one goroutine selecting
// over its event sources: inbound frames, the capture channel, the
// clipboard change channel, the command channel, and the heartbeat and
// watchdog tickers. Protocol state is only ever touched from that
// goroutine. The OS hook thread is a separate execution domain with
// hard real-time limits; it reaches the loop only through the bounded
// non-blocking capture channel and reads focus state only through
// atomics and try-locks.
//
// On every termination path — user disconnect, watchdog expiry,
// transport failure, context cancellation — the loop forces focus back
// to Local, clears the button latch, and emits a final state [Event]
// before exiting. A dead connection must never leave a machine
// swallowing its own input.
package session
