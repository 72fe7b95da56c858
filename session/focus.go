// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgehop/edgehop/input"
	"github.com/edgehop/edgehop/lib/clock"
	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/wire"
)

// FocusMode says who owns the input stream: Local delivers captured
// events to this machine's OS, Remote redirects them to the peer.
type FocusMode int32

const (
	// ModeLocal: input is consumed locally.
	ModeLocal FocusMode = iota
	// ModeRemote: input is swallowed locally and forwarded.
	ModeRemote
)

// String returns the mode name for logging.
func (m FocusMode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// Focus owns the hand-off state on the capture side: the mode flag,
// the virtual cursor, the button latch, and the landing cooldown.
//
// Two execution domains touch it. The session loop calls the Observe*
// methods and holds the mutex normally. The OS hook thread calls
// [Focus.Mode] (atomic) and [Focus.AllowLocalDelivery] (try-lock) on
// every event; those paths never block — on lock contention a
// continuous signal is examined next time and a discrete signal passes
// through unexamined, because a click that is swallowed by accident
// will not repeat.
type Focus struct {
	entryThreshold  float64
	returnThreshold float64
	landingCooldown time.Duration
	failsafeKey     uint32
	cursorSpeed     float64

	source input.Source
	clk    clock.Clock
	logger *slog.Logger

	mode atomic.Int32

	mu sync.Mutex
	// virtualX, virtualY track the cursor while the OS cursor is
	// frozen in Remote mode, in an extended local-normalized space:
	// the remote screen occupies x in [1,2], adjacent beyond the
	// shared edge. Anchored to x=1.0 on entry; never reported to the
	// OS.
	virtualX float64
	virtualY float64
	// pressed is the bitmask of physical buttons currently down.
	pressed uint32
	// latch is the bitmask of buttons that were down when Remote mode
	// was entered. Each must observe a release before local button
	// input is delivered again; otherwise a drag started toward the
	// edge lands as a ghost click on the local desktop.
	latch uint32
	// cooldownUntil is the landing-cooldown deadline after a return
	// to Local: clicks and keys are swallowed until it passes,
	// movement is not.
	cooldownUntil time.Time
}

// NewFocus creates the focus coordinator for the capture side.
func NewFocus(cfg config.FocusConfig, cursorSpeed float64, source input.Source, clk clock.Clock, logger *slog.Logger) *Focus {
	if cursorSpeed <= 0 {
		cursorSpeed = 1.0
	}
	return &Focus{
		entryThreshold:  cfg.EntryThreshold,
		returnThreshold: cfg.ReturnThreshold,
		landingCooldown: cfg.LandingCooldown.Std(),
		failsafeKey:     cfg.FailsafeKey,
		cursorSpeed:     cursorSpeed,
		source:          source,
		clk:             clk,
		logger:          logger,
	}
}

// Mode returns the current focus mode. Safe from any goroutine.
func (f *Focus) Mode() FocusMode {
	return FocusMode(f.mode.Load())
}

// ObserveLocalMove runs edge detection on a captured mouse move while
// in Local mode. Entry is inclusive (x >= threshold): an exact 0.99
// must switch, otherwise the hand-off flaps on off-by-epsilon
// positions at the boundary. Returns true when Remote mode was entered;
// the caller emits the ScreenSwitch frame.
func (f *Focus) ObserveLocalMove(x, y float64) bool {
	if f.Mode() != ModeLocal || x < f.entryThreshold {
		return false
	}

	f.mu.Lock()
	// The OS cursor freezes at the warp point, so the return decision
	// is carried by the virtual cursor, anchored to the edge that was
	// crossed. Entry and return therefore never evaluate the same
	// coordinate: that gap is the hysteresis band.
	f.virtualX = 1.0
	f.virtualY = y
	f.latch = f.pressed
	f.mu.Unlock()

	if err := f.source.WarpCursor(); err != nil {
		f.logger.Warn("cursor warp failed on remote entry", "error", err)
	}
	f.source.SetRemote(true)
	f.mode.Store(int32(ModeRemote))
	f.logger.Info("focus hand-off", "mode", ModeRemote, "entry_x", x)
	return true
}

// ObserveButton tracks the physical button state from the session loop.
// A release always clears the latch bit for that button, whether it
// arrives while Remote (forwarded to the peer) or after the return.
func (f *Focus) ObserveButton(button wire.MouseButton, buttonPressed bool) {
	bit := buttonBit(button)
	f.mu.Lock()
	defer f.mu.Unlock()
	if buttonPressed {
		f.pressed |= bit
	} else {
		f.pressed &^= bit
		f.latch &^= bit
	}
}

// AccumulateRemote applies a raw movement delta to the virtual cursor
// while in Remote mode and evaluates the return threshold. It reports
// the peer-space position to forward (the overshoot beyond the shared
// edge, normalized to the remote screen) and whether the move crossed
// back to Local; on a return the caller emits the ScreenSwitch frame
// instead of forwarding the move.
func (f *Focus) AccumulateRemote(dx, dy float64) (x, y float64, returned bool) {
	f.mu.Lock()
	f.virtualX = clamp(f.virtualX+dx*f.cursorSpeed, 0, 2)
	f.virtualY = clamp01(f.virtualY + dy*f.cursorSpeed)
	x = clamp01(f.virtualX - 1.0)
	y = f.virtualY
	returned = f.virtualX < f.returnThreshold
	f.mu.Unlock()

	if returned {
		f.returnLocal()
	}
	return x, y, returned
}

// ObserveKey checks a captured key event against the fail-safe hotkey.
// Returns true when it forced a return to Local; the caller emits the
// ScreenSwitch frame and swallows the key.
func (f *Focus) ObserveKey(code uint32, keyPressed bool) bool {
	if !keyPressed || code != f.failsafeKey || f.Mode() != ModeRemote {
		return false
	}
	f.returnLocal()
	f.logger.Info("fail-safe key forced local focus")
	return true
}

// returnLocal is the ordinary Remote -> Local transition: movement is
// deliverable immediately so the user can reposition the cursor, but
// clicks and keys stay swallowed for the landing cooldown so an
// in-flight remote gesture does not register as a local click.
func (f *Focus) returnLocal() {
	f.mu.Lock()
	f.cooldownUntil = f.clk.Now().Add(f.landingCooldown)
	f.mu.Unlock()

	f.mode.Store(int32(ModeLocal))
	f.source.SetRemote(false)
	f.logger.Info("focus hand-off", "mode", ModeLocal)
}

// ForceLocal is the termination reset: Local mode, empty latch, no
// cooldown. It runs on every session teardown regardless of cause — a
// dead connection must never leave this machine swallowing its own
// input.
func (f *Focus) ForceLocal() {
	f.mu.Lock()
	f.latch = 0
	f.pressed = 0
	f.cooldownUntil = time.Time{}
	f.mu.Unlock()

	f.mode.Store(int32(ModeLocal))
	f.source.SetRemote(false)
}

// Latched reports whether any button latch bits are still armed.
func (f *Focus) Latched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latch != 0
}

// AllowLocalDelivery is the hook-thread filter: it decides, per event,
// whether the capture backend delivers the event to the local OS. It
// must return within microseconds, so it never blocks on the mutex.
func (f *Focus) AllowLocalDelivery(event wire.InputEvent) bool {
	if f.Mode() == ModeRemote {
		return false
	}
	if event.Kind == wire.KindMouseMove || event.Kind == wire.KindScroll {
		return true
	}

	// Discrete events (clicks, keys) pass through unexamined on
	// contention rather than risk losing an event that will not
	// repeat.
	if !f.mu.TryLock() {
		return true
	}
	defer f.mu.Unlock()

	if f.clk.Now().Before(f.cooldownUntil) {
		return false
	}
	if event.Kind == wire.KindMouseButton {
		bit := buttonBit(event.Button)
		if f.latch&bit != 0 {
			if !event.Pressed {
				// The awaited release. Disarm the latch but swallow
				// the event itself: its press went to the peer.
				f.latch &^= bit
			}
			return false
		}
	}
	return true
}

func buttonBit(button wire.MouseButton) uint32 {
	return 1 << uint32(button)
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
