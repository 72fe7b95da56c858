// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgehop/edgehop/clipboard"
	"github.com/edgehop/edgehop/input"
	"github.com/edgehop/edgehop/lib/clock"
	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/transport"
	"github.com/edgehop/edgehop/wire"
)

// Acceptor yields inbound connections. transport.Listener satisfies
// it; tests substitute an in-memory implementation.
type Acceptor interface {
	Accept(ctx context.Context) (transport.Conn, error)
}

// Server is the input-source role: it owns the physical keyboard and
// mouse, runs edge detection, and forwards input to whichever client
// holds focus. States cycle Waiting -> Connecting -> Connected ->
// Waiting; the server never dials.
type Server struct {
	cfg      *config.Config
	clk      clock.Clock
	logger   *slog.Logger
	acceptor Acceptor
	source   input.Source
	provider clipboard.Provider

	capture  *input.Capture
	focus    *Focus
	clip     *ClipboardCoordinator
	events   chan Event
	commands chan Command
}

// NewServer assembles the server role around its collaborators. The
// caller owns the source, provider, and acceptor lifetimes.
func NewServer(cfg *config.Config, acceptor Acceptor, source input.Source, provider clipboard.Provider, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		clk:      clk,
		logger:   logger,
		acceptor: acceptor,
		source:   source,
		provider: provider,
		capture:  input.NewCapture(256),
		focus:    NewFocus(cfg.Focus, cfg.Input.CursorSpeed, source, clk, logger),
		clip:     NewClipboardCoordinator(provider, cfg.Clipboard, logger),
		events:   make(chan Event, eventBuffer),
		commands: make(chan Command, 16),
	}
}

// Events is the front-end notification stream.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Commands is the front-end command channel.
func (s *Server) Commands() chan<- Command {
	return s.commands
}

// Focus exposes the coordinator for the platform capture backend,
// which consults [Focus.AllowLocalDelivery] on the hook thread.
func (s *Server) Focus() *Focus {
	return s.focus
}

// Run accepts and serves connections until the context is canceled.
// Each connection gets the full termination sequence regardless of how
// it ends: focus forced Local, connection closed, a final state event
// emitted.
func (s *Server) Run(ctx context.Context) error {
	err := s.source.StartCapture(func(event wire.InputEvent) {
		// Hook thread. Non-blocking; overflow drops are the designed
		// backpressure, never surfaced as errors.
		s.capture.Offer(event)
	})
	if err != nil {
		return fmt.Errorf("starting input capture: %w", err)
	}

	for {
		s.emit(StateEvent{State: StateWaiting})

		conn, err := s.acceptor.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		s.emit(StateEvent{State: StateConnecting})
		s.logger.Info("client connected", "peer", conn.PeerName())

		err = s.serveConn(ctx, conn)

		// Termination sequence. Runs on every exit path: a dead
		// connection must never leave this machine swallowing its own
		// input or showing a stale connected state.
		s.focus.ForceLocal()
		conn.Close()

		switch {
		case errors.Is(err, errUserDisconnect):
			s.logger.Info("session closed by user")
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			s.emit(StateEvent{State: StateWaiting})
			return ctx.Err()
		case err != nil:
			s.logger.Warn("session ended", "error", err)
			s.emit(ErrorEvent{Err: err})
		}
	}
}

// serveConn runs the session loop for one connection: a single
// goroutine multiplexing the network, the capture channel, the
// clipboard, the command channel, and the two timers. Exactly one
// source fires per iteration.
func (s *Server) serveConn(ctx context.Context, conn transport.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan wire.Frame)
	readErrs := make(chan error, 1)
	go readFrames(conn.Control(), frames, readErrs, connCtx.Done(), s.logger)

	peer := newPeerSession(s.cfg, s.clk, s.logger, s.emit, conn, s.clip)
	if _, err := peer.exchangeHandshake(connCtx, frames, readErrs); err != nil {
		return err
	}
	s.emit(StateEvent{State: StateConnected})

	// Capture runs for the whole of Run, so the buffer holds whatever
	// was typed or moved while no client was connected. Replaying that
	// here could hand focus off before the user touches anything;
	// discard it.
drainStale:
	for {
		select {
		case <-s.capture.Events():
		default:
			break drainStale
		}
	}

	go peer.transfers.RunReceiver(connCtx)

	heartbeat := s.clk.NewTicker(s.cfg.Heartbeat.Interval.Std())
	defer heartbeat.Stop()
	watchdog := s.clk.NewTicker(watchdogCheckInterval)
	defer watchdog.Stop()
	lastInbound := s.clk.Now()

	for {
		select {
		case frame := <-frames:
			// Any inbound traffic counts as liveness, not just
			// heartbeats: under heavy load a heartbeat can queue
			// behind data frames on the same ordered stream.
			lastInbound = s.clk.Now()
			handled, err := peer.handleCommon(connCtx, frame)
			if err != nil {
				return err
			}
			if !handled {
				// The client role never sends input; the roles are
				// fixed per session.
				s.logger.Warn("ignoring unexpected frame", "type", frame.Type)
			}

		case err := <-readErrs:
			return &ConnectionError{Err: err}

		case event := <-s.capture.Events():
			frame, ok := s.routeCapture(event)
			if !ok {
				continue
			}
			if err := peer.send(frame); err != nil {
				return err
			}

		case <-s.provider.Changes():
			if err := peer.sendClipboardChange(); err != nil {
				return err
			}

		case command := <-s.commands:
			switch command := command.(type) {
			case DisconnectCommand:
				return errUserDisconnect
			case SendFileCommand:
				if err := peer.handleSendFile(command.Path); err != nil {
					return err
				}
			default:
				s.logger.Warn("command not applicable to server role", "command", fmt.Sprintf("%T", command))
			}

		case <-heartbeat.C:
			if err := peer.send(wire.HeartbeatFrame()); err != nil {
				return err
			}

		case <-watchdog.C:
			if s.clk.Now().Sub(lastInbound) > s.cfg.Heartbeat.Timeout.Std() {
				return ErrWatchdogTimeout
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// routeCapture turns one captured local event into at most one
// outbound frame, consulting the focus coordinator. In Local mode only
// edge detection consumes events (the OS already delivered them); in
// Remote mode everything is forwarded.
func (s *Server) routeCapture(event wire.InputEvent) (wire.Frame, bool) {
	switch event.Kind {
	case wire.KindMouseMove:
		if s.focus.Mode() == ModeLocal {
			if s.focus.ObserveLocalMove(event.X, event.Y) {
				s.emit(FocusEvent{Target: wire.SideRemote})
				return wire.InputFrame(wire.ScreenSwitch(wire.SideRemote)), true
			}
			return wire.Frame{}, false
		}
		// Remote: the OS cursor is frozen, so moves arrive as raw
		// deltas and the virtual cursor carries the position.
		x, y, returned := s.focus.AccumulateRemote(event.DX, event.DY)
		if returned {
			s.emit(FocusEvent{Target: wire.SideLocal})
			return wire.InputFrame(wire.ScreenSwitch(wire.SideLocal)), true
		}
		return wire.InputFrame(wire.MouseMove(x, y)), true

	case wire.KindMouseButton:
		s.focus.ObserveButton(event.Button, event.Pressed)
		if s.focus.Mode() == ModeRemote {
			return wire.InputFrame(event), true
		}
		return wire.Frame{}, false

	case wire.KindKey:
		if s.focus.ObserveKey(event.Key, event.Pressed) {
			s.emit(FocusEvent{Target: wire.SideLocal})
			return wire.InputFrame(wire.ScreenSwitch(wire.SideLocal)), true
		}
		if s.focus.Mode() == ModeRemote {
			return wire.InputFrame(event), true
		}
		return wire.Frame{}, false

	case wire.KindScroll:
		if s.focus.Mode() == ModeRemote {
			scaled := event
			if speed := s.cfg.Input.ScrollSpeed; speed > 0 {
				scaled.DX *= speed
				scaled.DY *= speed
			}
			return wire.InputFrame(scaled), true
		}
		return wire.Frame{}, false
	}
	return wire.Frame{}, false
}

// emit delivers an event to the front-end without ever blocking the
// session loop. A front-end that stops draining loses events.
func (s *Server) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event dropped, front-end not draining", "event", fmt.Sprintf("%T", event))
	}
}
