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

// DialFunc establishes one connection attempt to a peer address.
// Production wires transport.Dial; tests substitute an in-memory pair.
type DialFunc func(ctx context.Context, address string) (transport.Conn, error)

// Client is the input-sink role: it receives the server's input stream
// and injects it locally. It never runs edge detection of its own — an
// inbound ScreenSwitch frame is the only thing that starts or stops
// injection. States cycle Connecting -> Connected -> Reconnecting ->
// Connecting, ending in Disconnected on user cancel.
type Client struct {
	cfg      *config.Config
	clk      clock.Clock
	logger   *slog.Logger
	dial     DialFunc
	sink     input.Sink
	provider clipboard.Provider

	address  string
	clip     *ClipboardCoordinator
	events   chan Event
	commands chan Command
}

// NewClient assembles the client role around its collaborators. The
// caller owns the sink and provider lifetimes.
func NewClient(cfg *config.Config, dial DialFunc, sink input.Sink, provider clipboard.Provider, clk clock.Clock, logger *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		clk:      clk,
		logger:   logger,
		dial:     dial,
		sink:     sink,
		provider: provider,
		address:  cfg.Peer,
		clip:     NewClipboardCoordinator(provider, cfg.Clipboard, logger),
		events:   make(chan Event, eventBuffer),
		commands: make(chan Command, 16),
	}
}

// Events is the front-end notification stream.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Commands is the front-end command channel.
func (c *Client) Commands() chan<- Command {
	return c.commands
}

// Run dials, serves, and reconnects until the user disconnects or the
// context is canceled. Reconnection uses a constant backoff: a fresh
// connection re-runs the handshake and starts a fresh watchdog.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.emit(StateEvent{State: StateConnecting})

		conn, err := c.dial(ctx, c.address)
		if err != nil {
			if ctx.Err() != nil {
				c.emit(StateEvent{State: StateDisconnected})
				return ctx.Err()
			}
			c.logger.Warn("connection attempt failed", "address", c.address, "error", err)
			c.emit(ErrorEvent{Err: &ConnectionError{Err: err}})
			if stop := c.awaitReconnect(ctx); stop != nil {
				if errors.Is(stop, errUserDisconnect) {
					return nil
				}
				return stop
			}
			continue
		}

		err = c.serveConn(ctx, conn)

		// Termination sequence: injection stops and the final state
		// event goes out on every exit path.
		c.sink.SetRemote(false)
		conn.Close()

		switch {
		case errors.Is(err, errUserDisconnect):
			c.emit(StateEvent{State: StateDisconnected})
			return nil
		case ctx.Err() != nil:
			c.emit(StateEvent{State: StateDisconnected})
			return ctx.Err()
		default:
			c.logger.Warn("session lost", "error", err)
			c.emit(ErrorEvent{Err: err})
			if stop := c.awaitReconnect(ctx); stop != nil {
				if errors.Is(stop, errUserDisconnect) {
					return nil
				}
				return stop
			}
		}
	}
}

// awaitReconnect holds in Reconnecting for the constant backoff
// interval, still honoring user commands. A non-nil return ends Run.
func (c *Client) awaitReconnect(ctx context.Context) error {
	c.emit(StateEvent{State: StateReconnecting})
	backoff := c.clk.After(c.cfg.Reconnect.Interval.Std())
	for {
		select {
		case <-backoff:
			return nil
		case command := <-c.commands:
			switch command := command.(type) {
			case DisconnectCommand:
				c.emit(StateEvent{State: StateDisconnected})
				return errUserDisconnect
			case SetRemoteAddressCommand:
				c.address = command.Address
				c.logger.Info("peer address updated", "address", c.address)
			default:
				c.emit(ErrorEvent{Err: fmt.Errorf("not connected, cannot handle %T", command)})
			}
		case <-ctx.Done():
			c.emit(StateEvent{State: StateDisconnected})
			return ctx.Err()
		}
	}
}

// serveConn runs the session loop for one connection. The client side
// injects inbound input and shares the clipboard and transfer handling
// with the server role; it never captures or forwards local input.
func (c *Client) serveConn(ctx context.Context, conn transport.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan wire.Frame)
	readErrs := make(chan error, 1)
	go readFrames(conn.Control(), frames, readErrs, connCtx.Done(), c.logger)

	peer := newPeerSession(c.cfg, c.clk, c.logger, c.emit, conn, c.clip)
	if _, err := peer.exchangeHandshake(connCtx, frames, readErrs); err != nil {
		return err
	}
	c.emit(StateEvent{State: StateConnected})

	go peer.transfers.RunReceiver(connCtx)

	heartbeat := c.clk.NewTicker(c.cfg.Heartbeat.Interval.Std())
	defer heartbeat.Stop()
	watchdog := c.clk.NewTicker(watchdogCheckInterval)
	defer watchdog.Stop()
	lastInbound := c.clk.Now()

	for {
		select {
		case frame := <-frames:
			lastInbound = c.clk.Now()
			handled, err := peer.handleCommon(connCtx, frame)
			if err != nil {
				return err
			}
			if !handled {
				c.handleInput(frame)
			}

		case err := <-readErrs:
			return &ConnectionError{Err: err}

		case <-c.provider.Changes():
			if err := peer.sendClipboardChange(); err != nil {
				return err
			}

		case command := <-c.commands:
			switch command := command.(type) {
			case DisconnectCommand:
				return errUserDisconnect
			case SendFileCommand:
				if err := peer.handleSendFile(command.Path); err != nil {
					return err
				}
			case SetRemoteAddressCommand:
				c.address = command.Address
			}

		case <-heartbeat.C:
			if err := peer.send(wire.HeartbeatFrame()); err != nil {
				return err
			}

		case <-watchdog.C:
			if c.clk.Now().Sub(lastInbound) > c.cfg.Heartbeat.Timeout.Std() {
				return ErrWatchdogTimeout
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleInput injects one inbound input event. A ScreenSwitch flips
// the injection flag; backend injection failures degrade the session
// but never terminate it.
func (c *Client) handleInput(frame wire.Frame) {
	if frame.Type != wire.FrameInput {
		c.logger.Warn("ignoring unexpected frame", "type", frame.Type)
		return
	}
	event := *frame.Input

	if event.Kind == wire.KindScreenSwitch {
		active := event.Target == wire.SideRemote
		c.sink.SetRemote(active)
		c.emit(FocusEvent{Target: event.Target})
		c.logger.Info("focus hand-off received", "target", event.Target)
		return
	}

	if err := c.sink.Inject(event); err != nil {
		c.logger.Warn("input injection failed", "kind", event.Kind, "error", err)
		c.emit(ErrorEvent{Err: fmt.Errorf("injecting input: %w", err)})
	}
}

// emit delivers an event to the front-end without ever blocking the
// session loop.
func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("event dropped, front-end not draining", "event", fmt.Sprintf("%T", event))
	}
}
