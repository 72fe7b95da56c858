// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "github.com/edgehop/edgehop/wire"

// State is the per-connection session state. The server role cycles
// Waiting -> Connecting -> Connected -> Waiting; the client role cycles
// Connecting -> Connected -> Reconnecting -> Connecting, ending in
// Disconnected on user cancel. Only the session loop mutates it.
type State uint8

const (
	// StateWaiting: server role, no peer connected.
	StateWaiting State = iota + 1
	// StateConnecting: transport establishment or handshake in flight.
	StateConnecting
	// StateConnected: handshake complete, session live.
	StateConnected
	// StateReconnecting: client role, connection lost, retrying.
	StateReconnecting
	// StateDisconnected: client role, terminated by user command.
	StateDisconnected
)

// String returns the state name for logging and display.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is a notification delivered to the front-end. It is a one-way
// stream: the front-end observes, it never mutates session internals.
type Event interface {
	isEvent()
}

// StateEvent reports a session state transition. Every transition
// reaches the front-end, including the final one on every termination
// path — the user is never left looking at a stale "connected".
type StateEvent struct {
	State State
}

// HandshakeEvent reports a completed handshake with a peer.
type HandshakeEvent struct {
	Peer         string
	Version      uint32
	Capabilities []string
}

// FocusEvent reports a focus hand-off.
type FocusEvent struct {
	Target wire.ScreenSide
}

// ErrorEvent reports a terminal or scoped error. Transfer-scoped
// failures carry the transfer id and leave the session untouched.
type ErrorEvent struct {
	Err error
}

// TransferEvent reports file transfer progress.
type TransferEvent struct {
	ID       uint32
	Filename string
	Size     uint64
	State    TransferState
	// Err is set when State is TransferFailed or TransferRejected.
	Err error
}

// NotificationEvent surfaces a peer-sent notice.
type NotificationEvent struct {
	Title   string
	Message string
}

func (StateEvent) isEvent()        {}
func (HandshakeEvent) isEvent()    {}
func (FocusEvent) isEvent()        {}
func (ErrorEvent) isEvent()        {}
func (TransferEvent) isEvent()     {}
func (NotificationEvent) isEvent() {}

// Command is a front-end instruction to the session loop.
type Command interface {
	isCommand()
}

// DisconnectCommand closes the active connection. The server role
// returns to Waiting; the client role moves to Disconnected and the
// loop exits.
type DisconnectCommand struct{}

// SendFileCommand starts a manual file transfer to the peer.
type SendFileCommand struct {
	Path string
}

// SetRemoteAddressCommand changes the address the client role dials on
// its next connection attempt.
type SetRemoteAddressCommand struct {
	Address string
}

func (DisconnectCommand) isCommand()       {}
func (SendFileCommand) isCommand()         {}
func (SetRemoteAddressCommand) isCommand() {}
