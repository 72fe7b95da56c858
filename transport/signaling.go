// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// signalTimeout bounds the entire TCP signaling exchange. A peer that
// connects and stalls must not pin the accept loop.
const signalTimeout = 15 * time.Second

// maxSignalBytes caps an offer/answer envelope. SDPs with a full ICE
// candidate set run a few kilobytes; anything near the cap is hostile.
const maxSignalBytes = 64 << 10

// signalEnvelope is the JSON message exchanged over the short-lived
// signaling TCP connection. Exactly one offer and one answer travel on
// each signaling connection; the connection closes once the envelope
// exchange is done and the WebRTC link carries everything after.
type signalEnvelope struct {
	// Protocol must equal Protocol; both ends verify before touching
	// the SDP.
	Protocol string `json:"proto"`

	// Kind is "offer", "answer", or "reject".
	Kind string `json:"kind"`

	// Name identifies the sending machine.
	Name string `json:"name"`

	// SDP is the complete session description with all ICE candidates
	// embedded (vanilla ICE: one signaling round trip).
	SDP string `json:"sdp,omitempty"`

	// Error carries the rejection reason for Kind "reject".
	Error string `json:"error,omitempty"`
}

// writeSignal sends one envelope on the signaling connection.
func writeSignal(conn net.Conn, envelope signalEnvelope) error {
	conn.SetWriteDeadline(time.Now().Add(signalTimeout))
	return json.NewEncoder(conn).Encode(envelope)
}

// readSignal reads one envelope and verifies the protocol identifier.
func readSignal(conn net.Conn) (signalEnvelope, error) {
	conn.SetReadDeadline(time.Now().Add(signalTimeout))

	var envelope signalEnvelope
	decoder := json.NewDecoder(io.LimitReader(conn, maxSignalBytes))
	if err := decoder.Decode(&envelope); err != nil {
		return signalEnvelope{}, fmt.Errorf("reading signal envelope: %w", err)
	}

	if envelope.Protocol != Protocol {
		return signalEnvelope{}, fmt.Errorf("peer speaks %q, want %q", envelope.Protocol, Protocol)
	}
	if envelope.Kind == "reject" {
		return signalEnvelope{}, fmt.Errorf("peer rejected signaling: %s", envelope.Error)
	}
	return envelope, nil
}

// rejectSignal answers a bad offer with a reject envelope, best effort.
func rejectSignal(conn net.Conn, name, reason string) {
	writeSignal(conn, signalEnvelope{
		Protocol: Protocol,
		Kind:     "reject",
		Name:     name,
		Error:    reason,
	})
}
