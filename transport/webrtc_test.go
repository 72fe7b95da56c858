// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/edgehop/edgehop/wire"
)

// TestWebRTCLoopback dials a Listener over loopback and verifies that
// frames round-trip on the control stream and that a bulk stream opened
// by the dialer arrives at the listener side.
func TestWebRTCLoopback(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	// Empty ICE config means host candidates only (loopback).
	listener, err := Listen("127.0.0.1:0", "host", ICEConfig{}, logger)
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dialed := make(chan Conn, 1)
	dialErrs := make(chan error, 1)
	go func() {
		conn, dialErr := Dial(ctx, listener.Address(), "client", ICEConfig{}, logger)
		if dialErr != nil {
			dialErrs <- dialErr
			return
		}
		dialed <- conn
	}()

	accepted, err := listener.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	defer accepted.Close()

	var client Conn
	select {
	case client = <-dialed:
	case err := <-dialErrs:
		t.Fatalf("Dial error: %v", err)
	}
	defer client.Close()

	if accepted.PeerName() != "client" {
		t.Errorf("accepted.PeerName() = %q, want %q", accepted.PeerName(), "client")
	}
	if client.PeerName() != "host" {
		t.Errorf("client.PeerName() = %q, want %q", client.PeerName(), "host")
	}

	// Control stream round trip, both directions.
	if err := wire.WriteFrame(client.Control(), wire.HeartbeatFrame()); err != nil {
		t.Fatalf("WriteFrame client->host: %v", err)
	}
	frame, err := wire.ReadFrame(accepted.Control())
	if err != nil {
		t.Fatalf("ReadFrame on host: %v", err)
	}
	if frame.Type != wire.FrameHeartbeat {
		t.Errorf("host received frame type %v, want %v", frame.Type, wire.FrameHeartbeat)
	}

	if err := wire.WriteFrame(accepted.Control(), wire.NotificationFrame("hi", "there")); err != nil {
		t.Fatalf("WriteFrame host->client: %v", err)
	}
	frame, err = wire.ReadFrame(client.Control())
	if err != nil {
		t.Fatalf("ReadFrame on client: %v", err)
	}
	if frame.Type != wire.FrameNotification || frame.Notification.Title != "hi" {
		t.Errorf("client received %+v, want the notification that was sent", frame)
	}

	// Bulk stream from dialer to listener.
	writer, err := client.OpenBulk(ctx, "xfer-1")
	if err != nil {
		t.Fatalf("OpenBulk error: %v", err)
	}
	go func() {
		writer.Write([]byte("file contents"))
		writer.Close()
	}()

	stream, err := accepted.AcceptBulk(ctx)
	if err != nil {
		t.Fatalf("AcceptBulk error: %v", err)
	}
	if stream.Label != "xfer-1" {
		t.Errorf("bulk stream label = %q, want %q", stream.Label, "xfer-1")
	}
	payload, err := io.ReadAll(stream.Reader)
	if err != nil {
		t.Fatalf("reading bulk stream: %v", err)
	}
	if string(payload) != "file contents" {
		t.Errorf("bulk payload = %q, want %q", payload, "file contents")
	}
}

// TestListenerRejectsWrongProtocol sends a signaling envelope with a
// mismatched protocol identifier and expects a reject envelope back.
func TestListenerRejectsWrongProtocol(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	listener, err := Listen("127.0.0.1:0", "host", ICEConfig{}, logger)
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	defer listener.Close()

	tcpConn, err := net.DialTimeout("tcp", listener.Address(), 5*time.Second)
	if err != nil {
		t.Fatalf("dialing listener: %v", err)
	}
	defer tcpConn.Close()

	bogus, _ := json.Marshal(signalEnvelope{
		Protocol: "somethingelse/9",
		Kind:     "offer",
		Name:     "intruder",
		SDP:      "v=0",
	})
	if _, err := tcpConn.Write(append(bogus, '\n')); err != nil {
		t.Fatalf("writing bogus offer: %v", err)
	}

	var reply signalEnvelope
	tcpConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewDecoder(tcpConn).Decode(&reply); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.Kind != "reject" {
		t.Errorf("reply kind = %q, want %q", reply.Kind, "reject")
	}
	if !strings.Contains(reply.Error, Protocol) {
		t.Errorf("reject error = %q, want it to name the expected protocol %q", reply.Error, Protocol)
	}
}
