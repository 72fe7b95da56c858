// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/edgehop/edgehop/wire"
)

func TestMemoryPairControlRoundTrip(t *testing.T) {
	alpha, beta := NewMemoryPair("alpha", "beta")
	defer alpha.Close()
	defer beta.Close()

	if alpha.PeerName() != "beta" {
		t.Errorf("alpha.PeerName() = %q, want %q", alpha.PeerName(), "beta")
	}
	if beta.PeerName() != "alpha" {
		t.Errorf("beta.PeerName() = %q, want %q", beta.PeerName(), "alpha")
	}

	sent := wire.InputFrame(wire.MouseMove(0.25, 0.75))
	errs := make(chan error, 1)
	go func() {
		errs <- wire.WriteFrame(alpha.Control(), sent)
	}()

	received, err := wire.ReadFrame(beta.Control())
	if err != nil {
		t.Fatalf("ReadFrame error: %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("WriteFrame error: %v", err)
	}
	if received.Type != wire.FrameInput || received.Input.X != 0.25 {
		t.Errorf("received frame = %+v, want the mouse move that was sent", received)
	}
}

func TestMemoryPairBulkStream(t *testing.T) {
	alpha, beta := NewMemoryPair("alpha", "beta")
	defer alpha.Close()
	defer beta.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writer, err := alpha.OpenBulk(ctx, "xfer-7")
	if err != nil {
		t.Fatalf("OpenBulk error: %v", err)
	}
	go func() {
		writer.Write([]byte("bulk payload"))
		writer.Close()
	}()

	stream, err := beta.AcceptBulk(ctx)
	if err != nil {
		t.Fatalf("AcceptBulk error: %v", err)
	}
	if stream.Label != "xfer-7" {
		t.Errorf("stream label = %q, want %q", stream.Label, "xfer-7")
	}

	payload, err := io.ReadAll(stream.Reader)
	if err != nil {
		t.Fatalf("reading bulk stream: %v", err)
	}
	if string(payload) != "bulk payload" {
		t.Errorf("payload = %q, want %q", payload, "bulk payload")
	}
}

func TestMemoryPairCloseUnblocksPeer(t *testing.T) {
	alpha, beta := NewMemoryPair("alpha", "beta")
	defer beta.Close()

	alpha.Close()

	if _, err := wire.ReadFrame(beta.Control()); err == nil {
		t.Error("ReadFrame after peer close: want error, got nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := alpha.AcceptBulk(ctx); !errors.Is(err, net.ErrClosed) {
		t.Errorf("AcceptBulk on closed conn: err = %v, want net.ErrClosed", err)
	}
}
