// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"net"
	"sync"
)

// Compile-time interface check.
var _ Conn = (*MemoryConn)(nil)

// MemoryConn is an in-process Conn for tests: the control stream is one
// end of a net.Pipe, bulk streams are io.Pipe pairs handed directly to
// the peer. Closing either side surfaces as an error on the peer's
// control reads, matching how a dropped transport looks in production.
type MemoryConn struct {
	peerName string
	control  io.ReadWriteCloser

	// bulkToPeer feeds the peer's AcceptBulk; bulkFromPeer feeds ours.
	bulkToPeer   chan *BulkStream
	bulkFromPeer chan *BulkStream

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryPair returns two connected MemoryConns. Frames written to
// one side's control stream are read from the other's; bulk streams
// opened on one side arrive at the other's AcceptBulk.
func NewMemoryPair(nameA, nameB string) (*MemoryConn, *MemoryConn) {
	controlA, controlB := net.Pipe()
	bulkAtoB := make(chan *BulkStream, 8)
	bulkBtoA := make(chan *BulkStream, 8)

	a := &MemoryConn{
		peerName:     nameB,
		control:      controlA,
		bulkToPeer:   bulkAtoB,
		bulkFromPeer: bulkBtoA,
		closed:       make(chan struct{}),
	}
	b := &MemoryConn{
		peerName:     nameA,
		control:      controlB,
		bulkToPeer:   bulkBtoA,
		bulkFromPeer: bulkAtoB,
		closed:       make(chan struct{}),
	}
	return a, b
}

// Control returns the ordered reliable frame stream.
func (c *MemoryConn) Control() io.ReadWriteCloser {
	return c.control
}

// OpenBulk hands the read end of a fresh pipe to the peer and returns
// the write end.
func (c *MemoryConn) OpenBulk(ctx context.Context, label string) (io.WriteCloser, error) {
	reader, writer := io.Pipe()
	stream := &BulkStream{Label: label, Reader: reader}
	select {
	case c.bulkToPeer <- stream:
		return writer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

// AcceptBulk blocks until the peer opens a bulk stream.
func (c *MemoryConn) AcceptBulk(ctx context.Context) (*BulkStream, error) {
	select {
	case stream := <-c.bulkFromPeer:
		return stream, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

// PeerName returns the name of the other side of the pair.
func (c *MemoryConn) PeerName() string {
	return c.peerName
}

// Close closes the control stream; the peer's next read fails.
func (c *MemoryConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.control.Close()
}
