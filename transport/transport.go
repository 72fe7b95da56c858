// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
)

// Protocol is the application protocol identifier exchanged during
// signaling. Both ends verify it before accepting a session; a
// mismatch is refused at the signaling stage, before any frame flows.
const Protocol = "edgehop/1"

// Conn is one established peer link: a single ordered reliable control
// stream plus on-demand unidirectional bulk streams for file payloads.
// The control stream carries every protocol frame in send order. Bulk
// streams have no ordering guarantee relative to the control stream or
// to each other — that isolation is the point: a slow file transfer
// must never head-of-line-block input and heartbeat traffic.
//
// A Conn is owned exclusively by one session loop for the lifetime of
// one connection attempt.
type Conn interface {
	// Control returns the ordered reliable bidirectional stream.
	// Reads block until data or connection failure; Close unblocks
	// them.
	Control() io.ReadWriteCloser

	// OpenBulk opens a new unidirectional bulk stream to the peer,
	// identified by label. The writer side streams the payload and
	// closes.
	OpenBulk(ctx context.Context, label string) (io.WriteCloser, error)

	// AcceptBulk blocks until the peer opens a bulk stream, returning
	// its label and reader side. Returns an error after Close.
	AcceptBulk(ctx context.Context) (*BulkStream, error)

	// PeerName returns the peer identity exchanged during signaling.
	PeerName() string

	// Close tears down the link, unblocking all pending operations.
	// Idempotent.
	Close() error
}

// BulkStream is the receiving side of a peer-opened bulk stream.
type BulkStream struct {
	// Label identifies the stream ("xfer-<id>" for file transfers).
	Label string

	// Reader delivers the payload. The stream ends with io.EOF when
	// the peer finishes and closes its writer.
	Reader io.ReadCloser
}
