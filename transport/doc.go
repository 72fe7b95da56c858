// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport establishes the encrypted channel between two
// machines and exposes it as ordered streams.
//
// A [Conn] carries one session: [Conn.Control] is the ordered reliable
// byte stream the wire codec frames over, and [Conn.OpenBulk] /
// [Conn.AcceptBulk] open dedicated labeled streams for file transfer
// payloads so bulk data never queues behind input frames.
//
// The production implementation is WebRTC: one PeerConnection per
// session, data channels detached to io.ReadWriteCloser, DTLS for
// encryption. Signaling is a single offer/answer round trip over a
// short-lived TCP connection to the host's listen address — [Listen]
// on the host, [Dial] on the client. [NewMemoryPair] provides an
// in-process implementation for tests.
package transport
