// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Edgehop's standard CBOR encoding configuration.
//
// Edgehop uses two serialization formats with a clear boundary:
//
//   - JSON for the signaling exchange (the short-lived TCP envelope that
//     carries SDP offers and answers before the data channels exist) and
//     for anything a human might read off the wire with tcpdump.
//   - CBOR for protocol frames on the established session: input events,
//     clipboard events, heartbeats, and file transfer negotiation.
//
// This package holds the shared CBOR encoding and decoding modes so that
// every package encodes identically without duplicating configuration.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes, which the clipboard
// coordinator relies on when hashing event content for echo suppression.
//
// Usage:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Protocol types carry `cbor` struct tags. Signaling types carry `json`
// tags. Never both on the same field — the tag documents which side of
// the format boundary a type lives on.
package codec
