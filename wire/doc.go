// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the session protocol's frame taxonomy and its
// binary encoding. It is pure and stateless: [Encode] and [Decode]
// convert between [Frame] values and deterministic CBOR bytes, and
// [WriteFrame]/[ReadFrame] add the 4-byte little-endian length prefix
// used on the ordered control stream.
//
// [Frame] is a closed envelope: a [FrameType] tag plus exactly one
// payload field matching the tag. The variants are Handshake (peer
// identity and protocol version), Heartbeat (liveness pulse, no
// payload), Input ([InputEvent]), Clipboard ([ClipboardEvent]),
// TransferRequest/TransferResponse (file transfer negotiation), and
// Notification (peer-visible notice). Input coordinates are normalized
// to [0,1] over the union bounding box of the reporting side's
// displays.
//
// Decoding never panics. Truncated or corrupt input yields
// [ErrMalformed]; an unrecognized variant tag yields
// [ErrUnknownVariant], which callers treat as survivable protocol
// version skew rather than a fatal condition. Both are wrapped in
// [DecodeError] and classified with errors.Is.
//
// This package depends only on lib/codec.
package wire
