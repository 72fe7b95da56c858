// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/edgehop/edgehop/lib/codec"
)

// MaxFrameSize caps a single frame's encoded size. Clipboard images are
// the largest legitimate payload; anything bigger than this is treated
// as a malformed or hostile frame rather than allocated.
const MaxFrameSize = 16 << 20

// frameHeaderSize is the length prefix preceding each frame on a stream.
const frameHeaderSize = 4

// Sentinel decode errors. Use errors.Is to classify.
var (
	// ErrMalformed reports truncated or corrupt frame bytes.
	ErrMalformed = errors.New("wire: malformed frame")

	// ErrUnknownVariant reports an unrecognized frame type tag.
	// Unknown variants are survivable protocol version skew, not a
	// reason to tear the session down.
	ErrUnknownVariant = errors.New("wire: unknown frame variant")
)

// DecodeError describes why frame bytes were rejected. It unwraps to
// ErrMalformed or ErrUnknownVariant.
type DecodeError struct {
	// Sentinel is ErrMalformed or ErrUnknownVariant.
	Sentinel error

	// Variant is the offending tag for unknown-variant errors.
	Variant FrameType

	// Detail describes the specific defect.
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Sentinel == ErrUnknownVariant {
		return fmt.Sprintf("%v: tag %d", e.Sentinel, e.Variant)
	}
	return fmt.Sprintf("%v: %s", e.Sentinel, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Sentinel }

func malformed(format string, args ...any) error {
	return &DecodeError{Sentinel: ErrMalformed, Detail: fmt.Sprintf(format, args...)}
}

// Encode serializes a frame to its CBOR wire form. Encoding is
// deterministic: the same frame always produces identical bytes.
func Encode(frame Frame) ([]byte, error) {
	if err := validate(frame); err != nil {
		return nil, err
	}
	return codec.Marshal(frame)
}

// Decode parses frame bytes. Truncated or corrupt input yields
// ErrMalformed; an unrecognized variant tag yields ErrUnknownVariant.
// Decode never panics on arbitrary input.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return Frame{}, malformed("%v", err)
	}
	if err := validate(frame); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// validate checks the envelope invariant: a known tag with exactly the
// payload field that tag requires.
func validate(frame Frame) error {
	var want, got int

	switch frame.Type {
	case FrameHandshake:
		want = 1
		if frame.Handshake == nil {
			return malformed("handshake frame without payload")
		}
	case FrameHeartbeat:
		want = 0
	case FrameInput:
		want = 1
		if frame.Input == nil {
			return malformed("input frame without payload")
		}
	case FrameClipboard:
		want = 1
		if frame.Clipboard == nil {
			return malformed("clipboard frame without payload")
		}
	case FrameTransferRequest:
		want = 1
		if frame.TransferRequest == nil {
			return malformed("transfer-request frame without payload")
		}
	case FrameTransferResponse:
		want = 1
		if frame.TransferResponse == nil {
			return malformed("transfer-response frame without payload")
		}
	case FrameNotification:
		want = 1
		if frame.Notification == nil {
			return malformed("notification frame without payload")
		}
	default:
		return &DecodeError{Sentinel: ErrUnknownVariant, Variant: frame.Type}
	}

	for _, present := range []bool{
		frame.Handshake != nil,
		frame.Input != nil,
		frame.Clipboard != nil,
		frame.TransferRequest != nil,
		frame.TransferResponse != nil,
		frame.Notification != nil,
	} {
		if present {
			got++
		}
	}
	if got != want {
		return malformed("%s frame carries %d payloads, want %d", frame.Type, got, want)
	}
	return nil
}

// WriteFrame writes one length-delimited frame to w: a 4-byte
// little-endian length followed by the encoded frame.
func WriteFrame(w io.Writer, frame Frame) error {
	data, err := Encode(frame)
	if err != nil {
		return err
	}

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadFrame reads one length-delimited frame from r. A clean
// end-of-stream at a frame boundary returns io.EOF; a stream that ends
// mid-frame returns ErrMalformed. Length prefixes beyond MaxFrameSize
// are rejected without allocating.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, malformed("stream ended mid-header")
		}
		return Frame{}, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return Frame{}, malformed("frame length %d exceeds limit %d", length, MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, malformed("stream ended mid-frame (%d byte body)", length)
		}
		return Frame{}, err
	}

	return Decode(body)
}
