// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package clipboard

// Provider is the platform clipboard boundary. Implementations live
// outside this module (X11, Wayland, win32, NSPasteboard); the session
// engine only reads and writes through this interface.
//
// The getters return ok=false when the clipboard holds no content of
// that representation. Many OS clipboards expose several
// representations of one logical content at once (a copied file also
// appears as its filename in text form); the clipboard coordinator
// resolves that ambiguity by checking Files, then Text, then Image,
// and emitting a single event.
type Provider interface {
	// Files returns the ordered file paths on the clipboard, if any.
	Files() ([]string, bool, error)

	// Text returns the text content, if any.
	Text() (string, bool, error)

	// Image returns an encoded image payload and its format tag
	// (e.g. "png"), if any.
	Image() ([]byte, string, bool, error)

	// SetFiles replaces the clipboard with a file list.
	SetFiles(paths []string) error

	// SetText replaces the clipboard with text.
	SetText(text string) error

	// SetImage replaces the clipboard with an encoded image.
	SetImage(data []byte, format string) error

	// Changes returns a channel that signals each clipboard change,
	// including changes this process made itself — echo suppression
	// is the coordinator's job, not the provider's.
	Changes() <-chan struct{}

	// Close releases platform resources and closes the Changes channel.
	Close() error
}

// Content is a provider-side snapshot used by the memory fake and by
// tests to stage clipboard state.
type Content struct {
	Paths       []string
	Text        string
	Image       []byte
	ImageFormat string
}
