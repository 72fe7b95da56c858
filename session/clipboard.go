// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/edgehop/edgehop/clipboard"
	"github.com/edgehop/edgehop/lib/codec"
	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/wire"
)

// ClipboardCoordinator turns raw clipboard reads into at most one
// outbound event per change and keeps the two machines from echoing
// content back and forth. The feedback loop it breaks: applying a
// remote event to the local clipboard fires the local change
// notification, which would re-send the same content to the peer,
// which would apply it, and so on.
type ClipboardCoordinator struct {
	provider clipboard.Provider
	cfg      config.ClipboardConfig
	logger   *slog.Logger

	mu sync.Mutex
	// lastRemote is the hash of the most recently applied remote
	// event. A local change notification matching it is the system's
	// echo of that application, not a new copy, and is suppressed.
	lastRemote [32]byte
	haveRemote bool
	// lastSent dedupes consecutive identical outbound events; some
	// platforms fire several notifications for one copy.
	lastSent [32]byte
	haveSent bool
}

// NewClipboardCoordinator wires the coordinator to a platform provider.
func NewClipboardCoordinator(provider clipboard.Provider, cfg config.ClipboardConfig, logger *slog.Logger) *ClipboardCoordinator {
	return &ClipboardCoordinator{provider: provider, cfg: cfg, logger: logger}
}

// Snapshot reads the local clipboard after a change notification and
// returns the single event to send, or ok=false when nothing should go
// out (sync disabled, empty clipboard, echo, duplicate, oversized
// image).
//
// The representation priority is fixed: Files beats Text beats Image.
// OS clipboards put a filename string next to a copied file reference;
// text-first priority would starve the Files representation behind its
// own artifact.
func (c *ClipboardCoordinator) Snapshot() (wire.ClipboardEvent, bool) {
	if !c.cfg.Sync {
		return wire.ClipboardEvent{}, false
	}

	event, ok := c.read()
	if !ok {
		return wire.ClipboardEvent{}, false
	}

	hash := contentHash(event)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveRemote && hash == c.lastRemote {
		return wire.ClipboardEvent{}, false
	}
	if c.haveSent && hash == c.lastSent {
		return wire.ClipboardEvent{}, false
	}
	c.lastSent = hash
	c.haveSent = true
	// New local content supersedes the remembered remote application.
	c.haveRemote = false
	return event, true
}

// read resolves the provider's simultaneous representations into one
// event in priority order.
func (c *ClipboardCoordinator) read() (wire.ClipboardEvent, bool) {
	paths, ok, err := c.provider.Files()
	if err != nil {
		c.logger.Warn("clipboard files read failed", "error", err)
	} else if ok && len(paths) > 0 {
		return wire.ClipboardEvent{Kind: wire.ClipFiles, Files: buildManifest(paths)}, true
	}

	text, ok, err := c.provider.Text()
	if err != nil {
		c.logger.Warn("clipboard text read failed", "error", err)
	} else if ok && text != "" {
		return wire.ClipboardEvent{Kind: wire.ClipText, Text: text}, true
	}

	if c.cfg.SyncImages {
		data, format, ok, err := c.provider.Image()
		if err != nil {
			c.logger.Warn("clipboard image read failed", "error", err)
		} else if ok && len(data) > 0 {
			if c.cfg.MaxImageBytes > 0 && len(data) > c.cfg.MaxImageBytes {
				c.logger.Info("skipping oversized clipboard image",
					"bytes", len(data), "max", c.cfg.MaxImageBytes)
				return wire.ClipboardEvent{}, false
			}
			return wire.ClipboardEvent{Kind: wire.ClipImage, Image: data, ImageFormat: format}, true
		}
	}

	return wire.ClipboardEvent{}, false
}

// ApplyRemote writes a peer's clipboard event to the local clipboard
// and remembers its hash so the resulting change notification is
// recognized as an echo. For a Files event the paths written are the
// caller's (already staged locally), not the peer's.
func (c *ClipboardCoordinator) ApplyRemote(event wire.ClipboardEvent, localPaths []string) error {
	if event.Kind == wire.ClipFiles {
		event.Files = buildManifest(localPaths)
	}

	// Remember the hash before touching the provider: the provider
	// write raises the change notification, and the snapshot it
	// triggers must already see this content as an echo.
	hash := contentHash(event)
	c.mu.Lock()
	c.lastRemote = hash
	c.haveRemote = true
	c.mu.Unlock()

	var err error
	switch event.Kind {
	case wire.ClipText:
		err = c.provider.SetText(event.Text)
	case wire.ClipFiles:
		err = c.provider.SetFiles(localPaths)
	case wire.ClipImage:
		err = c.provider.SetImage(event.Image, event.ImageFormat)
	default:
		err = fmt.Errorf("event kind %d not applicable", event.Kind)
	}
	if err != nil {
		return fmt.Errorf("applying remote clipboard: %w", err)
	}
	return nil
}

// contentHash gives a stable identity for a clipboard event. The
// deterministic encoding makes equal content hash equal.
func contentHash(event wire.ClipboardEvent) [32]byte {
	encoded, err := codec.Marshal(event)
	if err != nil {
		// ClipboardEvent has no unencodable fields; reachable only by
		// a new field breaking determinism, which round-trip tests
		// catch.
		panic(fmt.Sprintf("encoding clipboard event for hashing: %v", err))
	}
	return blake3.Sum256(encoded)
}

// buildManifest stats the paths it can and marks the rest Missing.
// Missing entries still travel in Paths so ordering survives, but no
// transfer is announced for them.
func buildManifest(paths []string) *wire.FileManifest {
	manifest := &wire.FileManifest{Paths: paths}
	for _, path := range paths {
		meta := wire.FileMeta{Name: filepath.Base(path)}
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			meta.Size = uint64(info.Size())
			manifest.TotalSize += meta.Size
		} else {
			meta.Missing = true
		}
		manifest.Entries = append(manifest.Entries, meta)
	}
	return manifest
}
