// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgehop/edgehop/clipboard"
	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/wire"
)

func newTestCoordinator(t *testing.T, cfg config.ClipboardConfig) (*ClipboardCoordinator, *clipboard.MemoryProvider) {
	t.Helper()
	provider := clipboard.NewMemoryProvider()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewClipboardCoordinator(provider, cfg, logger), provider
}

func syncConfig() config.ClipboardConfig {
	return config.ClipboardConfig{Sync: true, SyncImages: true, MaxImageBytes: 1 << 20}
}

func TestClipboardPriorityFilesBeatText(t *testing.T) {
	coordinator, provider := newTestCoordinator(t, syncConfig())

	// A copied file also shows up as its filename in text form.
	provider.Put(clipboard.Content{
		Paths: []string{"/home/user/report.pdf"},
		Text:  "report.pdf",
	})

	event, ok := coordinator.Snapshot()
	if !ok {
		t.Fatal("Snapshot returned nothing for a populated clipboard")
	}
	if event.Kind != wire.ClipFiles {
		t.Fatalf("event kind = %v, want %v", event.Kind, wire.ClipFiles)
	}
	if len(event.Files.Paths) != 1 || event.Files.Paths[0] != "/home/user/report.pdf" {
		t.Errorf("event paths = %v, want the copied file", event.Files.Paths)
	}
}

func TestClipboardEchoSuppression(t *testing.T) {
	coordinator, provider := newTestCoordinator(t, syncConfig())

	remote := wire.ClipboardEvent{Kind: wire.ClipText, Text: "pasted from peer"}
	if err := coordinator.ApplyRemote(remote, nil); err != nil {
		t.Fatalf("ApplyRemote error: %v", err)
	}
	if provider.Snapshot().Text != "pasted from peer" {
		t.Fatal("remote text did not land on the local clipboard")
	}

	// The apply raised a local change notification; snapshotting now
	// must recognize the echo and emit nothing.
	if event, ok := coordinator.Snapshot(); ok {
		t.Fatalf("echo was re-emitted: %+v", event)
	}

	// A genuinely new local copy goes out.
	provider.Put(clipboard.Content{Text: "typed locally"})
	event, ok := coordinator.Snapshot()
	if !ok || event.Text != "typed locally" {
		t.Fatalf("new local content not emitted: ok=%v event=%+v", ok, event)
	}
}

func TestClipboardOutboundDedupe(t *testing.T) {
	coordinator, provider := newTestCoordinator(t, syncConfig())

	provider.Put(clipboard.Content{Text: "copied once"})
	if _, ok := coordinator.Snapshot(); !ok {
		t.Fatal("first snapshot suppressed")
	}
	// Platforms fire several notifications for one copy.
	if event, ok := coordinator.Snapshot(); ok {
		t.Fatalf("duplicate notification re-emitted: %+v", event)
	}

	provider.Put(clipboard.Content{Text: "copied twice"})
	if _, ok := coordinator.Snapshot(); !ok {
		t.Fatal("changed content suppressed")
	}
}

func TestClipboardSyncDisabled(t *testing.T) {
	coordinator, provider := newTestCoordinator(t, config.ClipboardConfig{Sync: false})
	provider.Put(clipboard.Content{Text: "secret"})
	if event, ok := coordinator.Snapshot(); ok {
		t.Fatalf("snapshot emitted with sync disabled: %+v", event)
	}
}

func TestClipboardImageCapAndToggle(t *testing.T) {
	cfg := syncConfig()
	cfg.MaxImageBytes = 8
	coordinator, provider := newTestCoordinator(t, cfg)

	provider.Put(clipboard.Content{Image: make([]byte, 16), ImageFormat: "png"})
	if event, ok := coordinator.Snapshot(); ok {
		t.Fatalf("oversized image emitted: %+v", event)
	}

	provider.Put(clipboard.Content{Image: []byte{1, 2, 3}, ImageFormat: "png"})
	event, ok := coordinator.Snapshot()
	if !ok || event.Kind != wire.ClipImage {
		t.Fatalf("small image not emitted: ok=%v event=%+v", ok, event)
	}

	cfg.SyncImages = false
	coordinator, provider = newTestCoordinator(t, cfg)
	provider.Put(clipboard.Content{Image: []byte{1, 2, 3}, ImageFormat: "png"})
	if event, ok := coordinator.Snapshot(); ok {
		t.Fatalf("image emitted with image sync disabled: %+v", event)
	}
}

func TestClipboardFilesManifest(t *testing.T) {
	coordinator, provider := newTestCoordinator(t, syncConfig())

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("twelve bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	empty := filepath.Join(dir, "empty.log")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	provider.Put(clipboard.Content{Paths: []string{path, "/does/not/exist", empty}})
	event, ok := coordinator.Snapshot()
	if !ok || event.Kind != wire.ClipFiles {
		t.Fatalf("files event not emitted: ok=%v event=%+v", ok, event)
	}

	manifest := event.Files
	if len(manifest.Entries) != 3 {
		t.Fatalf("manifest entries = %d, want 3", len(manifest.Entries))
	}
	if manifest.Entries[0].Name != "notes.txt" || manifest.Entries[0].Size != 12 {
		t.Errorf("entry[0] = %+v, want notes.txt/12", manifest.Entries[0])
	}
	if !manifest.Entries[1].Missing {
		t.Errorf("unreadable file not marked missing: %+v", manifest.Entries[1])
	}
	if manifest.Entries[0].Missing {
		t.Errorf("readable file marked missing: %+v", manifest.Entries[0])
	}
	// A zero-byte file is readable content, not a stat failure.
	if manifest.Entries[2].Missing || manifest.Entries[2].Size != 0 {
		t.Errorf("empty file entry = %+v, want size 0 and not missing", manifest.Entries[2])
	}
	if manifest.TotalSize != 12 {
		t.Errorf("TotalSize = %d, want 12", manifest.TotalSize)
	}
}

func TestClipboardApplyRemoteFilesUsesLocalPaths(t *testing.T) {
	coordinator, provider := newTestCoordinator(t, syncConfig())

	staged := []string{"/tmp/staging/a.txt", "/tmp/staging/b.txt"}
	err := coordinator.ApplyRemote(wire.ClipboardEvent{Kind: wire.ClipFiles}, staged)
	if err != nil {
		t.Fatalf("ApplyRemote error: %v", err)
	}

	content := provider.Snapshot()
	if len(content.Paths) != 2 || content.Paths[0] != staged[0] {
		t.Errorf("clipboard paths = %v, want the staged copies", content.Paths)
	}

	// The change notification from the apply is an echo.
	if event, ok := coordinator.Snapshot(); ok {
		t.Fatalf("files echo re-emitted: %+v", event)
	}
}
