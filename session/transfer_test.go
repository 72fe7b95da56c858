// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/transport"
	"github.com/edgehop/edgehop/wire"
)

// eventRecorder collects emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) transferStates() []TransferState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []TransferState
	for _, event := range r.events {
		if transfer, ok := event.(TransferEvent); ok {
			states = append(states, transfer.State)
		}
	}
	return states
}

func (r *eventRecorder) waitForTransferState(t *testing.T, want TransferState) TransferEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, event := range r.events {
			if transfer, ok := event.(TransferEvent); ok && transfer.State == want {
				r.mu.Unlock()
				return transfer
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no TransferEvent with state %v arrived", want)
	return TransferEvent{}
}

func TestParseBulkLabel(t *testing.T) {
	tests := []struct {
		label  string
		id     uint32
		wantOK bool
	}{
		{"xfer-1", 1, true},
		{"xfer-4294967295", 4294967295, true},
		{"xfer-", 0, false},
		{"xfer-abc", 0, false},
		{"control", 0, false},
		{"xfer-99999999999", 0, false},
	}
	for _, test := range tests {
		id, err := parseBulkLabel(test.label)
		if test.wantOK != (err == nil) {
			t.Errorf("parseBulkLabel(%q): err = %v, wantOK %v", test.label, err, test.wantOK)
			continue
		}
		if test.wantOK && id != test.id {
			t.Errorf("parseBulkLabel(%q) = %d, want %d", test.label, id, test.id)
		}
	}
}

func TestTransferAcceptedStreamsFile(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	senderConn, receiverConn := transport.NewMemoryPair("sender", "receiver")
	defer senderConn.Close()
	defer receiverConn.Close()

	downloadDir := t.TempDir()
	senderEvents := &eventRecorder{}
	receiverEvents := &eventRecorder{}

	sender := NewTransfers(senderConn, config.TransferConfig{}, logger, senderEvents.emit)
	receiver := NewTransfers(receiverConn, config.TransferConfig{DownloadDir: downloadDir, AutoAccept: true}, logger, receiverEvents.emit)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go receiver.RunReceiver(ctx)

	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte("the payload contents"), 0o644); err != nil {
		t.Fatal(err)
	}

	request, err := sender.Announce(path, wire.PurposeManual, 0)
	if err != nil {
		t.Fatalf("Announce error: %v", err)
	}

	response := receiver.HandleRequest(request.TransferRequest)
	if !response.TransferResponse.Accepted {
		t.Fatal("auto-accept rejected the request")
	}
	sender.HandleResponse(ctx, response.TransferResponse)

	complete := receiverEvents.waitForTransferState(t, TransferComplete)
	if complete.Filename != "payload.bin" {
		t.Errorf("completed filename = %q, want payload.bin", complete.Filename)
	}
	senderEvents.waitForTransferState(t, TransferComplete)

	received, err := os.ReadFile(filepath.Join(downloadDir, "payload.bin"))
	if err != nil {
		t.Fatalf("reading received file: %v", err)
	}
	if string(received) != "the payload contents" {
		t.Errorf("received content = %q, want the sent payload", received)
	}
}

func TestTransferRejectedNeverOpensStream(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	senderConn, receiverConn := transport.NewMemoryPair("sender", "receiver")
	defer senderConn.Close()
	defer receiverConn.Close()

	senderEvents := &eventRecorder{}
	receiverEvents := &eventRecorder{}
	sender := NewTransfers(senderConn, config.TransferConfig{}, logger, senderEvents.emit)
	receiver := NewTransfers(receiverConn, config.TransferConfig{AutoAccept: false}, logger, receiverEvents.emit)

	path := filepath.Join(t.TempDir(), "unwanted.bin")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	request, err := sender.Announce(path, wire.PurposeManual, 0)
	if err != nil {
		t.Fatalf("Announce error: %v", err)
	}
	response := receiver.HandleRequest(request.TransferRequest)
	if response.TransferResponse.Accepted {
		t.Fatal("request accepted with auto-accept disabled")
	}

	ctx := context.Background()
	sender.HandleResponse(ctx, response.TransferResponse)

	rejected := senderEvents.waitForTransferState(t, TransferRejected)
	var transferErr *TransferError
	if !errors.As(rejected.Err, &transferErr) {
		t.Errorf("rejection error = %v, want a *TransferError", rejected.Err)
	}

	// No bulk stream may appear on the receiver side.
	acceptCtx, acceptCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer acceptCancel()
	if stream, err := receiverConn.AcceptBulk(acceptCtx); err == nil {
		t.Fatalf("a bulk stream was opened for a rejected transfer: %v", stream.Label)
	}
}

func TestTransferAnnounceMissingFile(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	conn, other := transport.NewMemoryPair("a", "b")
	defer conn.Close()
	defer other.Close()

	transfers := NewTransfers(conn, config.TransferConfig{}, logger, (&eventRecorder{}).emit)
	if _, err := transfers.Announce("/no/such/file", wire.PurposeManual, 0); err == nil {
		t.Error("Announce of a missing file must fail")
	}
}

func TestTransferClipboardBatchCompletion(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	senderConn, receiverConn := transport.NewMemoryPair("sender", "receiver")
	defer senderConn.Close()
	defer receiverConn.Close()

	sourceDir := t.TempDir()
	for name, content := range map[string]string{"a.txt": "alpha", "b.txt": "bravo"} {
		if err := os.WriteFile(filepath.Join(sourceDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	paths := []string{filepath.Join(sourceDir, "a.txt"), filepath.Join(sourceDir, "b.txt")}

	downloadDir := t.TempDir()
	sender := NewTransfers(senderConn, config.TransferConfig{}, logger, (&eventRecorder{}).emit)
	receiver := NewTransfers(receiverConn, config.TransferConfig{DownloadDir: downloadDir}, logger, (&eventRecorder{}).emit)

	staged := make(chan []string, 1)
	receiver.SetBatchCompleteFunc(func(paths []string) { staged <- paths })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go receiver.RunReceiver(ctx)

	manifest := buildManifest(paths)
	requests, batchID := sender.AnnounceClipboardBatch(manifest)
	if len(requests) != 2 {
		t.Fatalf("announced %d transfers, want 2", len(requests))
	}
	manifest.BatchID = batchID

	if !receiver.ExpectBatch(manifest) {
		t.Fatal("ExpectBatch declined a transferable manifest")
	}
	for _, request := range requests {
		response := receiver.HandleRequest(request.TransferRequest)
		if !response.TransferResponse.Accepted {
			t.Fatal("clipboard-sync transfer for a known batch was rejected")
		}
		sender.HandleResponse(ctx, response.TransferResponse)
	}

	select {
	case stagedPaths := <-staged:
		if len(stagedPaths) != 2 {
			t.Fatalf("staged %d files, want 2", len(stagedPaths))
		}
		for _, stagedPath := range stagedPaths {
			if filepath.Dir(stagedPath) != filepath.Join(downloadDir, "clipboard-1") {
				t.Errorf("staged path %q outside the batch staging dir", stagedPath)
			}
			if _, err := os.Stat(stagedPath); err != nil {
				t.Errorf("staged file missing: %v", err)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch completion hook never fired")
	}
}

func TestTransferClipboardBatchCarriesEmptyFile(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	senderConn, receiverConn := transport.NewMemoryPair("sender", "receiver")
	defer senderConn.Close()
	defer receiverConn.Close()

	sourceDir := t.TempDir()
	empty := filepath.Join(sourceDir, "placeholder.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	downloadDir := t.TempDir()
	sender := NewTransfers(senderConn, config.TransferConfig{}, logger, (&eventRecorder{}).emit)
	receiver := NewTransfers(receiverConn, config.TransferConfig{DownloadDir: downloadDir}, logger, (&eventRecorder{}).emit)

	staged := make(chan []string, 1)
	receiver.SetBatchCompleteFunc(func(paths []string) { staged <- paths })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go receiver.RunReceiver(ctx)

	// A zero-byte file and a vanished one: the former transfers, the
	// latter is skipped as missing.
	manifest := buildManifest([]string{empty, filepath.Join(sourceDir, "vanished.txt")})
	requests, batchID := sender.AnnounceClipboardBatch(manifest)
	if len(requests) != 1 {
		t.Fatalf("announced %d transfers, want 1 (the empty file)", len(requests))
	}
	manifest.BatchID = batchID

	if !receiver.ExpectBatch(manifest) {
		t.Fatal("ExpectBatch declined a manifest with a readable empty file")
	}
	response := receiver.HandleRequest(requests[0].TransferRequest)
	if !response.TransferResponse.Accepted {
		t.Fatal("clipboard-sync transfer of an empty file was rejected")
	}
	sender.HandleResponse(ctx, response.TransferResponse)

	select {
	case stagedPaths := <-staged:
		if len(stagedPaths) != 1 {
			t.Fatalf("staged %d files, want 1", len(stagedPaths))
		}
		info, err := os.Stat(stagedPaths[0])
		if err != nil {
			t.Fatalf("staged file missing: %v", err)
		}
		if info.Size() != 0 {
			t.Errorf("staged file size = %d, want 0", info.Size())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch completion hook never fired")
	}
}

func TestTransferDuplicateNamesDoNotOverwrite(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	senderConn, receiverConn := transport.NewMemoryPair("sender", "receiver")
	defer senderConn.Close()
	defer receiverConn.Close()

	downloadDir := t.TempDir()
	senderEvents := &eventRecorder{}
	receiverEvents := &eventRecorder{}
	sender := NewTransfers(senderConn, config.TransferConfig{}, logger, senderEvents.emit)
	receiver := NewTransfers(receiverConn, config.TransferConfig{DownloadDir: downloadDir, AutoAccept: true}, logger, receiverEvents.emit)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go receiver.RunReceiver(ctx)

	// Same basename from two different directories.
	contents := map[string]string{"first": "from the desktop", "second": "from the laptop"}
	for _, content := range []string{contents["first"], contents["second"]} {
		path := filepath.Join(t.TempDir(), "report.txt")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		request, err := sender.Announce(path, wire.PurposeManual, 0)
		if err != nil {
			t.Fatalf("Announce error: %v", err)
		}
		response := receiver.HandleRequest(request.TransferRequest)
		if !response.TransferResponse.Accepted {
			t.Fatal("auto-accept rejected the request")
		}
		sender.HandleResponse(ctx, response.TransferResponse)
	}

	waitUntil(t, "both transfers complete", func() bool {
		count := 0
		for _, state := range receiverEvents.transferStates() {
			if state == TransferComplete {
				count++
			}
		}
		return count == 2
	})

	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("download dir holds %d files, want 2 (one was overwritten)", len(entries))
	}
	received := make(map[string]bool)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(downloadDir, entry.Name()))
		if err != nil {
			t.Fatal(err)
		}
		received[string(data)] = true
	}
	if !received[contents["first"]] || !received[contents["second"]] {
		t.Errorf("received contents = %v, want both payloads intact", received)
	}
}
