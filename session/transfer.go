// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/transport"
	"github.com/edgehop/edgehop/wire"
)

// TransferState is a file transfer's position in its lifecycle.
type TransferState uint8

const (
	// TransferAnnounced: request sent or received, answer pending.
	TransferAnnounced TransferState = iota + 1
	// TransferAccepted: positive response exchanged, stream not open.
	TransferAccepted
	// TransferStreaming: the bulk stream is moving bytes.
	TransferStreaming
	// TransferComplete: all bytes landed.
	TransferComplete
	// TransferRejected: the receiving side declined.
	TransferRejected
	// TransferFailed: the stream broke mid-flight. Partial data is
	// discarded; retrying means a fresh request.
	TransferFailed
)

// String returns the state name for logging and display.
func (s TransferState) String() string {
	switch s {
	case TransferAnnounced:
		return "announced"
	case TransferAccepted:
		return "accepted"
	case TransferStreaming:
		return "streaming"
	case TransferComplete:
		return "complete"
	case TransferRejected:
		return "rejected"
	case TransferFailed:
		return "failed"
	}
	return "unknown"
}

// TransferError is a failure scoped to one transfer id. It never
// affects the enclosing session.
type TransferError struct {
	ID       uint32
	Filename string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %d (%s): %v", e.ID, e.Filename, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// bulkLabel names the dedicated stream for one transfer id.
func bulkLabel(id uint32) string {
	return fmt.Sprintf("xfer-%d", id)
}

func parseBulkLabel(label string) (uint32, error) {
	digits, ok := strings.CutPrefix(label, "xfer-")
	if !ok {
		return 0, fmt.Errorf("bulk stream label %q is not a transfer label", label)
	}
	id, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bulk stream label %q: %w", label, err)
	}
	return uint32(id), nil
}

type outboundTransfer struct {
	id       uint32
	path     string
	filename string
	size     uint64
	state    TransferState
}

type inboundTransfer struct {
	id       uint32
	filename string
	size     uint64
	state    TransferState
	dest     string
	batchID  uint64
}

// clipboardBatch tracks the transfers materializing one remote Files
// clipboard. When the last one lands, the local clipboard is set to
// the staged copies.
type clipboardBatch struct {
	id        uint64
	dir       string
	remaining int
	paths     []string
}

// Transfers is the per-connection file transfer negotiator. The
// request/response handshake runs on the ordered control stream (the
// session loop calls Announce / HandleRequest / HandleResponse and
// writes the frames they return); the payload travels on a dedicated
// bulk stream per transfer id, opened only after acceptance, so one
// slow transfer never blocks input traffic or another transfer.
type Transfers struct {
	conn   transport.Conn
	cfg    config.TransferConfig
	logger *slog.Logger
	emit   func(Event)

	// onBatchComplete fires when the last transfer of a clipboard
	// batch lands, with the staged local paths in manifest order.
	onBatchComplete func(paths []string)

	mu        sync.Mutex
	nextID    uint32
	nextBatch uint64
	outbound  map[uint32]*outboundTransfer
	inbound   map[uint32]*inboundTransfer
	batches   map[uint64]*clipboardBatch
}

// NewTransfers creates the negotiator for one connection. emit
// delivers TransferEvents; it must be safe to call from transfer
// goroutines.
func NewTransfers(conn transport.Conn, cfg config.TransferConfig, logger *slog.Logger, emit func(Event)) *Transfers {
	return &Transfers{
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		emit:     emit,
		outbound: make(map[uint32]*outboundTransfer),
		inbound:  make(map[uint32]*inboundTransfer),
		batches:  make(map[uint64]*clipboardBatch),
	}
}

// SetBatchCompleteFunc installs the clipboard-batch completion hook.
func (t *Transfers) SetBatchCompleteFunc(fn func(paths []string)) {
	t.onBatchComplete = fn
}

// Announce registers an outbound transfer and returns the request
// frame to send on the control stream.
func (t *Transfers) Announce(path string, purpose wire.TransferPurpose, batchID uint64) (wire.Frame, error) {
	info, err := os.Stat(path)
	if err != nil {
		return wire.Frame{}, fmt.Errorf("announcing transfer of %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return wire.Frame{}, fmt.Errorf("announcing transfer of %s: not a regular file", path)
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	transfer := &outboundTransfer{
		id:       id,
		path:     path,
		filename: filepath.Base(path),
		size:     uint64(info.Size()),
		state:    TransferAnnounced,
	}
	t.outbound[id] = transfer
	t.mu.Unlock()

	t.emit(TransferEvent{ID: id, Filename: transfer.filename, Size: transfer.size, State: TransferAnnounced})
	return wire.TransferRequestFrame(wire.TransferRequest{
		ID:       id,
		Filename: transfer.filename,
		Size:     transfer.size,
		Purpose:  purpose,
		BatchID:  batchID,
	}), nil
}

// AnnounceClipboardBatch announces one clipboard-sync transfer per
// readable file in the manifest and returns the request frames plus
// the batch id to stamp on the Files clipboard event that precedes
// them. Empty files transfer like any other; only Missing entries are
// skipped.
func (t *Transfers) AnnounceClipboardBatch(manifest *wire.FileManifest) ([]wire.Frame, uint64) {
	t.mu.Lock()
	t.nextBatch++
	batchID := t.nextBatch
	t.mu.Unlock()

	var frames []wire.Frame
	for index, path := range manifest.Paths {
		if index < len(manifest.Entries) && manifest.Entries[index].Missing {
			continue
		}
		frame, err := t.Announce(path, wire.PurposeClipboardSync, batchID)
		if err != nil {
			t.logger.Warn("skipping clipboard file", "path", path, "error", err)
			continue
		}
		frames = append(frames, frame)
	}
	return frames, batchID
}

// ExpectBatch registers an inbound clipboard batch from a peer's Files
// event. The clipboard-sync transfers that follow are accepted into a
// per-batch staging directory; when the last one lands the completion
// hook fires with the staged paths. Returns false when the manifest
// carries nothing transferable.
func (t *Transfers) ExpectBatch(manifest *wire.FileManifest) bool {
	if manifest == nil || manifest.BatchID == 0 {
		return false
	}
	expected := 0
	for _, entry := range manifest.Entries {
		if !entry.Missing {
			expected++
		}
	}
	if expected == 0 {
		return false
	}

	dir := filepath.Join(t.cfg.DownloadDir, fmt.Sprintf("clipboard-%d", manifest.BatchID))
	t.mu.Lock()
	t.batches[manifest.BatchID] = &clipboardBatch{
		id:        manifest.BatchID,
		dir:       dir,
		remaining: expected,
	}
	t.mu.Unlock()
	return true
}

// HandleRequest applies the acceptance policy to an inbound request
// and returns the response frame to send. Clipboard-sync transfers for
// a known batch are always accepted (the user already copied the
// files); manual transfers follow the auto-accept setting.
func (t *Transfers) HandleRequest(request *wire.TransferRequest) wire.Frame {
	t.mu.Lock()
	var batch *clipboardBatch
	if request.Purpose == wire.PurposeClipboardSync {
		batch = t.batches[request.BatchID]
	}

	accepted := batch != nil || (request.Purpose == wire.PurposeManual && t.cfg.AutoAccept)
	if accepted {
		dir := t.cfg.DownloadDir
		batchID := uint64(0)
		if batch != nil {
			dir = batch.dir
			batchID = batch.id
		}
		t.inbound[request.ID] = &inboundTransfer{
			id:       request.ID,
			filename: request.Filename,
			size:     request.Size,
			state:    TransferAccepted,
			dest:     t.destPath(dir, request.Filename, request.ID),
			batchID:  batchID,
		}
	}
	t.mu.Unlock()

	state := TransferAccepted
	if !accepted {
		state = TransferRejected
	}
	t.emit(TransferEvent{ID: request.ID, Filename: request.Filename, Size: request.Size, State: state})
	t.logger.Info("inbound transfer request",
		"id", request.ID, "filename", request.Filename, "size", request.Size,
		"purpose", request.Purpose, "accepted", accepted)
	return wire.TransferResponseFrame(wire.TransferResponse{ID: request.ID, Accepted: accepted})
}

// destPath picks a destination for one accepted transfer. Two
// transfers sharing a basename must not truncate each other, so a name
// already claimed — by a file on disk or an in-flight inbound transfer
// — gets the transfer id spliced in before the extension. Called with
// t.mu held.
func (t *Transfers) destPath(dir, filename string, id uint32) string {
	base := filepath.Base(filename)
	dest := filepath.Join(dir, base)
	if !t.destTaken(dest) {
		return dest
	}
	extension := filepath.Ext(base)
	stem := strings.TrimSuffix(base, extension)
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, id, extension))
}

func (t *Transfers) destTaken(dest string) bool {
	for _, transfer := range t.inbound {
		if transfer.dest == dest {
			return true
		}
	}
	_, err := os.Stat(dest)
	return err == nil
}

// HandleResponse reacts to the peer's answer for a transfer this side
// announced. On acceptance the payload starts streaming on its own
// bulk stream; the session loop is not involved again until the
// completion or failure event.
func (t *Transfers) HandleResponse(ctx context.Context, response *wire.TransferResponse) {
	t.mu.Lock()
	transfer, ok := t.outbound[response.ID]
	if ok && !response.Accepted {
		transfer.state = TransferRejected
		delete(t.outbound, response.ID)
	}
	if ok && response.Accepted {
		transfer.state = TransferStreaming
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("response for unknown transfer id", "id", response.ID)
		return
	}
	if !response.Accepted {
		t.emit(TransferEvent{
			ID: transfer.id, Filename: transfer.filename, Size: transfer.size,
			State: TransferRejected,
			Err:   &TransferError{ID: transfer.id, Filename: transfer.filename, Err: errors.New("rejected by peer")},
		})
		return
	}

	t.emit(TransferEvent{ID: transfer.id, Filename: transfer.filename, Size: transfer.size, State: TransferStreaming})
	go t.streamOut(ctx, transfer)
}

// streamOut pushes one file onto its dedicated bulk stream. Failures
// are scoped to the transfer id.
func (t *Transfers) streamOut(ctx context.Context, transfer *outboundTransfer) {
	err := func() error {
		file, err := os.Open(transfer.path)
		if err != nil {
			return err
		}
		defer file.Close()

		stream, err := t.conn.OpenBulk(ctx, bulkLabel(transfer.id))
		if err != nil {
			return err
		}
		if _, err := io.Copy(stream, file); err != nil {
			stream.Close()
			return err
		}
		return stream.Close()
	}()

	t.mu.Lock()
	delete(t.outbound, transfer.id)
	t.mu.Unlock()

	if err != nil {
		t.failTransfer(transfer.id, transfer.filename, transfer.size, err)
		return
	}
	t.emit(TransferEvent{ID: transfer.id, Filename: transfer.filename, Size: transfer.size, State: TransferComplete})
	t.logger.Info("transfer sent", "id", transfer.id, "filename", transfer.filename, "bytes", transfer.size)
}

// RunReceiver accepts inbound bulk streams until the context or the
// connection dies. One goroutine per connection, started by the
// session loop.
func (t *Transfers) RunReceiver(ctx context.Context) {
	for {
		stream, err := t.conn.AcceptBulk(ctx)
		if err != nil {
			return
		}
		go t.receive(stream)
	}
}

// receive drains one inbound bulk stream into its destination file.
func (t *Transfers) receive(stream *transport.BulkStream) {
	defer stream.Reader.Close()

	id, err := parseBulkLabel(stream.Label)
	if err != nil {
		t.logger.Warn("discarding unrecognized bulk stream", "label", stream.Label, "error", err)
		return
	}

	t.mu.Lock()
	transfer, ok := t.inbound[id]
	if ok {
		transfer.state = TransferStreaming
	}
	t.mu.Unlock()

	if !ok {
		// A stream for an id this side never accepted. Hostile or
		// confused peer; drain nothing.
		t.logger.Warn("bulk stream for unnegotiated transfer", "id", id)
		return
	}

	written, err := t.writeFile(transfer, stream.Reader)

	t.mu.Lock()
	delete(t.inbound, id)
	t.mu.Unlock()

	if err == nil && written != transfer.size {
		err = fmt.Errorf("received %d bytes, announced %d", written, transfer.size)
	}
	if err != nil {
		os.Remove(transfer.dest)
		t.failTransfer(transfer.id, transfer.filename, transfer.size, err)
		return
	}

	t.emit(TransferEvent{ID: transfer.id, Filename: transfer.filename, Size: transfer.size, State: TransferComplete})
	t.logger.Info("transfer received", "id", transfer.id, "filename", transfer.filename, "bytes", written, "dest", transfer.dest)

	if transfer.batchID != 0 {
		t.completeBatchEntry(transfer)
	}
}

func (t *Transfers) writeFile(transfer *inboundTransfer, reader io.Reader) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(transfer.dest), 0o755); err != nil {
		return 0, err
	}
	file, err := os.OpenFile(transfer.dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	// One extra byte so an overlong stream shows up as a size mismatch
	// instead of silently truncating to the announced size.
	written, err := io.Copy(file, io.LimitReader(reader, int64(transfer.size)+1))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return uint64(written), err
}

func (t *Transfers) completeBatchEntry(transfer *inboundTransfer) {
	t.mu.Lock()
	batch := t.batches[transfer.batchID]
	var done []string
	if batch != nil {
		batch.paths = append(batch.paths, transfer.dest)
		batch.remaining--
		if batch.remaining <= 0 {
			done = batch.paths
			delete(t.batches, transfer.batchID)
		}
	}
	t.mu.Unlock()

	if done != nil && t.onBatchComplete != nil {
		t.onBatchComplete(done)
	}
}

func (t *Transfers) failTransfer(id uint32, filename string, size uint64, cause error) {
	transferErr := &TransferError{ID: id, Filename: filename, Err: cause}
	t.logger.Warn("transfer failed", "id", id, "filename", filename, "error", cause)
	t.emit(TransferEvent{ID: id, Filename: filename, Size: size, State: TransferFailed, Err: transferErr})
}
