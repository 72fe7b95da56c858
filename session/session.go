// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edgehop/edgehop/lib/clock"
	"github.com/edgehop/edgehop/lib/config"
	"github.com/edgehop/edgehop/transport"
	"github.com/edgehop/edgehop/wire"
)

// watchdogCheckInterval is how often the liveness timestamp is
// evaluated against the timeout.
const watchdogCheckInterval = time.Second

// handshakeTimeout bounds the wait for the peer's Handshake frame on a
// fresh connection.
const handshakeTimeout = 10 * time.Second

// eventBuffer sizes the front-end event channel. A front-end that
// stops draining loses events rather than stalling the session loop.
const eventBuffer = 128

// Capability names exchanged in the handshake. A peer that omits one
// never receives the corresponding frames.
const (
	capClipboard    = "clipboard"
	capFileTransfer = "file-transfer"
)

// capabilities this implementation announces in its handshake.
var localCapabilities = []string{capClipboard, capFileTransfer}

// ErrWatchdogTimeout reports an inferred dead peer: no inbound frame
// of any kind within the configured timeout. There is no secondary
// probing — abrupt power loss never sends a close frame, so silence is
// the only signal.
var ErrWatchdogTimeout = errors.New("no inbound traffic within watchdog timeout")

// errUserDisconnect marks the one graceful termination path.
var errUserDisconnect = errors.New("disconnected by user command")

// ConnectionError is a transport-level failure. Always fatal to the
// current connection attempt; the termination sequence runs before it
// surfaces to the front-end.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HandshakeError reports a peer that spoke, but wrongly: version skew
// or a non-handshake first frame.
type HandshakeError struct {
	Detail string
}

func (e *HandshakeError) Error() string {
	return "handshake failed: " + e.Detail
}

// readFrames decodes frames off the control stream onto a channel.
// One goroutine per connection; it exits on read error (delivered to
// errs) or when done closes. This is what lets the session loop select
// over the network alongside its other sources.
func readFrames(stream io.Reader, frames chan<- wire.Frame, errs chan<- error, done <-chan struct{}, logger *slog.Logger) {
	for {
		frame, err := wire.ReadFrame(stream)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownVariant) {
				// Protocol version skew. The length-delimited body was
				// fully consumed, so the stream is still aligned; skip
				// the frame rather than killing the session.
				logger.Warn("skipping frame from a newer protocol", "error", err)
				continue
			}
			errs <- err
			return
		}
		select {
		case frames <- frame:
		case <-done:
			return
		}
	}
}

// peerSession is the state shared by the server and client loop
// variants for one live connection: the control stream, the clipboard
// coordinator, and the transfer negotiator. Frame writes go through
// send, only ever from the session loop goroutine.
type peerSession struct {
	cfg       *config.Config
	clk       clock.Clock
	logger    *slog.Logger
	emit      func(Event)
	conn      transport.Conn
	clip      *ClipboardCoordinator
	transfers *Transfers

	// peerCaps is what the peer declared in its handshake. Written
	// once during the exchange, read only by the session loop.
	peerCaps map[string]bool
}

func newPeerSession(cfg *config.Config, clk clock.Clock, logger *slog.Logger, emit func(Event), conn transport.Conn, clip *ClipboardCoordinator) *peerSession {
	session := &peerSession{
		cfg:    cfg,
		clk:    clk,
		logger: logger,
		emit:   emit,
		conn:   conn,
		clip:   clip,
	}
	session.transfers = NewTransfers(conn, cfg.Transfer, logger, emit)
	session.transfers.SetBatchCompleteFunc(func(paths []string) {
		// The staged copies become this machine's clipboard only once
		// every file of the batch has landed.
		err := clip.ApplyRemote(wire.ClipboardEvent{Kind: wire.ClipFiles}, paths)
		if err != nil {
			logger.Warn("applying clipboard batch failed", "error", err)
		}
	})
	return session
}

// send writes one frame on the control stream.
func (p *peerSession) send(frame wire.Frame) error {
	if err := wire.WriteFrame(p.conn.Control(), frame); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// exchangeHandshake sends this side's Handshake and waits for the
// peer's, which must be the first inbound frame. Both sides send
// eagerly; neither waits to receive first, so the exchange cannot
// deadlock.
func (p *peerSession) exchangeHandshake(ctx context.Context, frames <-chan wire.Frame, readErrs <-chan error) (*wire.Handshake, error) {
	err := p.send(wire.HandshakeFrame(wire.Handshake{
		Version:      wire.ProtocolVersion,
		Name:         p.cfg.Name,
		Capabilities: localCapabilities,
	}))
	if err != nil {
		return nil, err
	}

	select {
	case frame := <-frames:
		if frame.Type != wire.FrameHandshake {
			return nil, &HandshakeError{Detail: fmt.Sprintf("first frame was %s, want handshake", frame.Type)}
		}
		peer := frame.Handshake
		if peer.Version != wire.ProtocolVersion {
			return nil, &HandshakeError{Detail: fmt.Sprintf("peer protocol version %d, want %d", peer.Version, wire.ProtocolVersion)}
		}
		p.setPeerCapabilities(peer.Capabilities)
		p.emit(HandshakeEvent{Peer: peer.Name, Version: peer.Version, Capabilities: peer.Capabilities})
		p.logger.Info("handshake complete", "peer", peer.Name, "capabilities", peer.Capabilities)
		return peer, nil
	case err := <-readErrs:
		return nil, &ConnectionError{Err: err}
	case <-p.clk.After(handshakeTimeout):
		return nil, &HandshakeError{Detail: "peer sent no handshake within " + handshakeTimeout.String()}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// setPeerCapabilities records the peer's declared feature set.
func (p *peerSession) setPeerCapabilities(capabilities []string) {
	p.peerCaps = make(map[string]bool, len(capabilities))
	for _, capability := range capabilities {
		p.peerCaps[capability] = true
	}
}

func (p *peerSession) peerHas(capability string) bool {
	return p.peerCaps[capability]
}

// handleCommon dispatches the frame variants both roles treat alike:
// heartbeats (liveness was already credited by the caller), clipboard,
// transfer negotiation, and notifications. Returns false for frames
// the role-specific loop must handle.
func (p *peerSession) handleCommon(ctx context.Context, frame wire.Frame) (bool, error) {
	switch frame.Type {
	case wire.FrameHeartbeat:
		return true, nil
	case wire.FrameHandshake:
		// A second handshake mid-session is peer confusion, not a
		// threat. Ignore it.
		p.logger.Warn("unexpected handshake mid-session", "peer", frame.Handshake.Name)
		return true, nil
	case wire.FrameClipboard:
		p.applyRemoteClipboard(*frame.Clipboard)
		return true, nil
	case wire.FrameTransferRequest:
		return true, p.send(p.transfers.HandleRequest(frame.TransferRequest))
	case wire.FrameTransferResponse:
		p.transfers.HandleResponse(ctx, frame.TransferResponse)
		return true, nil
	case wire.FrameNotification:
		p.emit(NotificationEvent{Title: frame.Notification.Title, Message: frame.Notification.Message})
		return true, nil
	}
	return false, nil
}

// applyRemoteClipboard lands a peer clipboard event locally. Text and
// images apply immediately; a Files event only registers the expected
// clipboard-sync batch — the local clipboard changes when the staged
// copies are all present, never to the peer's (meaningless here) paths.
func (p *peerSession) applyRemoteClipboard(event wire.ClipboardEvent) {
	if !p.cfg.Clipboard.Sync {
		return
	}
	if event.Kind == wire.ClipFiles {
		if !p.transfers.ExpectBatch(event.Files) {
			p.logger.Debug("files clipboard event carried nothing transferable")
		}
		return
	}
	if err := p.clip.ApplyRemote(event, nil); err != nil {
		p.logger.Warn("applying remote clipboard failed", "error", err)
	}
}

// sendClipboardChange snapshots the local clipboard after a change
// notification and sends the resulting event, if any. A Files event is
// preceded by its batch id assignment and followed by one transfer
// request per file.
func (p *peerSession) sendClipboardChange() error {
	if !p.peerHas(capClipboard) {
		return nil
	}
	event, ok := p.clip.Snapshot()
	if !ok {
		return nil
	}

	if event.Kind == wire.ClipFiles {
		// A files clipboard is materialized by transfers, so it needs
		// the peer to support both features.
		if !p.peerHas(capFileTransfer) {
			p.logger.Debug("peer cannot receive files clipboard", "peer", p.conn.PeerName())
			return nil
		}
		requests, batchID := p.transfers.AnnounceClipboardBatch(event.Files)
		event.Files.BatchID = batchID
		if err := p.send(wire.ClipboardFrame(event)); err != nil {
			return err
		}
		for _, request := range requests {
			if err := p.send(request); err != nil {
				return err
			}
		}
		return nil
	}
	return p.send(wire.ClipboardFrame(event))
}

// handleSendFile starts a manual transfer. Failures are scoped: a
// missing file or an incapable peer is reported, the session continues.
func (p *peerSession) handleSendFile(path string) error {
	if !p.peerHas(capFileTransfer) {
		p.emit(ErrorEvent{Err: fmt.Errorf("peer %s does not support file transfer", p.conn.PeerName())})
		return nil
	}
	frame, err := p.transfers.Announce(path, wire.PurposeManual, 0)
	if err != nil {
		p.emit(ErrorEvent{Err: err})
		return nil
	}
	return p.send(frame)
}
