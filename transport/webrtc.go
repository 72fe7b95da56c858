// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// controlChannelLabel is the data channel carrying the ordered frame
// stream. The dialer creates it; the listener waits for it.
const controlChannelLabel = "control"

// iceGatherTimeout is the maximum time to wait for ICE candidate
// gathering to complete before the SDP is exchanged (vanilla ICE: all
// candidates travel embedded in the SDP, one signaling round trip).
const iceGatherTimeout = 15 * time.Second

// iceConnectTimeout is the maximum time to wait for the PeerConnection
// to reach the Connected state after the SDP exchange.
const iceConnectTimeout = 30 * time.Second

// channelOpenTimeout is the maximum time to wait for a data channel to
// open on an established PeerConnection.
const channelOpenTimeout = 10 * time.Second

// ICEConfig holds STUN/TURN server configuration for candidate
// gathering. The zero value gathers host candidates only, which is
// sufficient for the same-LAN deployments a software KVM usually runs
// in; cross-NAT setups add servers here.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// Compile-time interface check.
var _ Conn = (*WebRTCConn)(nil)

// WebRTCConn is a Conn over pion data channels. One PeerConnection per
// session: the "control" channel is the ordered reliable stream, and
// each file transfer opens its own SCTP-multiplexed channel, so bulk
// payloads and latency-sensitive frames never share a queue. DTLS
// provides the encrypted channel.
type WebRTCConn struct {
	pc       *webrtc.PeerConnection
	peerName string
	logger   *slog.Logger

	// control is set once during session establishment, before the
	// Conn is handed to its session loop.
	control io.ReadWriteCloser

	// inboundControl delivers the listener side's control channel once
	// the dialer's channel arrives and opens.
	inboundControl chan io.ReadWriteCloser

	// inboundBulk delivers peer-opened bulk streams to AcceptBulk.
	inboundBulk chan *BulkStream

	// established is closed when ICE reaches Connected or Completed.
	established     chan struct{}
	establishedOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
}

func newWebRTCConn(pc *webrtc.PeerConnection, peerName string, logger *slog.Logger) *WebRTCConn {
	conn := &WebRTCConn{
		pc:             pc,
		peerName:       peerName,
		logger:         logger,
		inboundControl: make(chan io.ReadWriteCloser, 1),
		inboundBulk:    make(chan *BulkStream, 8),
		established:    make(chan struct{}),
		closed:         make(chan struct{}),
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("ICE state change", "peer", peerName, "state", state.String())
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			conn.establishedOnce.Do(func() { close(conn.established) })
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			// The session loop observes the failure as EOF on the
			// control stream; Close here unblocks everything else.
			conn.Close()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		conn.handleInboundChannel(dc)
	})

	return conn
}

// handleInboundChannel detaches peer-opened data channels and routes
// them: the control channel to session establishment, everything else
// to AcceptBulk as a bulk stream.
func (c *WebRTCConn) handleInboundChannel(dc *webrtc.DataChannel) {
	label := dc.Label()
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			c.logger.Error("detaching inbound data channel failed",
				"peer", c.peerName, "label", label, "error", err)
			dc.Close()
			return
		}

		if label == controlChannelLabel {
			select {
			case c.inboundControl <- raw:
			default:
				// Duplicate control channel: protocol violation.
				c.logger.Warn("duplicate control channel from peer", "peer", c.peerName)
				raw.Close()
			}
			return
		}

		stream := &BulkStream{Label: label, Reader: raw}
		select {
		case c.inboundBulk <- stream:
		case <-c.closed:
			raw.Close()
		}
	})
}

// Control returns the ordered reliable frame stream.
func (c *WebRTCConn) Control() io.ReadWriteCloser {
	return c.control
}

// OpenBulk opens a dedicated, labeled data channel for a bulk payload.
func (c *WebRTCConn) OpenBulk(ctx context.Context, label string) (io.WriteCloser, error) {
	select {
	case <-c.closed:
		return nil, net.ErrClosed
	default:
	}

	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating bulk channel %s: %w", label, err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	select {
	case <-opened:
	case <-time.After(channelOpenTimeout):
		dc.Close()
		return nil, fmt.Errorf("bulk channel %s did not open within %s", label, channelOpenTimeout)
	case <-ctx.Done():
		dc.Close()
		return nil, ctx.Err()
	case <-c.closed:
		dc.Close()
		return nil, net.ErrClosed
	}

	raw, err := dc.Detach()
	if err != nil {
		dc.Close()
		return nil, fmt.Errorf("detaching bulk channel %s: %w", label, err)
	}
	return raw, nil
}

// AcceptBulk blocks until the peer opens a bulk stream.
func (c *WebRTCConn) AcceptBulk(ctx context.Context) (*BulkStream, error) {
	select {
	case stream := <-c.inboundBulk:
		return stream, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

// PeerName returns the peer identity from signaling.
func (c *WebRTCConn) PeerName() string {
	return c.peerName
}

// Close tears down the PeerConnection, unblocking pending reads on the
// control stream and all bulk streams.
func (c *WebRTCConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.pc.Close()
}

// Dial establishes a session to the peer's signaling address. It
// creates the PeerConnection and control channel, exchanges offer and
// answer over one short-lived TCP connection, and returns once ICE is
// connected and the control channel is open.
func Dial(ctx context.Context, address, localName string, ice ICEConfig, logger *slog.Logger) (Conn, error) {
	pc, err := newPeerConnection(ice)
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	conn := newWebRTCConn(pc, "", logger)
	succeeded := false
	defer func() {
		if !succeeded {
			conn.Close()
		}
	}()

	ordered := true
	dc, err := pc.CreateDataChannel(controlChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating control channel: %w", err)
	}

	controlReady := make(chan io.ReadWriteCloser, 1)
	dc.OnOpen(func() {
		raw, detachErr := dc.Detach()
		if detachErr != nil {
			logger.Error("detaching control channel failed", "error", detachErr)
			conn.Close()
			return
		}
		controlReady <- raw
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return nil, fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// One TCP round trip carries the complete SDPs.
	tcpConn, err := (&net.Dialer{Timeout: signalTimeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to signaling address %s: %w", address, err)
	}
	defer tcpConn.Close()

	if err := writeSignal(tcpConn, signalEnvelope{
		Protocol: Protocol,
		Kind:     "offer",
		Name:     localName,
		SDP:      pc.LocalDescription().SDP,
	}); err != nil {
		return nil, fmt.Errorf("sending offer: %w", err)
	}

	answer, err := readSignal(tcpConn)
	if err != nil {
		return nil, err
	}
	if answer.Kind != "answer" {
		return nil, fmt.Errorf("expected answer envelope, got %q", answer.Kind)
	}
	conn.peerName = answer.Name

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	select {
	case <-conn.established:
	case <-time.After(iceConnectTimeout):
		return nil, fmt.Errorf("ICE did not connect within %s", iceConnectTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-conn.closed:
		return nil, net.ErrClosed
	}

	select {
	case control := <-controlReady:
		conn.control = control
	case <-time.After(channelOpenTimeout):
		return nil, fmt.Errorf("control channel did not open within %s", channelOpenTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-conn.closed:
		return nil, net.ErrClosed
	}

	logger.Info("session transport established", "peer", conn.peerName, "address", address)
	succeeded = true
	return conn, nil
}

// Listener accepts inbound sessions: a TCP listener for the signaling
// exchange, producing one WebRTC-backed Conn per successful handshake.
type Listener struct {
	name   string
	ice    ICEConfig
	logger *slog.Logger

	tcp   net.Listener
	conns chan Conn

	closed    chan struct{}
	closeOnce sync.Once
}

// Listen binds the signaling address and starts accepting sessions.
// Use ":0" for a random port; Address reports the bound address.
func Listen(bind, name string, ice ICEConfig, logger *slog.Logger) (*Listener, error) {
	tcp, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}

	listener := &Listener{
		name:   name,
		ice:    ice,
		logger: logger,
		tcp:    tcp,
		conns:  make(chan Conn),
		closed: make(chan struct{}),
	}
	go listener.acceptLoop()
	return listener, nil
}

// Address returns the bound signaling address in host:port form.
func (l *Listener) Address() string {
	return l.tcp.Addr().String()
}

// Accept blocks until an inbound session completes its handshake.
func (l *Listener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

// Close stops accepting sessions. Established Conns stay alive; their
// owners close them.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return l.tcp.Close()
}

func (l *Listener) acceptLoop() {
	for {
		tcpConn, err := l.tcp.Accept()
		if err != nil {
			select {
			case <-l.closed:
			default:
				l.logger.Error("signaling accept failed", "error", err)
			}
			return
		}
		go l.handleSignaling(tcpConn)
	}
}

// handleSignaling answers one inbound offer and delivers the resulting
// Conn to Accept. Each signaling connection is independent: a stalled
// or hostile peer burns its own goroutine and deadline, nothing else.
func (l *Listener) handleSignaling(tcpConn net.Conn) {
	defer tcpConn.Close()
	remote := tcpConn.RemoteAddr().String()

	offer, err := readSignal(tcpConn)
	if err != nil {
		l.logger.Warn("rejecting signaling connection", "remote", remote, "error", err)
		rejectSignal(tcpConn, l.name, err.Error())
		return
	}
	if offer.Kind != "offer" {
		rejectSignal(tcpConn, l.name, fmt.Sprintf("expected offer envelope, got %q", offer.Kind))
		return
	}

	pc, err := newPeerConnection(l.ice)
	if err != nil {
		l.logger.Error("creating PeerConnection failed", "error", err)
		rejectSignal(tcpConn, l.name, "internal error")
		return
	}

	conn := newWebRTCConn(pc, offer.Name, l.logger)
	succeeded := false
	defer func() {
		if !succeeded {
			conn.Close()
		}
	}()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		l.logger.Warn("rejecting malformed offer", "remote", remote, "error", err)
		rejectSignal(tcpConn, l.name, "malformed SDP offer")
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		l.logger.Error("creating SDP answer failed", "error", err)
		rejectSignal(tcpConn, l.name, "internal error")
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		l.logger.Error("setting local description failed", "error", err)
		rejectSignal(tcpConn, l.name, "internal error")
		return
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		l.logger.Warn("ICE gathering timed out", "remote", remote)
		return
	case <-l.closed:
		return
	}

	if err := writeSignal(tcpConn, signalEnvelope{
		Protocol: Protocol,
		Kind:     "answer",
		Name:     l.name,
		SDP:      pc.LocalDescription().SDP,
	}); err != nil {
		l.logger.Warn("sending answer failed", "remote", remote, "error", err)
		return
	}

	select {
	case <-conn.established:
	case <-time.After(iceConnectTimeout):
		l.logger.Warn("ICE did not connect", "peer", offer.Name)
		return
	case <-l.closed:
		return
	}

	select {
	case control := <-conn.inboundControl:
		conn.control = control
	case <-time.After(channelOpenTimeout):
		l.logger.Warn("peer never opened a control channel", "peer", offer.Name)
		return
	case <-l.closed:
		return
	}

	l.logger.Info("session transport established", "peer", offer.Name, "remote", remote)

	select {
	case l.conns <- conn:
		succeeded = true
	case <-l.closed:
	}
}

// newPeerConnection creates a pion PeerConnection with data channel
// detach enabled (stream-oriented ReadWriteCloser access) and loopback
// candidates included (same-machine sessions and test environments).
func newPeerConnection(ice ICEConfig) (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: ice.Servers})
}
