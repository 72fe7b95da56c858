// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ProtocolVersion is the wire protocol version carried in the Handshake
// frame. Peers with mismatched versions refuse the session.
const ProtocolVersion = 1

// FrameType tags the variant of a Frame. The set is closed: decoding an
// unrecognized tag yields ErrUnknownVariant, never a panic, so a newer
// peer can speak to an older one and be refused gracefully.
type FrameType uint8

const (
	// FrameHandshake is the first frame in each direction on a new
	// connection: peer identity and protocol version.
	FrameHandshake FrameType = iota + 1

	// FrameHeartbeat is a liveness pulse with no payload.
	FrameHeartbeat

	// FrameInput carries one user input event.
	FrameInput

	// FrameClipboard carries one clipboard content change.
	FrameClipboard

	// FrameTransferRequest announces an incoming bulk stream.
	FrameTransferRequest

	// FrameTransferResponse answers a transfer request.
	FrameTransferResponse

	// FrameNotification carries a user-visible notice for the peer's
	// front-end.
	FrameNotification
)

// String returns the frame type name for logging.
func (t FrameType) String() string {
	switch t {
	case FrameHandshake:
		return "handshake"
	case FrameHeartbeat:
		return "heartbeat"
	case FrameInput:
		return "input"
	case FrameClipboard:
		return "clipboard"
	case FrameTransferRequest:
		return "transfer-request"
	case FrameTransferResponse:
		return "transfer-response"
	case FrameNotification:
		return "notification"
	}
	return "unknown"
}

// Frame is the wire envelope: a variant tag plus exactly one payload
// field matching the tag (none for Heartbeat). Frames are constructed,
// serialized, transmitted, and dropped — nothing is persisted.
type Frame struct {
	Type FrameType `cbor:"t"`

	Handshake        *Handshake        `cbor:"hs,omitempty"`
	Input            *InputEvent       `cbor:"in,omitempty"`
	Clipboard        *ClipboardEvent   `cbor:"cb,omitempty"`
	TransferRequest  *TransferRequest  `cbor:"trq,omitempty"`
	TransferResponse *TransferResponse `cbor:"trs,omitempty"`
	Notification     *Notification     `cbor:"nt,omitempty"`
}

// Handshake identifies a peer. It is the first frame either side sends.
type Handshake struct {
	// Version is the sender's ProtocolVersion.
	Version uint32 `cbor:"v"`

	// Name identifies the sending machine (hostname by default).
	Name string `cbor:"name"`

	// Capabilities lists optional features the sender supports, e.g.
	// "clipboard", "file-transfer". Absence degrades gracefully.
	Capabilities []string `cbor:"caps,omitempty"`

	// Screen describes the sender's display layout, when known.
	Screen *ScreenInfo `cbor:"screen,omitempty"`
}

// ScreenInfo describes the union bounding box of a peer's displays.
// Normalized input coordinates are relative to this box.
type ScreenInfo struct {
	Width    uint32  `cbor:"w"`
	Height   uint32  `cbor:"h"`
	DPIScale float64 `cbor:"dpi,omitempty"`
}

// ScreenSide names which machine owns the input stream.
type ScreenSide uint8

const (
	// SideLocal: input is consumed on the machine it was captured on.
	SideLocal ScreenSide = iota + 1
	// SideRemote: input is redirected to the peer.
	SideRemote
)

// String returns the side name for logging.
func (s ScreenSide) String() string {
	switch s {
	case SideLocal:
		return "local"
	case SideRemote:
		return "remote"
	}
	return "unknown"
}

// InputKind tags the variant of an InputEvent.
type InputKind uint8

const (
	// KindMouseMove carries an absolute normalized position.
	KindMouseMove InputKind = iota + 1
	// KindMouseButton carries a button press or release.
	KindMouseButton
	// KindKey carries a key press or release.
	KindKey
	// KindScroll carries wheel deltas.
	KindScroll
	// KindScreenSwitch announces a focus hand-off.
	KindScreenSwitch
)

// MouseButton identifies a physical mouse button.
type MouseButton uint8

const (
	ButtonLeft MouseButton = iota + 1
	ButtonRight
	ButtonMiddle
)

// InputEvent is one abstracted user input. Coordinates are normalized
// to [0,1] over the union bounding box of the reporting side's displays,
// decoupling the peers' resolutions and DPI.
type InputEvent struct {
	Kind InputKind `cbor:"k"`

	// X, Y are the normalized position for MouseMove.
	X float64 `cbor:"x,omitempty"`
	Y float64 `cbor:"y,omitempty"`

	// Button and Pressed apply to MouseButton; Pressed also applies
	// to Key.
	Button  MouseButton `cbor:"btn,omitempty"`
	Pressed bool        `cbor:"down,omitempty"`

	// Key is the platform-independent key code for Key events.
	Key uint32 `cbor:"key,omitempty"`

	// DX, DY are wheel deltas for Scroll events. Capture backends also
	// use them for MouseMove while the local cursor is frozen in remote
	// focus, where no absolute position exists.
	DX float64 `cbor:"dx,omitempty"`
	DY float64 `cbor:"dy,omitempty"`

	// Target is the hand-off destination for ScreenSwitch events.
	Target ScreenSide `cbor:"side,omitempty"`
}

// ClipboardKind tags the variant of a ClipboardEvent.
type ClipboardKind uint8

const (
	// ClipText is plain text content.
	ClipText ClipboardKind = iota + 1
	// ClipFiles is an ordered list of files.
	ClipFiles
	// ClipImage is an encoded image payload.
	ClipImage
)

// ClipboardEvent is one clipboard content change. Exactly one variant
// is emitted per change; when the source clipboard exposes several
// representations at once the priority is Files > Text > Image.
type ClipboardEvent struct {
	Kind ClipboardKind `cbor:"k"`

	// Text is the content for ClipText.
	Text string `cbor:"text,omitempty"`

	// Files is the manifest for ClipFiles.
	Files *FileManifest `cbor:"files,omitempty"`

	// Image and ImageFormat carry the payload for ClipImage.
	Image       []byte `cbor:"img,omitempty"`
	ImageFormat string `cbor:"fmt,omitempty"`
}

// FileManifest describes a files clipboard in transferable form. Paths
// preserve the source ordering; Entries add the metadata the receiving
// side needs to pre-announce the clipboard-sync transfers that follow.
type FileManifest struct {
	Paths     []string   `cbor:"paths"`
	Entries   []FileMeta `cbor:"entries,omitempty"`
	TotalSize uint64     `cbor:"total,omitempty"`
	BatchID   uint64     `cbor:"batch,omitempty"`
}

// FileMeta is one file's name and size within a manifest.
type FileMeta struct {
	Name string `cbor:"name"`
	Size uint64 `cbor:"size"`

	// Missing marks an entry that could not be read on the sending
	// side (vanished, unreadable, not a regular file). It travels for
	// ordering but no transfer follows it. A zero Size with Missing
	// unset is a legitimate empty file and does transfer.
	Missing bool `cbor:"missing,omitempty"`
}

// TransferPurpose distinguishes why a file transfer was initiated.
type TransferPurpose uint8

const (
	// PurposeManual is a one-off user-requested send.
	PurposeManual TransferPurpose = iota + 1
	// PurposeClipboardSync materializes a files clipboard on the peer.
	PurposeClipboardSync
)

// TransferRequest announces an incoming bulk stream. The payload itself
// travels on a dedicated stream opened only after acceptance, so large
// transfers never delay input or heartbeat traffic.
type TransferRequest struct {
	ID       uint32          `cbor:"id"`
	Filename string          `cbor:"name"`
	Size     uint64          `cbor:"size"`
	Purpose  TransferPurpose `cbor:"purpose"`

	// BatchID links a clipboard-sync transfer to its FileManifest.
	BatchID uint64 `cbor:"batch,omitempty"`
}

// TransferResponse is the negotiated answer to a TransferRequest.
type TransferResponse struct {
	ID       uint32 `cbor:"id"`
	Accepted bool   `cbor:"accepted"`
}

// Notification is a user-visible notice surfaced on the peer's front-end.
type Notification struct {
	Title   string `cbor:"title"`
	Message string `cbor:"msg"`
}

// HandshakeFrame wraps a Handshake payload.
func HandshakeFrame(handshake Handshake) Frame {
	return Frame{Type: FrameHandshake, Handshake: &handshake}
}

// HeartbeatFrame returns a liveness pulse.
func HeartbeatFrame() Frame {
	return Frame{Type: FrameHeartbeat}
}

// InputFrame wraps an input event.
func InputFrame(event InputEvent) Frame {
	return Frame{Type: FrameInput, Input: &event}
}

// ClipboardFrame wraps a clipboard event.
func ClipboardFrame(event ClipboardEvent) Frame {
	return Frame{Type: FrameClipboard, Clipboard: &event}
}

// TransferRequestFrame wraps a transfer request.
func TransferRequestFrame(request TransferRequest) Frame {
	return Frame{Type: FrameTransferRequest, TransferRequest: &request}
}

// TransferResponseFrame wraps a transfer response.
func TransferResponseFrame(response TransferResponse) Frame {
	return Frame{Type: FrameTransferResponse, TransferResponse: &response}
}

// NotificationFrame wraps a notification.
func NotificationFrame(title, message string) Frame {
	return Frame{Type: FrameNotification, Notification: &Notification{Title: title, Message: message}}
}

// MouseMove builds a normalized absolute mouse position event.
func MouseMove(x, y float64) InputEvent {
	return InputEvent{Kind: KindMouseMove, X: x, Y: y}
}

// MouseButtonEvent builds a button press or release.
func MouseButtonEvent(button MouseButton, pressed bool) InputEvent {
	return InputEvent{Kind: KindMouseButton, Button: button, Pressed: pressed}
}

// KeyEvent builds a key press or release.
func KeyEvent(code uint32, pressed bool) InputEvent {
	return InputEvent{Kind: KindKey, Key: code, Pressed: pressed}
}

// ScrollEvent builds a wheel delta event.
func ScrollEvent(dx, dy float64) InputEvent {
	return InputEvent{Kind: KindScroll, DX: dx, DY: dy}
}

// ScreenSwitch builds a focus hand-off event.
func ScreenSwitch(target ScreenSide) InputEvent {
	return InputEvent{Kind: KindScreenSwitch, Target: target}
}
