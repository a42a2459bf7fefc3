// Package ipc provides inter-process communication between the handsoffd
// daemon and client applications (CLI, tray, third-party tools).
//
// The protocol is a fixed 16-byte big-endian header followed by a JSON
// payload, carried over a Unix domain socket (or a named pipe on Windows).
// Requests and responses are correlated by request ID so a single
// connection can have several commands in flight.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x484F4950 // "HOIP" - HandsOff IPC
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Lock control (0x02xx)
	MsgLock           MessageType = 0x0200
	MsgLockResp       MessageType = 0x0201
	MsgUnlock         MessageType = 0x0202
	MsgUnlockResp     MessageType = 0x0203
	MsgEnable         MessageType = 0x0204
	MsgEnableResp     MessageType = 0x0205
	MsgDisable        MessageType = 0x0206
	MsgDisableResp    MessageType = 0x0207
	MsgRestartTap     MessageType = 0x0208
	MsgRestartTapResp MessageType = 0x0209

	// History (0x03xx)
	MsgHistoryRequest  MessageType = 0x0300
	MsgHistoryResponse MessageType = 0x0301

	// Configuration (0x04xx)
	MsgReloadConfig     MessageType = 0x0400
	MsgReloadConfigResp MessageType = 0x0401
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON uint8 = 0x01
)

// MaxPayloadSize caps a single message payload. Control traffic is tiny;
// anything larger is a corrupt stream or a hostile peer.
const MaxPayloadSize = 1 * 1024 * 1024

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate a connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge a connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ClientID        string `json:"client_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeUnknown        = 1
	ErrCodeInvalidRequest = 2
	ErrCodeInternal       = 3
	ErrCodeLocked         = 4
	ErrCodeNotLocked      = 5
	ErrCodeDisabled       = 6
	ErrCodeNoPermission   = 7
	ErrCodeBadPassphrase  = 8
	ErrCodeTapFailure     = 9
)

// StatusRequest requests daemon status
type StatusRequest struct{}

// StatusResponse contains daemon status
type StatusResponse struct {
	Version       string        `json:"version"`
	StartedAt     time.Time     `json:"started_at"`
	Uptime        time.Duration `json:"uptime"`
	Locked        bool          `json:"locked"`
	Disabled      bool          `json:"disabled"`
	HasPermission bool          `json:"has_permission"`
	TapRunning    bool          `json:"tap_running"`
	TalkKeyHeld   bool          `json:"talk_key_held"`
	BufferLen     int           `json:"buffer_len"`

	// Zero unless locked.
	LockElapsed         time.Duration `json:"lock_elapsed,omitempty"`
	AutoUnlockRemaining time.Duration `json:"auto_unlock_remaining,omitempty"`

	// Zero unless unlocked with auto-lock armed.
	AutoLockRemaining time.Duration `json:"auto_lock_remaining,omitempty"`

	// Lifetime interception handle counters.
	TapsCreated  int64 `json:"taps_created"`
	TapsReleased int64 `json:"taps_released"`
}

// LockRequest requests the session be locked
type LockRequest struct {
	Reason string `json:"reason,omitempty"`
}

// UnlockRequest requests the session be unlocked. The passphrase is
// verified against the configured digest; there is no bypass path.
type UnlockRequest struct {
	Passphrase string `json:"passphrase"`
}

// AckResponse acknowledges a state-changing command
type AckResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HistoryRequest requests recent state transitions from the audit trail
type HistoryRequest struct {
	Limit int       `json:"limit,omitempty"`
	Since time.Time `json:"since,omitempty"`
}

// HistoryEntry is a single recorded state transition
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Reason    string    `json:"reason,omitempty"`
}

// HistoryResponse contains recent state transitions
type HistoryResponse struct {
	Total   int            `json:"total"`
	Entries []HistoryEntry `json:"entries"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
