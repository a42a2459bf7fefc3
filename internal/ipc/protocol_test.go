package ipc

import (
	"bytes"
	"strings"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Magic:     ProtocolMagic,
		Version:   ProtocolVersion,
		Flags:     FlagJSON,
		Type:      MsgStatusRequest,
		RequestID: 42,
		Length:    7,
	}

	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("header size = %d, want %d", buf.Len(), HeaderSize)
	}

	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if *got != *h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	h := &Header{Magic: 0xDEADBEEF, Version: ProtocolVersion}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := ReadHeader(&buf); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestReadHeaderRejectsFutureVersion(t *testing.T) {
	h := &Header{Magic: ProtocolMagic, Version: ProtocolVersion + 1}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := ReadHeader(&buf); err == nil {
		t.Error("expected error for future protocol version")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&LockRequest{Reason: "hotkey"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	msg := NewMessage(MsgLock, 7, payload)
	var buf bytes.Buffer
	if err := msg.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Header.Type != MsgLock || got.Header.RequestID != 7 {
		t.Errorf("header mismatch: %+v", got.Header)
	}

	var req LockRequest
	if err := Decode(got.Payload, &req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.Reason != "hotkey" {
		t.Errorf("reason = %q, want hotkey", req.Reason)
	}
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := &Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Type:    MsgPing,
		Length:  MaxPayloadSize + 1,
	}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := ReadMessage(&buf)
	if err == nil || !strings.Contains(err.Error(), "payload too large") {
		t.Errorf("expected payload size error, got %v", err)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(3, ErrCodeBadPassphrase, "passphrase rejected")
	if msg.Header.Type != MsgError {
		t.Fatalf("type = %d, want MsgError", msg.Header.Type)
	}

	var resp ErrorResponse
	if err := Decode(msg.Payload, &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Code != ErrCodeBadPassphrase || resp.Message != "passphrase rejected" {
		t.Errorf("unexpected error response: %+v", resp)
	}
}
