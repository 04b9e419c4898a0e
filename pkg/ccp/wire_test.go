package ccp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: []byte{}},
		{name: "single byte code", payload: []byte{byte(CommAccepted)}},
		{name: "code with data", payload: append([]byte{byte(Data)}, []byte("hello")...)},
		{name: "large payload", payload: bytes.Repeat([]byte{0x42}, 70000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(tt.payload)
			if err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}

			got, err := ReadFrame(bytes.NewReader(frame))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("got %v, want %v", got, tt.payload)
			}
		})
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameConnectionClosedAtBoundary(t *testing.T) {
	_, err := ReadFrame(strings.NewReader(""))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("got %v, want ErrConnectionClosed", err)
	}
}

func TestReadFrameAbortedMidLengthPrefix(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	if !errors.Is(err, ErrAborted) {
		t.Errorf("got %v, want ErrAborted", err)
	}
}

func TestReadFrameAbortedMidPayload(t *testing.T) {
	// Length prefix claims 5 bytes, only 2 are present.
	frame := []byte{0x00, 0x00, 0x05, 0x01, 0x02}
	_, err := ReadFrame(bytes.NewReader(frame))
	if !errors.Is(err, ErrAborted) {
		t.Errorf("got %v, want ErrAborted", err)
	}
}

func TestWriteFrameThenReadFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{byte(CommStartRequestBased)}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 1 || Code(got[0]) != CommStartRequestBased {
		t.Errorf("got %v, want [CommStartRequestBased]", got)
	}
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CommStartRequestBased, "COMM_START_REQUEST_BASED"},
		{CommStartRaw, "COMM_START_RAW"},
		{Data, "DATA"},
		{CommEnd, "COMM_END"},
		{CommAccepted, "COMM_ACCEPTED"},
		{NobodyHome, "NOBODY_HOME"},
		{CommError, "COMM_ERROR"},
		{ProtocolError, "PROTOCOL_ERROR"},
		{Code(0xff), "Code(0xff)"},
	}

	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%#x).String() = %q, want %q", byte(tt.code), got, tt.want)
		}
	}
}
