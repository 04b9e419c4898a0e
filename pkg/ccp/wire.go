package ccp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadSize is the largest payload a single frame can carry: the
// 3-byte big-endian length prefix tops out at 2^24-1.
const MaxPayloadSize = 1<<24 - 1

const lengthPrefixSize = 3

// Code is a single-byte protocol code, carried as the first byte of a
// frame's payload. The byte values below are this module's own assignment:
// the original constants table was never recovered from the source this
// protocol was distilled from (see DESIGN.md for the full reasoning).
//
// Data and CommEnd are bidirectional: both sides may send either one.
// The COMM_START_* codes are sent by clients only; COMM_ACCEPTED,
// NOBODY_HOME, COMM_ERROR and PROTOCOL_ERROR are sent by hosts only.
type Code byte

const (
	CommStartRequestBased Code = 0x01
	CommStartRaw          Code = 0x02
	Data                  Code = 0x03
	CommEnd               Code = 0x04
	CommAccepted          Code = 0x05
	NobodyHome            Code = 0x06
	CommError             Code = 0x07
	ProtocolError         Code = 0x08
)

func (c Code) String() string {
	switch c {
	case CommStartRequestBased:
		return "COMM_START_REQUEST_BASED"
	case CommStartRaw:
		return "COMM_START_RAW"
	case Data:
		return "DATA"
	case CommEnd:
		return "COMM_END"
	case CommAccepted:
		return "COMM_ACCEPTED"
	case NobodyHome:
		return "NOBODY_HOME"
	case CommError:
		return "COMM_ERROR"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return fmt.Sprintf("Code(0x%02x)", byte(c))
	}
}

// EncodeFrame prepends the 3-byte big-endian length prefix to payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	out := make([]byte, lengthPrefixSize+len(payload))
	putUint24(out[:lengthPrefixSize], uint32(len(payload)))
	copy(out[lengthPrefixSize:], payload)
	return out, nil
}

// WriteFrame encodes and writes a single frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed frame from r.
//
// A clean end-of-stream at a frame boundary (no bytes of a new frame yet
// read) is reported as ErrConnectionClosed. Any other read failure,
// including a partial length prefix or a partial payload, is reported as
// ErrAborted: the peer went away mid-frame, which is not a graceful close.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	n := getUint24(lenBuf[:])
	if n == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return payload, nil
}

func putUint24(b []byte, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	copy(b, buf[1:])
}

func getUint24(b []byte) uint32 {
	var buf [4]byte
	copy(buf[1:], b)
	return binary.BigEndian.Uint32(buf[:])
}
