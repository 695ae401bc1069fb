// Package protocol implements the binary frame used by the raw TCP transport.
//
// A TCP stream has no message boundaries, so every encoded message travels in a frame with
// a fixed-size 9-byte header followed by a variable-length body. The receiver reads the
// header first to learn the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │ft│ bodyLen │    body ...    │
//	│ bkr  │01│  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴─────────┴───────────────┘
//
// Heartbeat frames have no body. The server sends them periodically and the client echoes
// one back, which keeps both sides' idle timers from firing.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "bkr".
const (
	MagicNumber byte   = 0x62 // 'b'
	MagicByte2  byte   = 0x6b // 'k'
	MagicByte3  byte   = 0x72 // 'r'
	Version     byte   = 0x01
	HeaderSize  int    = 9 // 3 (magic) + 1 (version) + 1 (frameType) + 4 (bodyLen)
	MaxBodyLen  uint32 = 16 << 20
)

// FrameType distinguishes data frames from heartbeats.
type FrameType byte

const (
	FrameTypeData      FrameType = 0 // Carries one encoded message
	FrameTypeHeartbeat FrameType = 1 // Liveness probe (no body)
)

// Header represents the fixed 9-byte frame header.
type Header struct {
	FrameType FrameType
	BodyLen   uint32
}

// Encode writes a complete frame (header + body) to w.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.FrameType)
	binary.BigEndian.PutUint32(buf[5:9], h.BodyLen)
	copy(buf[HeaderSize:], body)

	// One Write per frame so a concurrent reader never observes a header without its body
	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, frame type and body length.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	frameType := FrameType(headerBuf[4])
	if frameType != FrameTypeData && frameType != FrameTypeHeartbeat {
		return nil, nil, fmt.Errorf("unsupported frame type: %d", frameType)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[5:9])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("frame body too large: %d", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		FrameType: frameType,
		BodyLen:   bodyLen,
	}, body, nil
}
