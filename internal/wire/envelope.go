package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	// Magic marks the start of every envelope ("PRSC").
	Magic uint32 = 0x50525343

	// Version is the protocol version emitted by this build. The high 16
	// bits are the major version; decoders reject a differing major.
	Version uint32 = 0x0001_0000

	// HeaderSize is the fixed envelope header length in bytes.
	HeaderSize = 20

	// MaxPayloadSize bounds a single envelope payload. Control traffic is
	// low-rate and small; anything larger indicates a corrupt stream.
	MaxPayloadSize = 1 << 20
)

// Protocol validation failures, surfaced in the order the envelope is checked.
var (
	ErrMagicMismatch      = errors.New("wire: magic mismatch")
	ErrVersionMismatch    = errors.New("wire: incompatible protocol version")
	ErrLengthMismatch     = errors.New("wire: payload length mismatch")
	ErrChecksumMismatch   = errors.New("wire: payload checksum mismatch")
	ErrUnknownMessageType = errors.New("wire: unknown message type")
)

// Major extracts the major component of a packed protocol version.
func Major(version uint32) uint16 {
	return uint16(version >> 16)
}

// Compatible reports whether a peer's protocol version can interoperate with
// this build. Only the major version must match.
func Compatible(version uint32) bool {
	return Major(version) == Major(Version)
}

// Encode serializes a registry message into a complete envelope. It cannot
// fail for any message constructed through this package.
func Encode(m Message) []byte {
	payload := m.appendPayload(nil)
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, Magic)
	buf = binary.LittleEndian.AppendUint32(buf, Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Tag()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload))
	return append(buf, payload...)
}

// Decode parses one complete envelope. The input must contain exactly the
// envelope bytes: trailing data is reported as a length mismatch.
func Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("envelope %d bytes, need %d: %w", len(data), HeaderSize, ErrLengthMismatch)
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != Magic {
		return nil, fmt.Errorf("got %#08x: %w", magic, ErrMagicMismatch)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if !Compatible(version) {
		return nil, fmt.Errorf("peer %d.%d, local %d.%d: %w",
			Major(version), uint16(version), Major(Version), uint16(Version&0xFFFF), ErrVersionMismatch)
	}
	tag := Type(binary.LittleEndian.Uint32(data[8:12]))
	length := binary.LittleEndian.Uint32(data[12:16])
	sum := binary.LittleEndian.Uint32(data[16:20])
	if uint64(length) != uint64(len(data)-HeaderSize) {
		return nil, fmt.Errorf("declared %d, have %d: %w", length, len(data)-HeaderSize, ErrLengthMismatch)
	}
	payload := data[HeaderSize:]
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, ErrChecksumMismatch
	}
	return decodePayload(tag, payload)
}

// WriteMessage encodes m and writes the full envelope to w.
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(Encode(m)); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// ReadMessage reads exactly one envelope from the stream and decodes it.
// Header fields are validated before the payload is read so a corrupt stream
// cannot force an oversized allocation.
func ReadMessage(r io.Reader) (Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != Magic {
		return nil, fmt.Errorf("got %#08x: %w", magic, ErrMagicMismatch)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if !Compatible(version) {
		return nil, fmt.Errorf("peer %d.%d, local %d.%d: %w",
			Major(version), uint16(version), Major(Version), uint16(Version&0xFFFF), ErrVersionMismatch)
	}
	tag := Type(binary.LittleEndian.Uint32(header[8:12]))
	length := binary.LittleEndian.Uint32(header[12:16])
	sum := binary.LittleEndian.Uint32(header[16:20])
	if length > MaxPayloadSize {
		return nil, fmt.Errorf("declared %d exceeds limit %d: %w", length, MaxPayloadSize, ErrLengthMismatch)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, ErrChecksumMismatch
	}
	return decodePayload(tag, payload)
}
