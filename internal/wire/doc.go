// Package wire implements the binary envelope protocol shared by every
// control-plane transport.
//
// Each message travels inside a fixed little-endian envelope of magic marker,
// protocol version, type tag, payload length, and payload CRC32. Decoding
// validates those fields in order and never partially applies a message:
// callers either get a fully parsed registry message or a typed protocol
// error. Unrecognized telemetry tags survive as Unknown passthrough messages
// so newer producers can talk to older daemons; handshake-critical tags are
// rejected instead.
//
// The envelope layout is the compatibility contract between processes. Bump
// the protocol minor version for additive payload changes and the major
// version for anything that breaks older decoders.
package wire
