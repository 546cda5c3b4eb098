// Package logproto splits a byte stream read from a source driver into
// discrete message frames. Each Framer owns only its own parse state
// (buffered partial data, byte offset); the underlying io.Reader is
// supplied by the caller on every call so the same Framer can be resumed
// against a reopened file descriptor after a restart.
package logproto

import (
	"encoding/binary"
	"errors"
)

// ErrUnsupportedPlatform is returned by framer constructors that require
// a platform-specific log device (/proc/kmsg, /dev/kmsg) when no such
// device exists on the current OS.
var ErrUnsupportedPlatform = errors.New("logproto: unsupported platform")

// ErrLineTooLong is returned when a framer's internal buffer would need
// to grow past its configured maximum to find a frame boundary.
var ErrLineTooLong = errors.New("logproto: line exceeds maximum length")

// ErrRequiresPacketConn is returned by DatagramFramer when the supplied
// reader does not implement net.PacketConn.
var ErrRequiresPacketConn = errors.New("logproto: framer requires a net.PacketConn")

// Framer incrementally splits a byte stream into discrete message frames.
// ReadMessage may be called with a different io.Reader value across
// restarts (e.g. a file reopened after rotation); the Framer itself
// carries only the parse state needed to resume correctly, recovered via
// SaveState/RestoreState.
type Framer interface {
	// ReadMessage returns the next complete frame, or an error (typically
	// io.EOF) if the reader was exhausted before a frame boundary was
	// found. Any bytes read but not yet forming a complete frame remain
	// buffered for the next call.
	ReadMessage(r ByteReader) ([]byte, error)

	// SaveState captures enough state to resume framing from the last
	// frame boundary after a restart (property P-7). It does not include
	// buffered partial data: a restart re-reads from Position().
	SaveState() []byte

	// RestoreState reverses SaveState.
	RestoreState(state []byte) error

	// Position returns the byte offset, in the underlying stream, of the
	// last fully consumed frame boundary.
	Position() int64
}

// ByteReader is the minimal reader a Framer needs. It's satisfied by
// *os.File, io.Reader, and (for DatagramFramer) net.PacketConn.
type ByteReader interface {
	Read(p []byte) (int, error)
}

func encodePosition(pos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(pos))
	return buf
}

func decodePosition(state []byte) (int64, error) {
	if len(state) != 8 {
		return 0, errors.New("logproto: malformed state")
	}
	return int64(binary.BigEndian.Uint64(state)), nil
}
