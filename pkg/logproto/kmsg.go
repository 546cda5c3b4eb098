package logproto

import "bytes"

// LinuxProcKmsgFramer reads /proc/kmsg-shaped streams: one complete
// kernel log record per line ("<PRI>seq,timestamp,flags;message"),
// newline-delimited exactly like TextFramer, but kept as a distinct type
// so callers and stats attribution can tell kernel log sources apart
// from plain text file sources.
type LinuxProcKmsgFramer struct {
	lines TextFramer
}

func NewLinuxProcKmsgFramer() *LinuxProcKmsgFramer {
	return &LinuxProcKmsgFramer{lines: TextFramer{MaxLine: defaultMaxLine}}
}

func (f *LinuxProcKmsgFramer) ReadMessage(r ByteReader) ([]byte, error) {
	return f.lines.ReadMessage(r)
}

func (f *LinuxProcKmsgFramer) Position() int64 { return f.lines.Position() }

func (f *LinuxProcKmsgFramer) SaveState() []byte { return f.lines.SaveState() }

func (f *LinuxProcKmsgFramer) RestoreState(state []byte) error {
	return f.lines.RestoreState(state)
}

// devKmsgRecordSize is the maximum record size the kernel guarantees for
// a single /dev/kmsg read(2) (see Documentation/ABI/testing/dev-kmsg).
const devKmsgRecordSize = 8192

// DevKmsgFramer reads /dev/kmsg-shaped streams, where the kernel
// guarantees exactly one structured record per read(2) call — unlike
// /proc/kmsg there is no line-splitting to do. Position counts records,
// since /dev/kmsg has no stable byte offset to resume from (the kernel
// ring buffer can wrap and a missed-records EPIPE must restart the
// read entirely).
type DevKmsgFramer struct {
	pos int64
}

func NewDevKmsgFramer() *DevKmsgFramer {
	return &DevKmsgFramer{}
}

func (f *DevKmsgFramer) ReadMessage(r ByteReader) ([]byte, error) {
	buf := make([]byte, devKmsgRecordSize)
	n, err := r.Read(buf)
	if err != nil {
		return nil, err
	}
	f.pos++
	return bytes.TrimRight(buf[:n], "\x00"), nil
}

func (f *DevKmsgFramer) Position() int64 { return f.pos }

func (f *DevKmsgFramer) SaveState() []byte { return encodePosition(f.pos) }

func (f *DevKmsgFramer) RestoreState(state []byte) error {
	pos, err := decodePosition(state)
	if err != nil {
		return err
	}
	f.pos = pos
	return nil
}
