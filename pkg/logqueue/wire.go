package logqueue

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"logroute/pkg/message"
)

// wireMessage is the on-disk representation of a spilled message.Message,
// rekeyed from the teacher's types.LogEntry (pkg/buffer/disk_buffer.go's
// BufferEntry) to this project's NV-store/tag-set shape: the interned
// handle and tag tables are process-lifetime, not persisted, so segments
// carry resolved names instead of handles.
type wireMessage struct {
	Priority   int               `json:"priority"`
	StampSec   int64             `json:"stamp_sec"`
	StampUsec  int32             `json:"stamp_usec"`
	StampZone  int32             `json:"stamp_zone"`
	RecvdSec   int64             `json:"recvd_sec"`
	RecvdUsec  int32             `json:"recvd_usec"`
	RecvdZone  int32             `json:"recvd_zone"`
	SourceAddr string            `json:"source_addr"`
	Flags      uint32            `json:"flags"`
	NV         map[string]string `json:"nv"`
	Tags       []string          `json:"tags"`
}

// segmentEntry pairs a wireMessage with a checksum over its encoded form,
// mirroring disk_buffer.go's BufferEntry/checksum discipline.
type segmentEntry struct {
	Msg      wireMessage `json:"msg"`
	Checksum [32]byte    `json:"checksum"`
}

func encodeMessage(m *message.Message) (segmentEntry, error) {
	w := wireMessage{
		Priority:   m.Priority,
		StampSec:   m.Stamp.Sec,
		StampUsec:  m.Stamp.Usec,
		StampZone:  m.Stamp.ZoneOffset,
		RecvdSec:   m.Recvd.Sec,
		RecvdUsec:  m.Recvd.Usec,
		RecvdZone:  m.Recvd.ZoneOffset,
		SourceAddr: m.SourceAddr,
		Flags:      m.Flags,
		NV:         m.NV.Snapshot(),
		Tags:       m.Tags.Names(),
	}
	data, err := json.Marshal(w)
	if err != nil {
		return segmentEntry{}, fmt.Errorf("logqueue: marshal message: %w", err)
	}
	return segmentEntry{Msg: w, Checksum: sha256.Sum256(data)}, nil
}

func decodeMessage(e segmentEntry) (*message.Message, error) {
	data, err := json.Marshal(e.Msg)
	if err != nil {
		return nil, fmt.Errorf("logqueue: remarshal message: %w", err)
	}
	if sha256.Sum256(data) != e.Checksum {
		return nil, fmt.Errorf("logqueue: checksum mismatch in segment entry")
	}

	m := message.NewEmpty()
	m.Priority = e.Msg.Priority
	m.Stamp = message.TimeStamp{Sec: e.Msg.StampSec, Usec: e.Msg.StampUsec, ZoneOffset: e.Msg.StampZone}
	m.Recvd = message.TimeStamp{Sec: e.Msg.RecvdSec, Usec: e.Msg.RecvdUsec, ZoneOffset: e.Msg.RecvdZone}
	m.SourceAddr = e.Msg.SourceAddr
	m.Flags = e.Msg.Flags
	for name, value := range e.Msg.NV {
		m.SetValue(message.InternName(name), []byte(value))
	}
	for _, tag := range e.Msg.Tags {
		m.AddTag(tag)
	}
	return m, nil
}
