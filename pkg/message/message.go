package message

import (
	"sync/atomic"
	"time"
)

// Flag bits carried on a Message.
const (
	FlagUTF8 uint32 = 1 << iota
	FlagLocal
	FlagInternal
	FlagLegacyMsgHdr
)

// TimeStamp is a syslog-precision timestamp: seconds, microseconds, and a
// signed zone offset in seconds east of UTC.
type TimeStamp struct {
	Sec        int64
	Usec       int32
	ZoneOffset int32
}

// TimeStampFromTime converts a time.Time into the syslog-precision form.
func TimeStampFromTime(t time.Time) TimeStamp {
	_, offset := t.Zone()
	return TimeStamp{
		Sec:        t.Unix(),
		Usec:       int32(t.Nanosecond() / 1000),
		ZoneOffset: int32(offset),
	}
}

// Time converts the timestamp back to a time.Time in its recorded zone.
func (ts TimeStamp) Time() time.Time {
	loc := time.FixedZone("", int(ts.ZoneOffset))
	return time.Unix(ts.Sec, int64(ts.Usec)*1000).In(loc)
}

// receiptCounter assigns process-lifetime-unique receipt ids (invariant I-2).
var receiptCounter uint64

func nextReceiptID() uint64 {
	return atomic.AddUint64(&receiptCounter, 1)
}

// Message is the structured, reference-counted record of one log event
// that flows through the pipe graph. It is logically immutable from the
// producer's perspective (invariant I-4): once handed to the graph,
// mutation requires CloneCOW.
type Message struct {
	Priority   int
	Stamp      TimeStamp
	Recvd      TimeStamp
	NV         *NVTable
	Tags       *TagSet
	SourceAddr string
	Flags      uint32
	ReceiptID  uint64
	Ack        *AckRecord

	refcount int32
}

// NewEmpty returns a Message with defaults and a freshly assigned receipt
// id: priority 0, empty NV-store and tag set, one outstanding reference.
func NewEmpty() *Message {
	now := TimeStampFromTime(time.Now())
	return &Message{
		Stamp:     now,
		Recvd:     now,
		NV:        NewNVTable(),
		Tags:      NewTagSet(),
		ReceiptID: nextReceiptID(),
		Ack:       NewAckRecord(nil),
		refcount:  1,
	}
}

// ParseOptions carries the knobs a source driver configures for parsing
// the raw bytes it receives (spec.md §6's per-source configuration
// knobs relevant to parsing).
type ParseOptions struct {
	SyslogProtocol   bool // prefer RFC5424
	DefaultPriority  int  // used when PRI is absent, e.g. user.notice = 13
	ExpectHostname   bool
	CheckHostname    bool
	BadHostname      string // regex; empty disables
	ValidateUTF8     bool
	AssumeUTF8       bool
	NoMultiLine      bool
	StoreLegacyHdr   bool
	MaxSDParamLen    int // RFC5424 PARAM-VALUE cap; 0 uses the package default
	ReceiveTimezone  *time.Location
}

// NewFromBytes returns a Message with MESSAGE set to raw and RECVD stamped
// to now; it does not parse raw — callers run it through
// pkg/syslogformat.Parse to populate structured fields, or treat it as an
// opaque payload.
func NewFromBytes(raw []byte, recvTime time.Time) *Message {
	m := NewEmpty()
	m.Recvd = TimeStampFromTime(recvTime)
	m.Stamp = m.Recvd
	m.NV.Set(KeyMessage, raw)
	return m
}

// NewParseError builds the placeholder Message produced when the syslog
// parser cannot make sense of a payload: MESSAGE holds the raw bytes,
// PROGRAM stays unset, priority defaults from opts, and the "parse-error"
// tag is added (spec.md §4.1 failure semantics).
func NewParseError(raw []byte, opts ParseOptions, recvTime time.Time) *Message {
	m := NewFromBytes(raw, recvTime)
	m.Priority = opts.DefaultPriority
	m.Tags.Add("parse-error")
	return m
}

// Ref increments the reference count. Safe for concurrent callers.
func (m *Message) Ref() {
	atomic.AddInt32(&m.refcount, 1)
}

// Unref decrements the reference count and reports whether this was the
// last reference (invariant I-5); callers that get true own the final
// teardown (e.g. releasing any pooled buffers).
func (m *Message) Unref() bool {
	return atomic.AddInt32(&m.refcount, -1) == 0
}

// RefCount returns the current reference count, for tests and diagnostics.
func (m *Message) RefCount() int32 {
	return atomic.LoadInt32(&m.refcount)
}

// CloneCOW returns a new Message handle sharing this Message's NV-store
// and tag set until the clone (or the original) first mutates them. The
// clone gets its own ack chain linked to the original's via Break, so a
// downstream drop on the clone is reported to the source as a drop
// (property P-3).
func (m *Message) CloneCOW() *Message {
	clone := &Message{
		Priority:   m.Priority,
		Stamp:      m.Stamp,
		Recvd:      m.Recvd,
		NV:         m.NV.ShallowCopy(),
		Tags:       m.Tags.ShallowCopy(),
		SourceAddr: m.SourceAddr,
		Flags:      m.Flags,
		ReceiptID:  nextReceiptID(),
		refcount:   1,
	}
	clone.Ack = m.Ack.Break()
	return clone
}

// SetValue stores a copy of value under the given handle, forking the
// NV-store first if it is shared with another Message.
func (m *Message) SetValue(h NVHandle, value []byte) {
	m.NV.Set(h, value)
}

// GetValue returns the resolved bytes for handle and its length. Per
// invariant I-3, an absent key yields an empty string whose length is 0.
func (m *Message) GetValue(h NVHandle) (string, int) {
	v, ok := m.NV.Get(h)
	if !ok {
		return "", 0
	}
	return v, len(v)
}

// SetValueIndirect stores a zero-copy slice view into another slot's
// inline bytes (used by the syslog parser to carve structured-data
// fragments out of the raw payload without copying).
func (m *Message) SetValueIndirect(h, source NVHandle, offset, length int) {
	m.NV.SetIndirect(h, source, offset, length)
}

// AddTag adds name to the Message's tag set.
func (m *Message) AddTag(name string) {
	m.Tags.Add(name)
}

// HasTag reports whether name is present in the Message's tag set.
func (m *Message) HasTag(name string) bool {
	return m.Tags.Has(name)
}
