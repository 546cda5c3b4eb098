package syslogformat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/message"
)

func TestParseLegacyScenario1(t *testing.T) {
	raw := []byte(`<34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick on /dev/pts/8`)
	m := Parse(raw, Options{ExpectHostname: true, CheckHostname: true}, time.Now())

	assert.Equal(t, 34, m.Priority)
	host, _ := m.GetValue(message.KeyHost)
	assert.Equal(t, "mymachine", host)
	prog, _ := m.GetValue(message.KeyProgram)
	assert.Equal(t, "su", prog)
	msg, _ := m.GetValue(message.KeyMessage)
	assert.Equal(t, "'su root' failed for lonvick on /dev/pts/8", msg)
	assert.Equal(t, time.October, m.Stamp.Time().Month())
	assert.Equal(t, 11, m.Stamp.Time().Day())
}

func TestParseLegacyTimestampFields(t *testing.T) {
	raw := []byte(`<34>Oct 11 22:14:15 mymachine su: msg`)
	m := Parse(raw, Options{ExpectHostname: true}, time.Now())
	require.Equal(t, time.October, m.Stamp.Time().Month())
	assert.Equal(t, 11, m.Stamp.Time().Day())
	assert.Equal(t, 22, m.Stamp.Time().Hour())
}

func TestParseRFC5424Scenario2(t *testing.T) {
	raw := append([]byte(`<165>1 2003-10-11T22:14:15.003Z mymachine.example.com evntslog - ID47 [exampleSDID@0 iut="3" eventSource="Application" eventID="1011"] `), append([]byte{0xEF, 0xBB, 0xBF}, []byte("An application event log entry")...)...)

	m := Parse(raw, Options{SyslogProtocol: true}, time.Now())

	assert.Equal(t, 165, m.Priority)
	host, _ := m.GetValue(message.KeyHost)
	assert.Equal(t, "mymachine.example.com", host)
	prog, _ := m.GetValue(message.KeyProgram)
	assert.Equal(t, "evntslog", prog)
	_, pidOK := m.NV.Get(message.KeyPID)
	assert.False(t, pidOK)
	msgid, _ := m.GetValue(message.KeyMsgID)
	assert.Equal(t, "ID47", msgid)

	iut, _ := m.GetValue(message.InternName(".SDATA.exampleSDID@0.iut"))
	assert.Equal(t, "3", iut)
	src, _ := m.GetValue(message.InternName(".SDATA.exampleSDID@0.eventSource"))
	assert.Equal(t, "Application", src)
	eid, _ := m.GetValue(message.InternName(".SDATA.exampleSDID@0.eventID"))
	assert.Equal(t, "1011", eid)

	msg, _ := m.GetValue(message.KeyMessage)
	assert.Equal(t, "An application event log entry", msg)
	assert.NotZero(t, m.Flags&message.FlagUTF8)
}

func TestParseNoPriorityInvalidTimestampScenario3(t *testing.T) {
	raw := []byte(`foo bar baz`)
	m := Parse(raw, Options{DefaultPriority: 13, ExpectHostname: false}, time.Now())

	assert.Equal(t, 13, m.Priority)
	prog, _ := m.GetValue(message.KeyProgram)
	assert.Equal(t, "foo", prog)
	msg, _ := m.GetValue(message.KeyMessage)
	assert.Equal(t, "bar baz", msg)
	assert.False(t, m.HasTag("parse-error"))
}

func TestParseMalformedSDFallsBackToLegacyScenario4(t *testing.T) {
	raw := []byte(`<1>1 2003-10-11T22:14:15Z h a p m [bad`)
	m := Parse(raw, Options{SyslogProtocol: true, DefaultPriority: defaultPriorityUserNotice}, time.Now())

	msg, _ := m.GetValue(message.KeyMessage)
	assert.Contains(t, msg, "h a p m")
}

func TestParseStructuredDataEscaping(t *testing.T) {
	raw := []byte(`<1>1 2003-10-11T22:14:15Z h a p m [x@1 v="a\"b\]c"]`)
	m := Parse(raw, Options{SyslogProtocol: true}, time.Now())

	v, _ := m.GetValue(message.InternName(".SDATA.x@1.v"))
	assert.Equal(t, `a"b]c`, v)
}

func TestParseDeterminism(t *testing.T) {
	raw := []byte(`<34>Oct 11 22:14:15 mymachine su: hi`)
	opts := Options{ExpectHostname: true}
	now := time.Now()

	a := Parse(raw, opts, now)
	b := Parse(raw, opts, now)

	assert.Equal(t, a.Priority, b.Priority)
	assert.Equal(t, a.Stamp, b.Stamp)
	av, _ := a.GetValue(message.KeyHost)
	bv, _ := b.GetValue(message.KeyHost)
	assert.Equal(t, av, bv)
}
