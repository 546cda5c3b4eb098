package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmptyDefaults(t *testing.T) {
	m := NewEmpty()
	assert.Equal(t, int32(1), m.RefCount())
	assert.NotZero(t, m.ReceiptID)

	v, n := m.GetValue(KeyHost)
	assert.Equal(t, "", v)
	assert.Equal(t, 0, n)
}

func TestReceiptIDUniquePerProcess(t *testing.T) {
	a := NewEmpty()
	b := NewEmpty()
	assert.NotEqual(t, a.ReceiptID, b.ReceiptID)
}

func TestCOWIsolation(t *testing.T) {
	m := NewEmpty()
	m.SetValue(KeyHost, []byte("original"))

	clone := m.CloneCOW()
	clone.SetValue(KeyHost, []byte("mutated"))

	v, _ := m.GetValue(KeyHost)
	assert.Equal(t, "original", v, "mutating a clone must not affect the source (P-2)")

	cv, _ := clone.GetValue(KeyHost)
	assert.Equal(t, "mutated", cv)
}

func TestCOWSharesUntilMutated(t *testing.T) {
	m := NewEmpty()
	m.SetValue(KeyProgram, []byte("sshd"))
	clone := m.CloneCOW()

	v, _ := clone.GetValue(KeyProgram)
	assert.Equal(t, "sshd", v)
}

func TestSetValueIndirectResolvesOnRead(t *testing.T) {
	m := NewEmpty()
	raw := []byte(`[exampleSDID@0 iut="3"]`)
	rawHandle := InternName(".internal.raw")
	m.SetValue(rawHandle, raw)
	m.SetValueIndirect(InternName(".SDATA.exampleSDID@0.iut"), rawHandle, 17, 1)

	v, n := m.GetValue(InternName(".SDATA.exampleSDID@0.iut"))
	assert.Equal(t, "3", v)
	assert.Equal(t, 1, n)
}

func TestAckMonotonicityReportsWorstOutcome(t *testing.T) {
	var got AckOutcome
	var fired int
	ack := NewAckRecord(func(o AckOutcome) {
		got = o
		fired++
	})

	ack.Add() // second consumer (fan-out)
	ack.Ack(AckProcessed)
	ack.Ack(AckDropped)

	assert.Equal(t, 1, fired, "completion callback must fire exactly once (I-6)")
	assert.Equal(t, AckDropped, got, "worst outcome wins (P-3)")
}

func TestAckChainPropagatesToParent(t *testing.T) {
	var parentOutcome AckOutcome
	parent := NewAckRecord(func(o AckOutcome) { parentOutcome = o })

	child := parent.Break()
	child.Ack(AckSuspended)
	parent.Ack(AckProcessed)

	assert.Equal(t, AckSuspended, parentOutcome)
}

func TestAckDoubleResolvePanics(t *testing.T) {
	ack := NewAckRecord(nil)
	ack.Ack(AckProcessed)
	assert.Panics(t, func() { ack.Ack(AckProcessed) })
}

func TestParseErrorMessage(t *testing.T) {
	opts := ParseOptions{DefaultPriority: 13}
	m := NewParseError([]byte("garbled"), opts, time.Now())

	assert.Equal(t, 13, m.Priority)
	assert.True(t, m.HasTag("parse-error"))
	v, _ := m.GetValue(KeyMessage)
	assert.Equal(t, "garbled", v)

	_, ok := m.NV.Get(KeyProgram)
	assert.False(t, ok, "PROGRAM must stay unset on parse error")
}

func TestRefUnref(t *testing.T) {
	m := NewEmpty()
	m.Ref()
	require.Equal(t, int32(2), m.RefCount())
	assert.False(t, m.Unref())
	assert.True(t, m.Unref())
}

func TestPriorityRange(t *testing.T) {
	m := NewEmpty()
	m.Priority = 191
	assert.True(t, m.Priority >= 0 && m.Priority <= 191)
}
