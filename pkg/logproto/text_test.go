package logproto

import (
	"bytes"
	"io"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFramerSplitsOnNewline(t *testing.T) {
	r := bytes.NewBufferString("first\r\nsecond\nthird")
	f := NewTextFramer()

	line, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "first", string(line))

	line, err = f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "second", string(line))

	_, err = f.ReadMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTextFramerPositionTracksConsumedLines(t *testing.T) {
	r := bytes.NewBufferString("ab\ncd\n")
	f := NewTextFramer()

	_, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.Position())

	_, err = f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, int64(6), f.Position())
}

func TestTextFramerSaveRestoreState(t *testing.T) {
	r := bytes.NewBufferString("ab\ncd\n")
	f := NewTextFramer()
	_, err := f.ReadMessage(r)
	require.NoError(t, err)

	state := f.SaveState()

	g := NewTextFramer()
	require.NoError(t, g.RestoreState(state))
	assert.Equal(t, f.Position(), g.Position())
}

func TestTextFramerLineTooLong(t *testing.T) {
	r := bytes.NewBufferString(string(bytes.Repeat([]byte("x"), 100)))
	f := &TextFramer{MaxLine: 10}

	_, err := f.ReadMessage(r)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestPaddedRecordFramerStripsPadding(t *testing.T) {
	raw := append([]byte("hello"), make([]byte, 11)...)
	r := bytes.NewReader(raw)
	f := NewPaddedRecordFramer(16)

	payload, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
	assert.Equal(t, int64(16), f.Position())
}

func TestIndentedMultilineFramerJoinsContinuations(t *testing.T) {
	r := bytes.NewBufferString("Exception: boom\n  at foo\n  at bar\nnext entry\n")
	f := NewIndentedMultilineFramer()

	msg, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "Exception: boom\n  at foo\n  at bar", string(msg))

	_, err = f.ReadMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRegexMultilineFramerPrefixGarbage(t *testing.T) {
	prefix := regexp.MustCompile(`^\d{4}-`)
	garbage := regexp.MustCompile(`^---$`)
	r := bytes.NewBufferString("2024-01-01 start\ncontinuation\n---\n2024-01-02 next\n")
	f := NewRegexMultilineFramer(PrefixGarbageMode, prefix, garbage)

	msg, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 start\ncontinuation", string(msg))
}

func TestRegexMultilineFramerPrefixSuffix(t *testing.T) {
	prefix := regexp.MustCompile(`^BEGIN$`)
	suffix := regexp.MustCompile(`^END$`)
	r := bytes.NewBufferString("noise\nBEGIN\nbody line\nEND\nmore noise\n")
	f := NewRegexMultilineFramer(PrefixSuffixMode, prefix, suffix)

	msg, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN\nbody line\nEND", string(msg))
}

func TestDevKmsgFramerOneRecordPerRead(t *testing.T) {
	r := bytes.NewReader([]byte("6,1,0,-;kernel message"))
	f := NewDevKmsgFramer()

	msg, err := f.ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "6,1,0,-;kernel message", string(msg))
	assert.Equal(t, int64(1), f.Position())
}
