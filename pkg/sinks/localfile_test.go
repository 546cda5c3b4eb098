package sinks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/message"
)

func testPayload(text string) *message.Message {
	m := message.NewEmpty()
	m.SetValue(message.KeyMessage, []byte(text))
	return m
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestLocalFileWorkerWritesOneLinePerInsert(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	w, err := NewLocalFileWorker(LocalFileConfig{Path: path, Format: "text"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.ThreadInit())
	defer w.ThreadDeinit()

	assert.True(t, w.Insert(testPayload("first")))
	assert.True(t, w.Insert(testPayload("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first\n")
	assert.Contains(t, string(data), "second\n")
}

func TestLocalFileWorkerRendersJSONFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	w, err := NewLocalFileWorker(LocalFileConfig{Path: path, Format: "json"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.ThreadInit())
	defer w.ThreadDeinit()

	m := testPayload("hello")
	m.SourceAddr = "10.0.0.1:514"
	require.True(t, w.Insert(m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_addr":"10.0.0.1:514"`)
	assert.Contains(t, string(data), `"MESSAGE":"hello"`)
}

func TestLocalFileWorkerRotatesAtSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	w, err := NewLocalFileWorker(LocalFileConfig{Path: path, Format: "text", MaxSizeBytes: 10}, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.ThreadInit())
	defer w.ThreadDeinit()

	require.True(t, w.Insert(testPayload("exceeds-ten-bytes")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "the oversized write should trigger one rotation, leaving the rotated file plus a fresh active file")
}

func TestLocalFileWorkerRejectsMissingPath(t *testing.T) {
	_, err := NewLocalFileWorker(LocalFileConfig{Format: "text"}, testLogger())
	assert.Error(t, err)
}
