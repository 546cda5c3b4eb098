package positions

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveFlushLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir, nil)
	require.NoError(t, err)

	s.Save("/var/log/app.log", []byte{0x01, 0x02, 0x03})
	require.NoError(t, s.Flush())

	reloaded, err := NewStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, []byte{0x01, 0x02, 0x03}, reloaded.Resume("/var/log/app.log"))
	assert.Nil(t, reloaded.Resume("/var/log/other.log"))
}

func TestStoreFlushSkipsWhenNotDirty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.Flush())
	_, statErr := filepath.Glob(filepath.Join(dir, "positions.json"))
	assert.NoError(t, statErr)
}

func TestStoreForgetRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	require.NoError(t, err)

	s.Save("/var/log/app.log", []byte{0x01})
	s.Forget("/var/log/app.log")
	assert.Nil(t, s.Resume("/var/log/app.log"))
}
