package sources

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/message"
	"logroute/pkg/pipeline"
)

func testSourcesLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type collector struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (c *collector) emit(msg *message.Message, _ *pipeline.PathOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		v, _ := m.GetValue(message.KeyMessage)
		out[i] = v
	}
	return out
}

func waitForCount(t *testing.T, c *collector, n int, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if c.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %d", n, c.count())
}

func TestFileDriverReadsPreexistingContentFromBeginning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	c := &collector{}
	d, err := NewFileDriver(FileDriverConfig{Path: path, PollInterval: 10 * time.Millisecond, Logger: testSourcesLogger()}, c.emit)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	waitForCount(t, c, 2, time.Second)
	assert.Equal(t, []string{"one", "two"}, c.texts())
}

func TestFileDriverSeeksToEndWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	c := &collector{}
	d, err := NewFileDriver(FileDriverConfig{Path: path, SeekStrategy: "end", PollInterval: 10 * time.Millisecond, Logger: testSourcesLogger()}, c.emit)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("new\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	waitForCount(t, c, 1, time.Second)
	assert.Equal(t, []string{"new"}, c.texts())
}

func TestFileDriverFollowsNewContentAppendedAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))

	c := &collector{}
	d, err := NewFileDriver(FileDriverConfig{Path: path, PollInterval: 10 * time.Millisecond, Logger: testSourcesLogger()}, c.emit)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("line1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	waitForCount(t, c, 1, time.Second)
	assert.Equal(t, []string{"line1"}, c.texts())
}

func TestFileDriverPicksUpNewFileAfterRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0o644))

	c := &collector{}
	d, err := NewFileDriver(FileDriverConfig{Path: path, PollInterval: 10 * time.Millisecond, Logger: testSourcesLogger()}, c.emit)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	waitForCount(t, c, 1, time.Second)

	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, os.WriteFile(path, []byte("after\n"), 0o644))

	waitForCount(t, c, 2, time.Second)
	assert.Equal(t, []string{"before", "after"}, c.texts())
}

func TestNewFileDriverRejectsMissingPathOrEmitter(t *testing.T) {
	_, err := NewFileDriver(FileDriverConfig{}, func(*message.Message, *pipeline.PathOptions) {})
	assert.Error(t, err)

	_, err = NewFileDriver(FileDriverConfig{Path: "/tmp/whatever"}, nil)
	assert.Error(t, err)
}
