package stats

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSharesCounterAcrossCallers(t *testing.T) {
	r := NewRegistry()
	key := CounterKey{Component: "src.file", ID: "messages", Instance: "/var/log/messages", Type: Processed}

	a := r.Register(key)
	b := r.Register(key)

	a.Inc()
	b.Inc()

	assert.Equal(t, int64(2), a.Get())
	assert.Same(t, a, b)
}

func TestUnregisterClearsLiveMaskButKeepsValueUntilReregistered(t *testing.T) {
	r := NewRegistry()
	key := CounterKey{Component: "dst.file", ID: "out", Instance: "", Type: Stored}

	c := r.Register(key)
	c.Set(42)
	r.Unregister(key)

	var seen int64 = -1
	r.Foreach(func(k CounterKey, counter *Counter) {
		if k == key {
			seen = counter.Get()
		}
	})
	assert.Equal(t, int64(-1), seen, "unregister clears the live-mask bit immediately")

	c2 := r.Register(key)
	assert.Equal(t, int64(42), c2.Get(), "re-registering before cleanup resumes the prior value")
}

func TestCleanupOrphansRemovesAZeroRefNonDynamicCluster(t *testing.T) {
	r := NewRegistry()
	key := CounterKey{Component: "dst.file", ID: "out", Instance: "", Type: Stored}

	c := r.Register(key)
	c.Set(7)
	r.Unregister(key)
	r.CleanupOrphans()

	c2 := r.Register(key)
	assert.Equal(t, int64(0), c2.Get(), "the cluster was fully removed, so this is a fresh counter")
}

func TestRegisterDynamicSurvivesCleanupRegardlessOfRefCount(t *testing.T) {
	r := NewRegistry()
	key := CounterKey{Component: "center", ID: "", Instance: "prog-foo", Type: Processed}

	c, isNew := r.RegisterDynamic(key)
	require.True(t, isNew)
	c.Inc()
	r.Unregister(key)

	r.CleanupOrphans()

	var seen int64 = -1
	r.Foreach(func(k CounterKey, counter *Counter) {
		if k == key {
			seen = counter.Get()
		}
	})
	assert.Equal(t, int64(1), seen, "dynamic cluster is never removed by CleanupOrphans")
}

func TestRegisterExternalIsReadOnlyThroughTheRegistry(t *testing.T) {
	r := NewRegistry()
	var owned int64
	key := CounterKey{Component: "center", ID: "queue", Instance: "", Type: Stored}

	c := r.RegisterExternal(key, &owned)

	c.Inc()
	c.Set(99)
	assert.Equal(t, int64(0), c.Get(), "writes through the registry are no-ops on an external counter")

	atomic.AddInt64(&owned, 5)
	assert.Equal(t, int64(5), c.Get(), "Get reflects the owner's direct mutation")
}

func TestFormatCSVMatchesSpecifiedShape(t *testing.T) {
	r := NewRegistry()
	r.Register(CounterKey{Component: "src.file", ID: "messages", Instance: "/var/log/messages", Type: Processed}).Set(17)

	var buf bytes.Buffer
	require.NoError(t, r.FormatCSV(&buf))

	assert.Equal(t,
		"SourceName;SourceId;SourceInstance;State;Type;Number\n"+
			"src.file;messages;/var/log/messages;a;processed;17\n",
		buf.String())
}

func TestFormatCSVEscapesSpecialCharacters(t *testing.T) {
	r := NewRegistry()
	r.Register(CounterKey{Component: `we;ird"name`, ID: "id", Instance: "inst", Type: Dropped}).Inc()

	var buf bytes.Buffer
	require.NoError(t, r.FormatCSV(&buf))

	assert.Contains(t, buf.String(), `"we;ird\"name"`)
}

func TestFormatLogLineProducesASingleSummaryLine(t *testing.T) {
	r := NewRegistry()
	r.Register(CounterKey{Component: "src.file", ID: "messages", Instance: "/var/log/messages", Type: Processed}).Set(3)

	var buf bytes.Buffer
	require.NoError(t, r.FormatLogLine(&buf))

	assert.Equal(t, "Log statistics; processed='src.file(messages,/var/log/messages)=3'\n", buf.String())
}
