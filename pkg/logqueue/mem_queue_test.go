package logqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/message"
)

type countingCounters struct {
	stored, dropped int
}

func (c *countingCounters) IncStored()  { c.stored++ }
func (c *countingCounters) IncDropped() { c.dropped++ }

func TestMemQueueParallelPushDropsWhenFull(t *testing.T) {
	q := NewMemQueue(2, ParallelPush)
	c := &countingCounters{}
	q.SetCounters(c)

	require.NoError(t, q.PushTail(message.NewEmpty()))
	require.NoError(t, q.PushTail(message.NewEmpty()))
	err := q.PushTail(message.NewEmpty())

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, c.stored)
	assert.Equal(t, 1, c.dropped)
	assert.Equal(t, 2, q.Length())
}

func TestMemQueueFlowControlBlocksUntilSpace(t *testing.T) {
	q := NewMemQueue(1, FlowControl)
	require.NoError(t, q.PushTail(message.NewEmpty()))

	unblocked := make(chan struct{})
	go func() {
		require.NoError(t, q.PushTail(message.NewEmpty()))
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("PushTail returned before space was freed")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.PopHead()
	require.True(t, ok)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("PushTail did not unblock after PopHead freed a slot")
	}
}

func TestMemQueuePopHeadMovesIntoBacklogUntilAcked(t *testing.T) {
	q := NewMemQueue(4, ParallelPush)
	m1, m2 := message.NewEmpty(), message.NewEmpty()
	require.NoError(t, q.PushTail(m1))
	require.NoError(t, q.PushTail(m2))

	got1, ok := q.PopHead()
	require.True(t, ok)
	assert.Same(t, m1, got1)
	assert.Equal(t, 2, q.Length()) // still counted: one queued, one backlogged

	require.NoError(t, q.AckBacklog(1))
	assert.Equal(t, 1, q.Length())
}

func TestMemQueueRewindBacklogRequiresEnoughEntries(t *testing.T) {
	q := NewMemQueue(4, ParallelPush)
	require.NoError(t, q.PushTail(message.NewEmpty()))
	_, ok := q.PopHead()
	require.True(t, ok)

	assert.Error(t, q.RewindBacklog(2))
	require.NoError(t, q.RewindBacklog(1))
	assert.Equal(t, 1, q.Length())

	// rewound entry is deliverable again
	_, ok = q.PopHead()
	assert.True(t, ok)
}

func TestMemQueueCheckItemsReportsImmediatelyWhenNonEmpty(t *testing.T) {
	q := NewMemQueue(4, ParallelPush)
	require.NoError(t, q.PushTail(message.NewEmpty()))

	ready, err := q.CheckItems(time.Second, nil)
	assert.True(t, ready)
	assert.NoError(t, err)
}

func TestMemQueueCheckItemsThrottlesAndWakesOnPush(t *testing.T) {
	q := NewMemQueue(4, ParallelPush)

	woken := make(chan struct{})
	ready, err := q.CheckItems(time.Second, func() { close(woken) })
	assert.False(t, ready)

	var throttle ErrThrottle
	require.ErrorAs(t, err, &throttle)
	assert.Equal(t, time.Second, throttle.After)

	require.NoError(t, q.PushTail(message.NewEmpty()))

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("notify callback was not invoked after push")
	}
}
