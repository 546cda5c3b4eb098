package logqueue

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/message"
)

func withMockProducer(t *testing.T, mock *mocks.SyncProducer) func() {
	t.Helper()
	prev := newSyncProducer
	newSyncProducer = func(_ []string, _ *sarama.Config) (sarama.SyncProducer, error) {
		return mock, nil
	}
	return func() { newSyncProducer = prev }
}

func TestExternalQueuePushTailSucceedsAgainstBroker(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	defer withMockProducer(t, mock)()

	q, err := NewExternalQueue(ExternalQueueConfig{
		Brokers: []string{"broker:9092"},
		Topic:   "logs",
		Backlog: DiskQueueConfig{Directory: t.TempDir()},
	}, testLogger())
	require.NoError(t, err)
	defer q.Close()

	c := &countingCounters{}
	q.SetCounters(c)

	require.NoError(t, q.PushTail(payloadMessage("delivered")))
	assert.Equal(t, 1, c.stored)
	assert.Equal(t, 0, q.Length(), "a successful remote write never enters the local backlog")
}

func TestExternalQueuePushTailFallsBackToBacklogOnFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(errors.New("broker unreachable"))
	defer withMockProducer(t, mock)()

	q, err := NewExternalQueue(ExternalQueueConfig{
		Brokers: []string{"broker:9092"},
		Topic:   "logs",
		Backlog: DiskQueueConfig{Directory: t.TempDir(), MemCapacity: 4},
	}, testLogger())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.PushTail(payloadMessage("retry-me")))
	assert.Equal(t, 1, q.Length())

	m, ok := q.PopHead()
	require.True(t, ok)
	v, _ := m.GetValue(message.KeyMessage)
	assert.Equal(t, "retry-me", v)
}
