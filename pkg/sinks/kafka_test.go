package sinks

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMockKafkaProducer(mock *mocks.SyncProducer) func() {
	prev := newKafkaSyncProducer
	newKafkaSyncProducer = func(_ []string, _ *sarama.Config) (sarama.SyncProducer, error) {
		return mock, nil
	}
	return func() { newKafkaSyncProducer = prev }
}

func TestKafkaWorkerInsertSendsOneMessage(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	defer withMockKafkaProducer(mock)()

	w, err := NewKafkaWorker(KafkaConfig{Brokers: []string{"broker:9092"}, Topic: "logs"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.ThreadInit())
	defer w.ThreadDeinit()

	assert.True(t, w.Insert(testPayload("hello")))
}

func TestKafkaWorkerInsertReturnsFalseOnSendFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(errors.New("broker unreachable"))
	defer withMockKafkaProducer(mock)()

	w, err := NewKafkaWorker(KafkaConfig{Brokers: []string{"broker:9092"}, Topic: "logs"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.ThreadInit())
	defer w.ThreadDeinit()

	assert.False(t, w.Insert(testPayload("hello")))
}

func TestNewKafkaWorkerRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaWorker(KafkaConfig{Topic: "logs"}, testLogger())
	assert.Error(t, err)

	_, err = NewKafkaWorker(KafkaConfig{Brokers: []string{"broker:9092"}}, testLogger())
	assert.Error(t, err)
}
