package logqueue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"logroute/pkg/kafkaauth"
	"logroute/pkg/message"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// ExternalQueueConfig configures a remote-broker-backed queue. The
// producer setup (required acks, SASL, dial/write timeouts) is adapted
// from the teacher's internal/sinks/kafka_sink.go, now used as a queue
// transport rather than a terminal sink.
type ExternalQueueConfig struct {
	Brokers     []string
	Topic       string
	ConnTimeout time.Duration

	// Auth, if Username is non-empty, enables SASL/PLAIN. SCRAM
	// mechanisms are wired through pkg/sinks' KafkaWorker, which shares
	// this same producer construction path for its terminal delivery.
	Username      string
	Password      string
	SASLMechanism string

	// Backlog configures the local disk-backed fallback queue a failed
	// remote write spills into (spec.md §9's resolved Open Question:
	// a failed external write always enqueues a backlog entry).
	Backlog DiskQueueConfig
}

// ExternalQueue delegates push-tail to a remote Kafka topic. A
// successful remote write is considered fully delivered and never
// surfaces through PopHead; a failed write falls back to a local
// DiskQueue, whose entries PopHead/AckBacklog/RewindBacklog/CheckItems
// operate on — the threaded destination driver (pkg/destdriver) only
// ever retries what the broker would not accept.
type ExternalQueue struct {
	mu       sync.Mutex
	producer sarama.SyncProducer
	topic    string
	backlog  *DiskQueue
	counters Counters
	logger   *logrus.Logger
}

// newSyncProducer is indirected so tests can substitute sarama/mocks
// without dialing a real broker.
var newSyncProducer = sarama.NewSyncProducer

// NewExternalQueue dials the configured brokers and opens the local
// fallback backlog.
func NewExternalQueue(cfg ExternalQueueConfig, logger *logrus.Logger) (*ExternalQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("logqueue: external queue requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("logqueue: external queue requires a topic")
	}

	scfg := sarama.NewConfig()
	scfg.Producer.Return.Successes = true
	scfg.Producer.RequiredAcks = sarama.WaitForLocal
	if cfg.ConnTimeout > 0 {
		scfg.Net.DialTimeout = cfg.ConnTimeout
		scfg.Net.WriteTimeout = cfg.ConnTimeout
		scfg.Net.ReadTimeout = cfg.ConnTimeout
	}
	if cfg.Username != "" {
		scfg.Net.SASL.Enable = true
		scfg.Net.SASL.User = cfg.Username
		scfg.Net.SASL.Password = cfg.Password
		switch cfg.SASLMechanism {
		case "SCRAM-SHA-256":
			scfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			scfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &kafkaauth.XDGSCRAMClient{HashGeneratorFcn: kafkaauth.SHA256}
			}
		case "SCRAM-SHA-512":
			scfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			scfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &kafkaauth.XDGSCRAMClient{HashGeneratorFcn: kafkaauth.SHA512}
			}
		default:
			scfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	producer, err := newSyncProducer(cfg.Brokers, scfg)
	if err != nil {
		return nil, fmt.Errorf("logqueue: create kafka producer: %w", err)
	}

	backlog, err := NewDiskQueue(cfg.Backlog, logger)
	if err != nil {
		producer.Close()
		return nil, err
	}

	return &ExternalQueue{producer: producer, topic: cfg.Topic, backlog: backlog, logger: logger}, nil
}

// SetCounters couples both the external write path and the local
// fallback backlog to the same stored/dropped counters (I-9).
func (q *ExternalQueue) SetCounters(c Counters) {
	q.mu.Lock()
	q.counters = c
	q.mu.Unlock()
	q.backlog.SetCounters(c)
}

func (q *ExternalQueue) PushTail(msg *message.Message) error {
	entry, err := encodeMessage(msg)
	if err != nil {
		return q.backlog.PushTail(msg)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return q.backlog.PushTail(msg)
	}

	_, _, err = q.producer.SendMessage(&sarama.ProducerMessage{
		Topic: q.topic,
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		if q.logger != nil {
			q.logger.WithError(err).Warn("logqueue: external write failed, falling back to local backlog")
		}
		return q.backlog.PushTail(msg)
	}

	q.mu.Lock()
	counters := q.counters
	q.mu.Unlock()
	if counters != nil {
		counters.IncStored()
	}
	return nil
}

func (q *ExternalQueue) PopHead() (*message.Message, bool) { return q.backlog.PopHead() }
func (q *ExternalQueue) Length() int                       { return q.backlog.Length() }
func (q *ExternalQueue) AckBacklog(n int) error             { return q.backlog.AckBacklog(n) }
func (q *ExternalQueue) RewindBacklog(n int) error          { return q.backlog.RewindBacklog(n) }

func (q *ExternalQueue) CheckItems(timeout time.Duration, notify func()) (bool, error) {
	return q.backlog.CheckItems(timeout, notify)
}

// Close closes the producer and the local fallback backlog.
func (q *ExternalQueue) Close() error {
	var firstErr error
	if err := q.producer.Close(); err != nil {
		firstErr = err
	}
	if err := q.backlog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
